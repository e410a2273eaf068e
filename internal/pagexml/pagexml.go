// Package pagexml provides parsing and serialization for PAGE XML documents,
// the page-layout and text-recognition result format produced by the
// recognizer tool.
package pagexml

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
	"time"
)

// Namespace is the PAGE content schema namespace written on new documents.
const Namespace = "http://schema.primaresearch.org/PAGE/gts/pagecontent/2013-07-15"

// Document is the root PcGts element of a PAGE XML file.
type Document struct {
	XMLName  xml.Name  `xml:"PcGts"`
	Xmlns    string    `xml:"xmlns,attr,omitempty"`
	Metadata *Metadata `xml:"Metadata,omitempty"`
	Pages    []Page    `xml:"Page"`
}

// Metadata carries provenance information for a document.
type Metadata struct {
	Creator    string `xml:"Creator"`
	Created    string `xml:"Created"`
	LastChange string `xml:"LastChange"`
}

// Page describes one page image and its recognized layout.
type Page struct {
	ImageFilename string       `xml:"imageFilename,attr"`
	ImageWidth    int          `xml:"imageWidth,attr,omitempty"`
	ImageHeight   int          `xml:"imageHeight,attr,omitempty"`
	TextRegions   []TextRegion `xml:"TextRegion"`
}

// TextRegion is a rectangular-ish region of text on a page.
type TextRegion struct {
	ID        string     `xml:"id,attr"`
	Coords    *Coords    `xml:"Coords,omitempty"`
	TextLines []TextLine `xml:"TextLine"`
	TextEquiv *TextEquiv `xml:"TextEquiv,omitempty"`
}

// TextLine is a single line of text within a region.
type TextLine struct {
	ID        string     `xml:"id,attr"`
	Coords    *Coords    `xml:"Coords,omitempty"`
	Words     []Word     `xml:"Word"`
	TextEquiv *TextEquiv `xml:"TextEquiv,omitempty"`
}

// Word is a single word within a line.
type Word struct {
	ID        string     `xml:"id,attr"`
	Coords    *Coords    `xml:"Coords,omitempty"`
	TextEquiv *TextEquiv `xml:"TextEquiv,omitempty"`
}

// Coords holds a polygon as a space-separated list of x,y points.
type Coords struct {
	Points string `xml:"points,attr"`
}

// TextEquiv holds the recognized text content of its parent element.
type TextEquiv struct {
	Unicode string `xml:"Unicode"`
}

// Parse decodes data as a PAGE XML document. The root element must be PcGts
// and at least one Page must be present.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse page xml: %w", err)
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("parse page xml: document has no Page elements")
	}
	return &doc, nil
}

// Marshal serializes the document as indented XML prefixed with an explicit
// UTF-8 encoding declaration.
func (d *Document) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize page xml: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// ImageNames returns the base filename of every page image referenced by the
// document, in page order.
func (d *Document) ImageNames() []string {
	names := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		if p.ImageFilename == "" {
			continue
		}
		names = append(names, filepath.Base(p.ImageFilename))
	}
	return names
}

// New returns an empty document referencing the given page images, stamped
// with the creator string.
func New(creator string, imageNames ...string) *Document {
	now := time.Now().UTC().Format(time.RFC3339)
	doc := &Document{
		Xmlns: Namespace,
		Metadata: &Metadata{
			Creator:    creator,
			Created:    now,
			LastChange: now,
		},
	}
	for _, name := range imageNames {
		doc.Pages = append(doc.Pages, Page{ImageFilename: name})
	}
	return doc
}

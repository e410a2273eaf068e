package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagekit/recognize-gw/internal/events"
	"github.com/pagekit/recognize-gw/internal/history"
	"github.com/pagekit/recognize-gw/internal/job"
	"github.com/pagekit/recognize-gw/internal/pagexml"
)

// maxMultipartMemory is the in-memory threshold for multipart parsing; larger
// uploads spill to disk.
const maxMultipartMemory = 32 << 20

// handleRecognize handles POST /recognize. The multipart form carries the
// page images under "images", an optional PAGE XML file under "pagexml", and
// tool options under "options". The request blocks until the job completes
// or the request timeout elapses.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	images, err := readFileParts(r.MultipartForm.File["images"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := readDocumentPart(r.MultipartForm.File["pagexml"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if doc == nil && len(images) == 0 {
		s.writeError(w, http.StatusBadRequest, "expected at least one input: images or pagexml")
		return
	}

	options, err := job.ExpandOptions(r.MultipartForm.Value["options"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if doc != nil {
		if err := checkDocumentImages(doc, images); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	jb, err := job.New(doc, images, options)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.events.Publish(events.TypeJobEnqueued, map[string]any{
		"job_id": jb.ID,
		"images": len(jb.Images),
		"digest": jb.Digest,
	})
	s.queue.Enqueue(jb)
	s.logger.Info("job enqueued", "job_id", jb.ID, "images", len(jb.Images), "options", len(options))

	waitCtx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	res, err := jb.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusGatewayTimeout,
				fmt.Sprintf("job %s still running after %s", jb.ID, s.config.RequestTimeout))
			return
		}
		// Client went away; the worker finishes the job regardless.
		return
	}

	if !res.OK() {
		s.writeError(w, http.StatusBadRequest, res.Failure.Message())
		return
	}

	data, err := res.Doc.Marshal()
	if err != nil {
		s.logger.Error("failed to serialize result document", "job_id", jb.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to serialize result document")
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// readFileParts reads every uploaded image into memory.
func readFileParts(parts []*multipart.FileHeader) ([]job.Input, error) {
	inputs := make([]job.Input, 0, len(parts))
	for _, part := range parts {
		data, err := readPart(part)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, job.Input{Name: part.Filename, Data: data})
	}
	return inputs, nil
}

// readDocumentPart reads the optional single PAGE XML upload.
func readDocumentPart(parts []*multipart.FileHeader) (*job.Input, error) {
	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		data, err := readPart(parts[0])
		if err != nil {
			return nil, err
		}
		return &job.Input{Name: parts[0].Filename, Data: data}, nil
	default:
		return nil, fmt.Errorf("expected at most one pagexml file, got %d", len(parts))
	}
}

func readPart(part *multipart.FileHeader) ([]byte, error) {
	f, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", part.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %q: %w", part.Filename, err)
	}
	return data, nil
}

// checkDocumentImages verifies the PAGE XML parses and that the set of images
// it references matches the set of uploaded image names exactly.
func checkDocumentImages(doc *job.Input, images []job.Input) error {
	parsed, err := pagexml.Parse(doc.Data)
	if err != nil {
		return fmt.Errorf("invalid pagexml %q: %w", doc.Name, err)
	}

	referenced := parsed.ImageNames()
	uploaded := make([]string, 0, len(images))
	for _, img := range images {
		uploaded = append(uploaded, filepath.Base(img.Name))
	}
	sort.Strings(referenced)
	sort.Strings(uploaded)

	if len(referenced) != len(uploaded) {
		return fmt.Errorf("pagexml references %d image(s) but %d uploaded", len(referenced), len(uploaded))
	}
	for i := range referenced {
		if referenced[i] != uploaded[i] {
			return fmt.Errorf("pagexml references image %q which was not uploaded", referenced[i])
		}
	}
	return nil
}

// handleVersion handles GET /version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.relayToolText(w, r, s.tool.Version)
}

// handleHelp handles GET /help.
func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	s.relayToolText(w, r, s.tool.Help)
}

func (s *Server) relayToolText(w http.ResponseWriter, r *http.Request, fn func(context.Context) (string, error)) {
	text, err := fn(r.Context())
	if err != nil {
		s.logger.Error("tool introspection failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    s.queue.Depth(),
		Workers:       s.config.Workers,
	})
}

// handleGetJob handles GET /jobs/{jobID}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.histories == nil {
		s.writeError(w, http.StatusNotFound, "job history is disabled")
		return
	}

	jobID := chi.URLParam(r, "jobID")
	rec, err := s.histories.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("failed to load job record", "job_id", jobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load job record")
		return
	}

	respondJSON(w, http.StatusOK, JobRecordResponse{
		JobID:       rec.ID,
		Status:      string(rec.Status),
		FailureKind: rec.FailureKind,
		Reason:      rec.Reason,
		Args:        rec.Args,
		Output:      rec.Output,
		Digest:      rec.Digest,
		SubmittedAt: rec.SubmittedAt,
		CompletedAt: rec.CompletedAt,
		DurationMs:  rec.DurationMs,
	})
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pagekit/recognize-gw/internal/job"
)

func newJob(t *testing.T, doc *job.Input, images ...job.Input) *job.Job {
	t.Helper()
	jb, err := job.New(doc, images, nil)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return jb
}

func TestCreateMaterializesInputs(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := NewFSManager(baseDir)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}

	doc := &job.Input{Name: "pages.xml", Data: []byte("<PcGts/>")}
	jb := newJob(t, doc,
		job.Input{Name: "page1.png", Data: []byte{0x89, 0x50}},
		job.Input{Name: "page2.png", Data: []byte{0x89, 0x51}},
	)

	ws, err := mgr.Create(context.Background(), jb)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !strings.HasPrefix(filepath.Base(ws.Dir), Prefix) {
		t.Fatalf("workspace dir %q missing prefix %q", ws.Dir, Prefix)
	}
	if ws.DocumentPath != filepath.Join(ws.Dir, "pages.xml") {
		t.Fatalf("DocumentPath = %q", ws.DocumentPath)
	}
	if len(ws.ImagePaths) != 2 {
		t.Fatalf("ImagePaths = %v", ws.ImagePaths)
	}
	if ws.OutputPath != filepath.Join(ws.Dir, OutputFilename) {
		t.Fatalf("OutputPath = %q", ws.OutputPath)
	}

	got, err := os.ReadFile(ws.ImagePaths[0])
	if err != nil {
		t.Fatalf("ReadFile(image) error = %v", err)
	}
	if string(got) != "\x89\x50" {
		t.Fatalf("image content = %v", got)
	}
}

func TestCreateNeutralizesTraversalNames(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := NewFSManager(baseDir)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}

	jb := newJob(t, nil, job.Input{Name: "../../etc/passwd.png", Data: []byte{1}})

	ws, err := mgr.Create(context.Background(), jb)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	want := filepath.Join(ws.Dir, "passwd.png")
	if ws.ImagePaths[0] != want {
		t.Fatalf("ImagePaths[0] = %q, want %q", ws.ImagePaths[0], want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("sanitized input not written: %v", err)
	}
}

func TestCreateRejectsOutputCollision(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := NewFSManager(baseDir)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}

	jb := newJob(t, nil, job.Input{Name: OutputFilename, Data: []byte{1}})

	if _, err := mgr.Create(context.Background(), jb); err == nil {
		t.Fatal("Create() expected error for input named like the output file")
	}
}

func TestConcurrentCreatesDoNotCollide(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := NewFSManager(baseDir)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		jb := newJob(t, nil, job.Input{Name: "a.png", Data: []byte{1}})
		ws, err := mgr.Create(context.Background(), jb)
		if err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
		if seen[ws.Dir] {
			t.Fatalf("duplicate workspace dir %q", ws.Dir)
		}
		seen[ws.Dir] = true
	}
}

func TestDestroyRemovesDirectory(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := NewFSManager(baseDir)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}

	jb := newJob(t, nil, job.Input{Name: "a.png", Data: []byte{1}})
	ws, err := mgr.Create(context.Background(), jb)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := mgr.Destroy(ws); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatalf("workspace should be gone, stat err = %v", err)
	}

	// Destroying an already-removed workspace is not an error.
	if err := mgr.Destroy(ws); err != nil {
		t.Fatalf("Destroy() second call error = %v", err)
	}
}

func TestSweepRemovesOnlyStalePrefixedDirs(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := NewFSManager(baseDir)
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}

	oldWS, err := mgr.Create(context.Background(), newJob(t, nil, job.Input{Name: "a.png", Data: []byte{1}}))
	if err != nil {
		t.Fatalf("Create(old) error = %v", err)
	}
	newWS, err := mgr.Create(context.Background(), newJob(t, nil, job.Input{Name: "b.png", Data: []byte{1}}))
	if err != nil {
		t.Fatalf("Create(new) error = %v", err)
	}

	// A foreign directory under the base dir must be left alone.
	foreign := filepath.Join(baseDir, "keep-me")
	if err := os.Mkdir(foreign, 0o755); err != nil {
		t.Fatalf("Mkdir(foreign) error = %v", err)
	}

	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldWS.Dir, oldTime, oldTime); err != nil {
		t.Fatalf("Chtimes(old workspace) error = %v", err)
	}
	if err := os.Chtimes(foreign, oldTime, oldTime); err != nil {
		t.Fatalf("Chtimes(foreign) error = %v", err)
	}

	report, err := mgr.Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.DeletedDirs != 1 {
		t.Fatalf("Sweep() deleted = %d, want 1", report.DeletedDirs)
	}

	if _, err := os.Stat(oldWS.Dir); !os.IsNotExist(err) {
		t.Fatalf("old workspace should be deleted, err = %v", err)
	}
	if _, err := os.Stat(newWS.Dir); err != nil {
		t.Fatalf("new workspace should still exist, err = %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("foreign directory should still exist, err = %v", err)
	}
}

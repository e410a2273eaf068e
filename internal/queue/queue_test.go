package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pagekit/recognize-gw/internal/job"
)

func makeJob(t *testing.T, name string) *job.Job {
	t.Helper()
	jb, err := job.New(nil, []job.Input{{Name: name, Data: []byte{1}}}, nil)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return jb
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	t.Parallel()

	q := New()

	j1 := makeJob(t, "1.png")
	j2 := makeJob(t, "2.png")
	j3 := makeJob(t, "3.png")
	q.Enqueue(j1)
	q.Enqueue(j2)
	q.Enqueue(j3)

	if got := q.Depth(); got != 3 {
		t.Fatalf("Depth() = %d, want 3", got)
	}

	for i, want := range []*job.Job{j1, j2, j3} {
		got, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("Dequeue %d = %s, want %s", i, got.ID, want.ID)
		}
	}

	if got := q.Depth(); got != 0 {
		t.Fatalf("Depth() = %d, want 0", got)
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	t.Parallel()

	q := New()
	jb := makeJob(t, "late.png")

	got := make(chan *job.Job, 1)
	go func() {
		dq, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		got <- dq
	}()

	// Give the consumer a chance to park first.
	time.Sleep(20 * time.Millisecond)
	q.Enqueue(jb)

	select {
	case dq := <-got:
		if dq != jb {
			t.Fatalf("Dequeue = %s, want %s", dq.ID, jb.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake after Enqueue")
	}
}

func TestDequeueReturnsOnCancel(t *testing.T) {
	t.Parallel()

	q := New()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Dequeue returned nil error after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after context cancel")
	}
}

func TestConcurrentDequeuersDrainEverything(t *testing.T) {
	t.Parallel()

	const jobs = 50
	const workers = 4

	q := New()
	for i := 0; i < jobs; i++ {
		q.Enqueue(makeJob(t, "img.png"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ids := make(chan string, jobs)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jb, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				ids <- jb.ID
			}
		}()
	}

	seen := make(map[string]bool)
	for len(seen) < jobs {
		select {
		case id := <-ids:
			if seen[id] {
				t.Fatalf("job %s dequeued twice", id)
			}
			seen[id] = true
		case <-ctx.Done():
			t.Fatalf("drained %d distinct jobs before timeout, want %d", len(seen), jobs)
		}
	}

	cancel()
	wg.Wait()
}

package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/podshelf/podshelf/app/catalog"
	"github.com/podshelf/podshelf/app/docstore"
)

// fakeTask records executions so worker behavior can be observed.
type fakeTask struct {
	Task
	mu       sync.Mutex
	executed int
	err      error
	done     chan struct{}
}

func newFakeTask(err error) *fakeTask {
	return &fakeTask{
		Task: NewTask(TaskTypeRefreshChannel, "https://example.com/feed"),
		err:  err,
		done: make(chan struct{}, 16),
	}
}

func (t *fakeTask) Execute(ctx context.Context) error {
	t.mu.Lock()
	t.executed++
	t.mu.Unlock()
	t.done <- struct{}{}
	return t.err
}

func (t *fakeTask) executions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executed
}

func newTestScheduler(t *testing.T, store *docstore.Store) *Scheduler {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:       store,
		interval:    time.Hour,
		workerCount: 2,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 4),
	}
}

func newTestStore(t *testing.T) *docstore.Store {
	t.Helper()

	db, err := docstore.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := docstore.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return docstore.NewStore(db)
}

func TestWorkerExecutesTask(t *testing.T) {
	scheduler := newTestScheduler(t, newTestStore(t))
	scheduler.Start()
	defer scheduler.Stop()

	task := newFakeTask(nil)
	if err := scheduler.EnqueueTask(task); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	select {
	case <-task.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected task to be executed")
	}

	if task.executions() != 1 {
		t.Errorf("Expected 1 execution, got: %d", task.executions())
	}
}

func TestFailingTaskIsRetried(t *testing.T) {
	scheduler := newTestScheduler(t, newTestStore(t))
	scheduler.Start()
	defer scheduler.Stop()

	task := newFakeTask(fmt.Errorf("synthetic failure"))
	if err := scheduler.EnqueueTask(task); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// First execution plus at least one retry
	for i := 0; i < 2; i++ {
		select {
		case <-task.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("Expected execution %d of failing task", i+1)
		}
	}

	if task.executions() < 2 {
		t.Errorf("Expected at least 2 executions, got: %d", task.executions())
	}
}

func TestStopWithPendingRetry(t *testing.T) {
	scheduler := newTestScheduler(t, newTestStore(t))
	scheduler.Start()

	task := newFakeTask(fmt.Errorf("synthetic failure"))
	if err := scheduler.EnqueueTask(task); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// Wait for the first failed execution so a retry is pending
	select {
	case <-task.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected task to be executed")
	}

	// Stop must cancel the pending retry instead of waiting out its
	// delay or racing the queue close
	stopped := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Expected Stop to return without waiting for the retry delay")
	}
}

func TestEnqueueTaskQueueFull(t *testing.T) {
	scheduler := newTestScheduler(t, newTestStore(t))
	// Workers never started, so the queue fills up

	for i := 0; i < cap(scheduler.taskQueue); i++ {
		if err := scheduler.EnqueueTask(newFakeTask(nil)); err != nil {
			t.Fatalf("Expected no error while filling queue, got: %v", err)
		}
	}

	if err := scheduler.EnqueueTask(newFakeTask(nil)); err == nil {
		t.Error("Expected error when queue is full")
	}
}

func TestChannelURLs(t *testing.T) {
	store := newTestStore(t)
	scheduler := newTestScheduler(t, store)

	channels := []catalog.Channel{
		{ID: "aaa", URL: "https://example.com/a", Title: "A"},
		{ID: "bbb", URL: "https://example.com/b", Title: "B"},
	}
	for _, channel := range channels {
		data, err := json.Marshal(channel)
		if err != nil {
			t.Fatalf("Failed to marshal channel: %v", err)
		}
		if _, err := store.Put(context.Background(), catalog.ChannelKey(channel.ID), 0, data); err != nil {
			t.Fatalf("Failed to store channel: %v", err)
		}
	}

	urls := scheduler.channelURLs()
	if len(urls) != 2 {
		t.Fatalf("Expected 2 URLs, got: %d", len(urls))
	}
	if urls[0] != "https://example.com/a" || urls[1] != "https://example.com/b" {
		t.Errorf("Unexpected URLs: %v", urls)
	}
}

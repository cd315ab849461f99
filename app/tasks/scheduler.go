package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/podshelf/podshelf/app/catalog"
	"github.com/podshelf/podshelf/app/cfg"
	"github.com/podshelf/podshelf/app/docstore"
	"github.com/podshelf/podshelf/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs periodic synchronization passes over every known
// channel. Each pass enumerates the stored channels and enqueues one
// refresh task per channel; the worker pool executes them concurrently
// and a single channel's failure never delays or aborts the others.
type Scheduler struct {
	store     *docstore.Store
	processor *feed.Processor
	seedURLs  []string

	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(store *docstore.Store, processor *feed.Processor, seedURLs []string) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		store:       store,
		processor:   processor,
		seedURLs:    seedURLs,
		interval:    time.Duration(cfg.RefreshInterval) * time.Second,
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueStartupTasks refreshes seed-file URLs alongside the stored
// channels, so first-run deployments converge without waiting a full
// interval. Seed URLs not yet in the store get created by the refresh.
func (s *Scheduler) enqueueStartupTasks() {
	urls := s.channelURLs()

	seen := make(map[string]bool, len(urls))
	for _, url := range urls {
		seen[url] = true
	}
	for _, url := range s.seedURLs {
		if !seen[url] {
			urls = append(urls, url)
		}
	}

	if len(urls) == 0 {
		slog.Debug("No channels to refresh at startup")
		return
	}

	slog.Debug("Enqueueing startup refresh tasks", "count", len(urls))

	for _, url := range urls {
		task := NewRefreshChannelTask(url, s.processor)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue RefreshChannelTask", "url", url, "error", err)
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	urls := s.channelURLs()
	if len(urls) == 0 {
		slog.Debug("No channels found for scheduled refresh")
		return
	}

	slog.Debug("Enqueueing scheduled refresh tasks", "count", len(urls))

	for _, url := range urls {
		task := NewRefreshChannelTask(url, s.processor)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue RefreshChannelTask", "url", url, "error", err)
		}
	}
}

func (s *Scheduler) channelURLs() []string {
	docs, err := s.store.List(s.ctx, catalog.ChannelPrefix)
	if err != nil {
		slog.Warn("Failed to list channels from store", "error", err)
		return nil
	}

	urls := make([]string, 0, len(docs))
	for _, doc := range docs {
		var channel catalog.Channel
		if err := json.Unmarshal(doc.Data, &channel); err != nil {
			slog.Warn("Failed to unmarshal stored channel, skipping", "key", doc.Key, "error", err)
			continue
		}
		urls = append(urls, channel.URL)
	}

	return urls
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "url", task.GetChannelURL(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "url", task.GetChannelURL(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			// The retry goroutine joins the WaitGroup so Stop cannot
			// close the queue underneath a pending re-enqueue.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()

				timer := time.NewTimer(retryDelay)
				defer timer.Stop()

				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				case <-timer.C:
				}

				if retryErr := s.EnqueueTask(task); retryErr != nil {
					slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "url", task.GetChannelURL(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}

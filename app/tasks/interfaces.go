package tasks

// TaskSchedulerInterface defines the interface for task scheduling
// operations. The HTTP layer uses it to trigger immediate channel
// refreshes without reaching into the worker pool.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

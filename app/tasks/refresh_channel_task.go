package tasks

import (
	"context"

	"github.com/podshelf/podshelf/app/feed"
)

// RefreshChannelTask synchronizes a single channel from its source URL.
type RefreshChannelTask struct {
	Task
	processor *feed.Processor
}

func NewRefreshChannelTask(channelURL string, processor *feed.Processor) *RefreshChannelTask {
	return &RefreshChannelTask{
		Task:      NewTask(TaskTypeRefreshChannel, channelURL),
		processor: processor,
	}
}

func (t *RefreshChannelTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return t.processor.Sync(ctx, t.ChannelURL)
}

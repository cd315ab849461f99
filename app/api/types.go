package api

import (
	"net/http"

	"github.com/podshelf/podshelf/app/catalog"
	"github.com/podshelf/podshelf/app/docstore"
	"github.com/podshelf/podshelf/app/feed"
	"github.com/podshelf/podshelf/app/tasks"
)

type Handler struct {
	store       *docstore.Store
	processor   *feed.Processor
	scheduler   tasks.TaskSchedulerInterface
	proxyClient *http.Client
}

func NewHandler(store *docstore.Store, processor *feed.Processor, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		store:     store,
		processor: processor,
		scheduler: scheduler,
		// Media forwarding gets its own client: enclosure downloads can
		// legitimately outlive any fetch timeout suitable for feeds.
		proxyClient: &http.Client{},
	}
}

type createChannelRequest struct {
	URL string `json:"url" binding:"required"`
}

type channelResponse struct {
	OK      bool            `json:"ok"`
	Channel catalog.Channel `json:"channel"`
}

type channelListResponse struct {
	OK       bool              `json:"ok"`
	Channels []catalog.Channel `json:"channels"`
}

type itemResponse struct {
	OK   bool         `json:"ok"`
	Item catalog.Item `json:"item"`
}

type itemListResponse struct {
	OK    bool           `json:"ok"`
	Items []catalog.Item `json:"items"`
}

type createChannelResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/podshelf/podshelf/app/catalog"
	"github.com/podshelf/podshelf/app/cfg"
	"github.com/podshelf/podshelf/app/docstore"
	"github.com/podshelf/podshelf/app/feed"
	"github.com/podshelf/podshelf/app/tasks"
)

func (h *Handler) ListChannels(c *gin.Context) {
	docs, err := h.store.List(c.Request.Context(), catalog.ChannelPrefix)
	if err != nil {
		slog.Error("Database error", "operation", "list_channels", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list channels"})
		return
	}

	channels := make([]catalog.Channel, 0, len(docs))
	for _, doc := range docs {
		var channel catalog.Channel
		if err := json.Unmarshal(doc.Data, &channel); err != nil {
			slog.Error("Failed to unmarshal stored channel", "key", doc.Key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decode channel"})
			return
		}
		channels = append(channels, channel)
	}

	c.JSON(http.StatusOK, channelListResponse{OK: true, Channels: channels})
}

// CreateChannel registers the feed at the submitted URL by running a
// full synchronization, then returns the derived channel id. Re-posting
// a known URL resolves to the same id and merely refreshes the channel.
func (h *Handler) CreateChannel(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	slog.Info("Adding channel", "url", req.URL)

	if err := h.processor.Sync(c.Request.Context(), req.URL); err != nil {
		slog.Error("Channel synchronization failed", "url", req.URL, "error", err)
		c.JSON(syncErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, createChannelResponse{OK: true, ID: feed.DeriveID(req.URL)})
}

func (h *Handler) GetChannel(c *gin.Context) {
	channelID := c.Param("channelid")

	doc, err := h.store.Get(c.Request.Context(), catalog.ChannelKey(channelID))
	if errors.Is(err, docstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_channel", "channel_id", channelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get channel"})
		return
	}

	var channel catalog.Channel
	if err := json.Unmarshal(doc.Data, &channel); err != nil {
		slog.Error("Failed to unmarshal stored channel", "key", doc.Key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decode channel"})
		return
	}

	c.JSON(http.StatusOK, channelResponse{OK: true, Channel: channel})
}

func (h *Handler) ListChannelItems(c *gin.Context) {
	channelID := c.Param("channelid")

	docs, err := h.store.List(c.Request.Context(), catalog.ChannelItemsPrefix(channelID))
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "channel_id", channelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list items"})
		return
	}

	items := make([]catalog.Item, 0, len(docs))
	for _, doc := range docs {
		var item catalog.Item
		if err := json.Unmarshal(doc.Data, &item); err != nil {
			slog.Error("Failed to unmarshal stored item", "key", doc.Key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decode item"})
			return
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, itemListResponse{OK: true, Items: items})
}

// GetItem negotiates on the Accept header: JSON clients get the item
// record, audio clients get the enclosure forwarded from its origin.
func (h *Handler) GetItem(c *gin.Context) {
	item, ok := h.lookupItem(c)
	if !ok {
		return
	}

	switch {
	case accepts(c, "application/json"):
		c.JSON(http.StatusOK, itemResponse{OK: true, Item: item})
	case accepts(c, "audio/mpeg"):
		h.forwardEnclosure(c, http.MethodGet, item.Enclosure)
	default:
		c.Status(http.StatusNotAcceptable)
	}
}

// HeadItem supports only the media forward; there is no JSON body to
// describe with a HEAD response.
func (h *Handler) HeadItem(c *gin.Context) {
	item, ok := h.lookupItem(c)
	if !ok {
		return
	}

	if !accepts(c, "audio/mpeg") {
		c.Status(http.StatusNotAcceptable)
		return
	}

	h.forwardEnclosure(c, http.MethodHead, item.Enclosure)
}

// RefreshChannel enqueues an immediate synchronization of a known
// channel instead of waiting for the next scheduled pass.
func (h *Handler) RefreshChannel(c *gin.Context) {
	channelID := c.Param("channelid")

	doc, err := h.store.Get(c.Request.Context(), catalog.ChannelKey(channelID))
	if errors.Is(err, docstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "refresh_channel", "channel_id", channelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get channel"})
		return
	}

	var channel catalog.Channel
	if err := json.Unmarshal(doc.Data, &channel); err != nil {
		slog.Error("Failed to unmarshal stored channel", "key", doc.Key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decode channel"})
		return
	}

	task := tasks.NewRefreshChannelTask(channel.URL, h.processor)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Failed to enqueue refresh task", "channel_id", channelID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh queue is full"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true, "channel_id": channelID})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if count, err := h.store.Count(c.Request.Context(), catalog.ChannelPrefix); err == nil {
		health["channels"] = count
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := gin.H{
		"version":   cfg.GetVersion(),
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if count, err := h.store.Count(c.Request.Context(), catalog.ChannelPrefix); err == nil {
		stats["channels"] = count
	}
	if count, err := h.store.Count(c.Request.Context(), catalog.ItemPrefix); err == nil {
		stats["items"] = count
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) lookupItem(c *gin.Context) (catalog.Item, bool) {
	channelID := c.Param("channelid")
	itemID := c.Param("itemid")

	doc, err := h.store.Get(c.Request.Context(), catalog.ItemKey(channelID, itemID))
	if errors.Is(err, docstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return catalog.Item{}, false
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "channel_id", channelID, "item_id", itemID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get item"})
		return catalog.Item{}, false
	}

	var item catalog.Item
	if err := json.Unmarshal(doc.Data, &item); err != nil {
		slog.Error("Failed to unmarshal stored item", "key", doc.Key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decode item"})
		return catalog.Item{}, false
	}

	return item, true
}

func syncErrorStatus(err error) int {
	var fetchErr *feed.FetchError
	if errors.As(err, &fetchErr) {
		return http.StatusBadGateway
	}

	var parseErr *feed.ParseError
	var malformedErr *feed.MalformedItemError
	if errors.As(err, &parseErr) || errors.As(err, &malformedErr) {
		return http.StatusUnprocessableEntity
	}

	return http.StatusInternalServerError
}

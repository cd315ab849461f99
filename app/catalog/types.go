package catalog

import (
	"time"
)

// Channel is a podcast feed's durable aggregate record. ID is derived
// from the source URL and both are immutable once the channel exists.
type Channel struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Enclosure describes the downloadable media asset attached to an item.
type Enclosure struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Item is a single episode belonging to a channel. ID is derived from
// the feed-provided GUID. Enclosure is nil for entries without media,
// so the field is omitted from the stored document rather than written
// as a null placeholder.
type Item struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	Title     string     `json:"title"`
	Date      time.Time  `json:"date"`
	Enclosure *Enclosure `json:"enclosure,omitempty"`
}

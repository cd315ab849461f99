package feed

import (
	"time"
)

// Metadata is the channel-level result of normalizing a feed.
type Metadata struct {
	Title       string
	Description string
}

// Item is a normalized feed entry. Date is the zero time when the
// source carried no parseable publish date. Enclosure is nil when the
// entry has no media attachment.
type Item struct {
	GUID      string
	Title     string
	Date      time.Time
	Enclosure *Enclosure
}

// Enclosure is the media attachment of a normalized entry.
type Enclosure struct {
	URL  string
	Type string
}

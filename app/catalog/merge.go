package catalog

// Merge copies changed mutable fields from incoming into the channel
// and reports whether anything changed. The mergeable set is exactly
// {Title, Description}; ID and URL are identity fields and are never
// touched. A false return means the caller must skip the write.
func (c *Channel) Merge(incoming Channel) bool {
	changed := false

	if c.Title != incoming.Title {
		c.Title = incoming.Title
		changed = true
	}
	if c.Description != incoming.Description {
		c.Description = incoming.Description
		changed = true
	}

	return changed
}

// Merge copies changed mutable fields from incoming into the item and
// reports whether anything changed. The mergeable set is exactly
// {Title, Date, Enclosure}; ID and ChannelID are never touched.
func (i *Item) Merge(incoming Item) bool {
	changed := false

	if i.Title != incoming.Title {
		i.Title = incoming.Title
		changed = true
	}
	if !i.Date.Equal(incoming.Date) {
		i.Date = incoming.Date
		changed = true
	}
	if !enclosureEqual(i.Enclosure, incoming.Enclosure) {
		i.Enclosure = incoming.Enclosure
		changed = true
	}

	return changed
}

func enclosureEqual(a, b *Enclosure) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

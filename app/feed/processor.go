package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/podshelf/podshelf/app/catalog"
	"github.com/podshelf/podshelf/app/docstore"
)

type upsertOutcome int

const (
	outcomeCreated upsertOutcome = iota
	outcomeUpdated
	outcomeUnchanged
)

// Processor drives one full synchronization of one feed: fetch, parse,
// normalize, then conflict-aware upserts of the channel and its items.
type Processor struct {
	parser    *Parser
	store     docstore.DocumentStore
	client    *http.Client
	userAgent string
}

func NewProcessor(parser *Parser, store docstore.DocumentStore, client *http.Client, userAgent string) *Processor {
	return &Processor{
		parser:    parser,
		store:     store,
		client:    client,
		userAgent: userAgent,
	}
}

// Sync synchronizes the channel at url. Fetch, parse, and normalization
// failures abort the pass before any write. Item upserts run
// concurrently and independently: one item's failure never blocks the
// others, and the pass fails only if any item reports a non-conflict
// error. Re-running Sync against an unchanged feed performs zero
// writes.
func (p *Processor) Sync(ctx context.Context, url string) error {
	startTime := time.Now()

	data, err := p.fetchFeed(ctx, url)
	if err != nil {
		return err
	}

	metadata, items, err := p.parser.Run(data)
	if err != nil {
		return err
	}

	channelID := DeriveID(url)
	channel := catalog.Channel{
		ID:          channelID,
		URL:         url,
		Title:       metadata.Title,
		Description: metadata.Description,
	}

	channelOutcome, err := p.upsertChannel(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to upsert channel %s: %w", channelID, err)
	}

	outcomes := make([]upsertOutcome, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()
			outcomes[i], errs[i] = p.upsertItem(ctx, channelID, item)
		}(i, item)
	}
	wg.Wait()

	created, updated, unchanged := 0, 0, 0
	for i, err := range errs {
		if err != nil {
			errs[i] = fmt.Errorf("failed to upsert item %s: %w", DeriveID(items[i].GUID), err)
			continue
		}
		switch outcomes[i] {
		case outcomeCreated:
			created++
		case outcomeUpdated:
			updated++
		case outcomeUnchanged:
			unchanged++
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	slog.Info("Channel synchronized",
		"channel_id", channelID,
		"url", url,
		"channel_updated", channelOutcome != outcomeUnchanged,
		"items", len(items),
		"new", created,
		"updated", updated,
		"unchanged", unchanged,
		"duration", time.Since(startTime))

	return nil
}

// maxUpsertAttempts bounds the read-merge-write loop when concurrent
// writers keep bumping a document's revision. Conflicts are expected to
// be rare intra-pass races, not sustained contention.
const maxUpsertAttempts = 3

func (p *Processor) upsertChannel(ctx context.Context, channel catalog.Channel) (upsertOutcome, error) {
	key := catalog.ChannelKey(channel.ID)

	data, err := json.Marshal(channel)
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("failed to marshal channel: %w", err)
	}

	_, err = p.store.Put(ctx, key, 0, data)
	if err == nil {
		return outcomeCreated, nil
	}
	if !errors.Is(err, docstore.ErrConflict) {
		return outcomeUnchanged, err
	}

	for attempt := 1; ; attempt++ {
		doc, err := p.store.Get(ctx, key)
		if err != nil {
			return outcomeUnchanged, err
		}

		var existing catalog.Channel
		if err := json.Unmarshal(doc.Data, &existing); err != nil {
			return outcomeUnchanged, fmt.Errorf("failed to unmarshal stored channel: %w", err)
		}

		if !existing.Merge(channel) {
			return outcomeUnchanged, nil
		}

		merged, err := json.Marshal(existing)
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("failed to marshal merged channel: %w", err)
		}

		_, err = p.store.Put(ctx, key, doc.Rev, merged)
		if err == nil {
			return outcomeUpdated, nil
		}
		if !errors.Is(err, docstore.ErrConflict) || attempt == maxUpsertAttempts {
			return outcomeUnchanged, err
		}
		if err := backoff(ctx, attempt); err != nil {
			return outcomeUnchanged, err
		}
	}
}

// backoff sleeps for an exponentially increasing delay between conflict
// retries, returning early if the context is cancelled.
func backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(10<<uint(attempt-1)) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Processor) upsertItem(ctx context.Context, channelID string, normalized Item) (upsertOutcome, error) {
	item := catalog.Item{
		ID:        DeriveID(normalized.GUID),
		ChannelID: channelID,
		Title:     normalized.Title,
		Date:      normalized.Date,
	}
	if normalized.Enclosure != nil {
		item.Enclosure = &catalog.Enclosure{
			URL:  normalized.Enclosure.URL,
			Type: normalized.Enclosure.Type,
		}
	}

	key := catalog.ItemKey(channelID, item.ID)

	data, err := json.Marshal(item)
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = p.store.Put(ctx, key, 0, data)
	if err == nil {
		return outcomeCreated, nil
	}
	if !errors.Is(err, docstore.ErrConflict) {
		return outcomeUnchanged, err
	}

	for attempt := 1; ; attempt++ {
		doc, err := p.store.Get(ctx, key)
		if err != nil {
			return outcomeUnchanged, err
		}

		var existing catalog.Item
		if err := json.Unmarshal(doc.Data, &existing); err != nil {
			return outcomeUnchanged, fmt.Errorf("failed to unmarshal stored item: %w", err)
		}

		if !existing.Merge(item) {
			return outcomeUnchanged, nil
		}

		merged, err := json.Marshal(existing)
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("failed to marshal merged item: %w", err)
		}

		_, err = p.store.Put(ctx, key, doc.Rev, merged)
		if err == nil {
			return outcomeUpdated, nil
		}
		if !errors.Is(err, docstore.ErrConflict) || attempt == maxUpsertAttempts {
			return outcomeUnchanged, err
		}
		if err := backoff(ctx, attempt); err != nil {
			return outcomeUnchanged, err
		}
	}
}

// fetchFeed fetches feed data from the given URL
func (p *Processor) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if len(data) == 0 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("empty response body")}
	}

	return data, nil
}

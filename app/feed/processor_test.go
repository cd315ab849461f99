package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/podshelf/podshelf/app/catalog"
	"github.com/podshelf/podshelf/app/docstore"
)

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

func newTestProcessor(t *testing.T, store docstore.DocumentStore) *Processor {
	t.Helper()
	return NewProcessor(NewParser(), store, &http.Client{Timeout: 5 * time.Second}, "Podshelf-test/1.0")
}

// failingStore delegates to a real store but fails Put for one key.
type failingStore struct {
	*docstore.Store
	failKey string
}

func (s *failingStore) Put(ctx context.Context, key string, rev int64, data json.RawMessage) (int64, error) {
	if key == s.failKey {
		return 0, fmt.Errorf("disk full")
	}
	return s.Store.Put(ctx, key, rev, data)
}

func feedXML(description, firstTitle string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Talking Machines</title>
    <description>%s</description>
    <item>
      <title>%s</title>
      <guid>G1</guid>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
      <enclosure url="https://example.com/ep1.mp3" length="1" type="audio/mpeg"/>
    </item>
    <item>
      <title>Episode Two</title>
      <guid>G2</guid>
      <pubDate>Mon, 03 Jul 2023 11:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`, description, firstTitle)
}

func TestSyncCreatesChannelAndItems(t *testing.T) {
	var mu sync.Mutex
	body := feedXML("Original description", "Episode One")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	store := newTestStore(t)
	processor := newTestProcessor(t, store)
	ctx := context.Background()

	if err := processor.Sync(ctx, srv.URL); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	channelID := DeriveID(srv.URL)
	doc, err := store.Get(ctx, catalog.ChannelKey(channelID))
	if err != nil {
		t.Fatalf("Expected channel to be stored, got: %v", err)
	}
	if doc.Rev != 1 {
		t.Errorf("Expected channel revision 1, got: %d", doc.Rev)
	}

	var channel catalog.Channel
	if err := json.Unmarshal(doc.Data, &channel); err != nil {
		t.Fatalf("Failed to unmarshal channel: %v", err)
	}
	if channel.ID != channelID {
		t.Errorf("Expected channel ID %s, got: %s", channelID, channel.ID)
	}
	if channel.URL != srv.URL {
		t.Errorf("Expected channel URL %s, got: %s", srv.URL, channel.URL)
	}
	if channel.Title != "Talking Machines" {
		t.Errorf("Expected title 'Talking Machines', got: %s", channel.Title)
	}

	items, err := store.List(ctx, catalog.ChannelItemsPrefix(channelID))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 stored items, got: %d", len(items))
	}

	itemDoc, err := store.Get(ctx, catalog.ItemKey(channelID, DeriveID("G1")))
	if err != nil {
		t.Fatalf("Expected item G1 to be stored, got: %v", err)
	}
	var item catalog.Item
	if err := json.Unmarshal(itemDoc.Data, &item); err != nil {
		t.Fatalf("Failed to unmarshal item: %v", err)
	}
	if item.ChannelID != channelID {
		t.Errorf("Expected channel back-reference %s, got: %s", channelID, item.ChannelID)
	}
	if item.Enclosure == nil || item.Enclosure.URL != "https://example.com/ep1.mp3" {
		t.Errorf("Unexpected enclosure: %+v", item.Enclosure)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML("Original description", "Episode One"))
	}))
	defer srv.Close()

	store := newTestStore(t)
	processor := newTestProcessor(t, store)
	ctx := context.Background()

	if err := processor.Sync(ctx, srv.URL); err != nil {
		t.Fatalf("Expected no error on first sync, got: %v", err)
	}
	if err := processor.Sync(ctx, srv.URL); err != nil {
		t.Fatalf("Expected no error on second sync, got: %v", err)
	}

	// Zero merge writes on the second pass: every revision stays at 1
	channelID := DeriveID(srv.URL)
	keys := []string{
		catalog.ChannelKey(channelID),
		catalog.ItemKey(channelID, DeriveID("G1")),
		catalog.ItemKey(channelID, DeriveID("G2")),
	}
	for _, key := range keys {
		doc, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Expected %s to be stored, got: %v", key, err)
		}
		if doc.Rev != 1 {
			t.Errorf("Expected revision 1 for %s after unchanged re-sync, got: %d", key, doc.Rev)
		}
	}
}

func TestSyncMergesChangedFields(t *testing.T) {
	var mu sync.Mutex
	body := feedXML("Original description", "Episode One")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	store := newTestStore(t)
	processor := newTestProcessor(t, store)
	ctx := context.Background()

	if err := processor.Sync(ctx, srv.URL); err != nil {
		t.Fatalf("Expected no error on first sync, got: %v", err)
	}

	// Second sync: only the channel description changed
	mu.Lock()
	body = feedXML("Updated description", "Episode One")
	mu.Unlock()

	if err := processor.Sync(ctx, srv.URL); err != nil {
		t.Fatalf("Expected no error on second sync, got: %v", err)
	}

	channelID := DeriveID(srv.URL)
	channelDoc, err := store.Get(ctx, catalog.ChannelKey(channelID))
	if err != nil {
		t.Fatalf("Expected channel to be stored, got: %v", err)
	}
	if channelDoc.Rev != 2 {
		t.Errorf("Expected channel revision 2 after description change, got: %d", channelDoc.Rev)
	}

	var channel catalog.Channel
	if err := json.Unmarshal(channelDoc.Data, &channel); err != nil {
		t.Fatalf("Failed to unmarshal channel: %v", err)
	}
	if channel.Description != "Updated description" {
		t.Errorf("Expected merged description, got: %s", channel.Description)
	}

	for _, guid := range []string{"G1", "G2"} {
		doc, err := store.Get(ctx, catalog.ItemKey(channelID, DeriveID(guid)))
		if err != nil {
			t.Fatalf("Expected item %s to be stored, got: %v", guid, err)
		}
		if doc.Rev != 1 {
			t.Errorf("Expected item %s untouched at revision 1, got: %d", guid, doc.Rev)
		}
	}

	// Third sync: only item G1's title changed
	mu.Lock()
	body = feedXML("Updated description", "Episode One (remastered)")
	mu.Unlock()

	if err := processor.Sync(ctx, srv.URL); err != nil {
		t.Fatalf("Expected no error on third sync, got: %v", err)
	}

	g1Doc, err := store.Get(ctx, catalog.ItemKey(channelID, DeriveID("G1")))
	if err != nil {
		t.Fatalf("Expected item G1 to be stored, got: %v", err)
	}
	if g1Doc.Rev != 2 {
		t.Errorf("Expected item G1 at revision 2 after title change, got: %d", g1Doc.Rev)
	}

	var g1 catalog.Item
	if err := json.Unmarshal(g1Doc.Data, &g1); err != nil {
		t.Fatalf("Failed to unmarshal item: %v", err)
	}
	if g1.Title != "Episode One (remastered)" {
		t.Errorf("Expected merged title, got: %s", g1.Title)
	}

	g2Doc, err := store.Get(ctx, catalog.ItemKey(channelID, DeriveID("G2")))
	if err != nil {
		t.Fatalf("Expected item G2 to be stored, got: %v", err)
	}
	if g2Doc.Rev != 1 {
		t.Errorf("Expected item G2 untouched at revision 1, got: %d", g2Doc.Rev)
	}
}

func TestSyncItemFailureDoesNotBlockSiblings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML("Original description", "Episode One"))
	}))
	defer srv.Close()

	channelID := DeriveID(srv.URL)
	failingID := DeriveID("G2")
	store := newTestStore(t)
	failing := &failingStore{Store: store, failKey: catalog.ItemKey(channelID, failingID)}
	processor := newTestProcessor(t, failing)
	ctx := context.Background()

	err := processor.Sync(ctx, srv.URL)
	if err == nil {
		t.Fatal("Expected error when one item upsert fails")
	}
	if !strings.Contains(err.Error(), failingID) || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected error to name the failing item, got: %v", err)
	}
	if strings.Contains(err.Error(), DeriveID("G1")) {
		t.Errorf("Expected error to cover only the failing item, got: %v", err)
	}

	// The sibling item and the channel are written despite the failure
	if _, err := store.Get(ctx, catalog.ChannelKey(channelID)); err != nil {
		t.Errorf("Expected channel to be stored, got: %v", err)
	}
	if _, err := store.Get(ctx, catalog.ItemKey(channelID, DeriveID("G1"))); err != nil {
		t.Errorf("Expected sibling item to be stored, got: %v", err)
	}
	if _, err := store.Get(ctx, catalog.ItemKey(channelID, failingID)); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Expected failing item to be absent, got: %v", err)
	}
}

func TestSyncMalformedItemWritesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Broken Feed</title>
    <description>One item has no GUID</description>
    <item>
      <title>Good Item</title>
      <guid>good</guid>
    </item>
    <item>
      <title>Bad Item</title>
      <guid></guid>
    </item>
  </channel>
</rss>`)
	}))
	defer srv.Close()

	store := newTestStore(t)
	processor := newTestProcessor(t, store)
	ctx := context.Background()

	err := processor.Sync(ctx, srv.URL)

	var malformed *MalformedItemError
	if !errors.As(err, &malformed) {
		t.Fatalf("Expected MalformedItemError, got: %v", err)
	}

	channels, err := store.List(ctx, catalog.ChannelPrefix)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	items, err := store.List(ctx, catalog.ItemPrefix)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(channels) != 0 || len(items) != 0 {
		t.Errorf("Expected zero writes for malformed feed, got %d channels and %d items", len(channels), len(items))
	}
}

func TestSyncFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newTestStore(t)
	processor := newTestProcessor(t, store)

	err := processor.Sync(context.Background(), srv.URL)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got: %v", err)
	}
	if fetchErr.URL != srv.URL {
		t.Errorf("Expected URL %s in error, got: %s", srv.URL, fetchErr.URL)
	}
}

func TestSyncParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "definitely not XML")
	}))
	defer srv.Close()

	store := newTestStore(t)
	processor := newTestProcessor(t, store)

	err := processor.Sync(context.Background(), srv.URL)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Expected ParseError, got: %v", err)
	}
}

package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when no document exists under the key.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by Put when the key already exists (create)
	// or the stored revision no longer matches (update).
	ErrConflict = errors.New("document revision conflict")
)

// Document is a stored record: an opaque JSON body under a string key,
// versioned by a monotonically increasing revision.
type Document struct {
	Key  string
	Rev  int64
	Data json.RawMessage
}

// Store provides key-based access to JSON documents with optimistic
// concurrency. Creates and guarded updates signal ErrConflict instead
// of overwriting concurrent writes.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Get returns the document stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (Document, error) {
	doc := Document{Key: key}

	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT rev, doc FROM documents WHERE key = ?
	`, key).Scan(&doc.Rev, &body)
	if err == sql.ErrNoRows {
		return Document{}, fmt.Errorf("get %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document %q: %w", key, err)
	}

	doc.Data = json.RawMessage(body)
	return doc, nil
}

// Put writes data under key. A rev of zero creates the document and
// fails with ErrConflict if the key already exists; a non-zero rev
// updates the document only if the stored revision still matches,
// failing with ErrConflict otherwise. Returns the new revision.
func (s *Store) Put(ctx context.Context, key string, rev int64, data json.RawMessage) (int64, error) {
	if rev == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO documents (key, rev, doc)
			VALUES (?, 1, ?)
			ON CONFLICT(key) DO NOTHING
		`, key, string(data))
		if err != nil {
			return 0, fmt.Errorf("failed to create document %q: %w", key, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected for %q: %w", key, err)
		}
		if affected == 0 {
			return 0, fmt.Errorf("create %q: %w", key, ErrConflict)
		}

		return 1, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET rev = rev + 1, doc = ?, updated_at = CURRENT_TIMESTAMP
		WHERE key = ? AND rev = ?
	`, string(data), key, rev)
	if err != nil {
		return 0, fmt.Errorf("failed to update document %q: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %q: %w", key, err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("update %q: %w", key, ErrConflict)
	}

	return rev + 1, nil
}

// List returns all documents whose key starts with prefix, ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]Document, error) {
	// Range scan bounded by a high sentinel byte, same idea as the
	// "￰" end key used by CouchDB-style stores.
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, rev, doc FROM documents
		WHERE key >= ? AND key < ?
		ORDER BY key
	`, prefix, prefix+"\xff")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents under %q: %w", prefix, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var body string
		if err := rows.Scan(&doc.Key, &doc.Rev, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Data = json.RawMessage(body)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return docs, nil
}

// Count returns the number of documents under prefix.
func (s *Store) Count(ctx context.Context, prefix string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents
		WHERE key >= ? AND key < ?
	`, prefix, prefix+"\xff").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents under %q: %w", prefix, err)
	}

	return count, nil
}

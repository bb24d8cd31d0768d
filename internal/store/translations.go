package store

import (
	"context"
	"fmt"

	"github.com/roach88/canvaspipe/internal/ir"
)

// Translation is one persisted translation cache entry.
type Translation struct {
	Key         string
	Fingerprint string
	Language    string
	ScopeID     string
	Content     ir.IRObject
}

// GetTranslation looks up a cached translation by key. The bool is false
// on a miss.
func (s *Store) GetTranslation(ctx context.Context, key string) (ir.IRObject, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM translations WHERE key = ?`, key).Scan(&content)
	if isNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("get translation", err)
	}
	obj, err := unmarshalPayload(content)
	if err != nil {
		return nil, false, fmt.Errorf("get translation: %w", err)
	}
	return obj, true, nil
}

// PutTranslation stores a translation. Keys are content addressed, so a
// second write for the same key is silently ignored.
func (s *Store) PutTranslation(ctx context.Context, tr Translation) error {
	content, err := marshalPayload(tr.Content)
	if err != nil {
		return fmt.Errorf("put translation: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO translations (key, fingerprint, language, scope, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, tr.Key, tr.Fingerprint, tr.Language, tr.ScopeID, content, formatTime(s.timestamp()))
	if err != nil {
		return classify("put translation", err)
	}
	return nil
}

// CountTranslations returns the number of persisted entries.
func (s *Store) CountTranslations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translations`).Scan(&n); err != nil {
		return 0, classify("count translations", err)
	}
	return n, nil
}

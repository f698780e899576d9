// Package pagination provides opaque cursor encoding for keyset pagination.
// A cursor captures the (created_at, id) pair of the boundary row; the
// pagination predicate is a strict lexicographic comparison on that pair.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/botcrew/botcrew/internal/common/apperr"
)

// Meta describes the pagination state of a list response.
type Meta struct {
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

type cursorPayload struct {
	CreatedAt string `json:"c"`
	ID        string `json:"i"`
}

// EncodeCursor encodes a (created_at, id) boundary into an opaque
// URL-safe cursor string.
func EncodeCursor(createdAt time.Time, id string) string {
	payload, _ := json.Marshal(cursorPayload{
		CreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
		ID:        id,
	})
	return base64.URLEncoding.EncodeToString(payload)
}

// DecodeCursor decodes an opaque cursor back into its (created_at, id)
// components. Malformed cursors yield a validation error with a field
// pointer so the HTTP layer can return 400.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", apperr.ValidationField("cursor", "invalid pagination cursor")
	}
	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return time.Time{}, "", apperr.ValidationField("cursor", "invalid pagination cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, payload.CreatedAt)
	if err != nil {
		return time.Time{}, "", apperr.ValidationField("cursor", "invalid pagination cursor")
	}
	if payload.ID == "" {
		return time.Time{}, "", apperr.ValidationField("cursor", "invalid pagination cursor")
	}
	return createdAt.UTC(), payload.ID, nil
}

package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Pagination bounds a cursor listing. An empty cursor starts from the
// newest row.
type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"`
}

// Cursor marks the last row of the previous page. Listings order by id,
// so the id alone identifies the resume point.
type Cursor struct {
	ID string `json:"id"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}

	return base64.URLEncoding.EncodeToString(raw), nil
}

func DecodeCursor(encoded string) (*Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cursor: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to decode cursor: %w", err)
	}

	return &c, nil
}

// BuildPage trims an over-fetched result set (limit+1 rows) back to the
// page size and points the cursor at its last row.
func BuildPage[T any](rows []*T, limit int, lastID func(*T) string) ([]*T, *PageInfo, error) {
	if limit <= 0 || len(rows) <= limit {
		return rows, &PageInfo{}, nil
	}

	rows = rows[:limit]
	next, err := EncodeCursor(Cursor{ID: lastID(rows[len(rows)-1])})
	if err != nil {
		return nil, nil, err
	}

	return rows, &PageInfo{NextCursor: next, HasMore: true}, nil
}

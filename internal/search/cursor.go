package search

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cursor is the decoded form of a pagination token. A relevance cursor carries
// the last score, a recency cursor the last created_ts. Watermark pins the
// candidate set to ids at or below the first page's maximum, so rows inserted
// mid-pagination never shift later pages.
type Cursor struct {
	Watermark int64
	Relevance bool
	Score     float64
	TS        int64
	ID        int64
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	var raw string
	if c.Relevance {
		raw = fmt.Sprintf("w%d.s%016x.i%d", c.Watermark, math.Float64bits(c.Score), c.ID)
	} else {
		raw = fmt.Sprintf("w%d.t%d.i%d", c.Watermark, c.TS, c.ID)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Cursor.Encode.
func DecodeCursor(token string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.Split(string(b), ".")
	if len(parts) != 3 || len(parts[0]) < 2 || len(parts[1]) < 2 || len(parts[2]) < 2 {
		return Cursor{}, ErrInvalidCursor
	}
	if parts[0][0] != 'w' || parts[2][0] != 'i' {
		return Cursor{}, ErrInvalidCursor
	}

	var c Cursor
	if c.Watermark, err = strconv.ParseInt(parts[0][1:], 10, 64); err != nil {
		return Cursor{}, fmt.Errorf("%w: watermark", ErrInvalidCursor)
	}
	if c.ID, err = strconv.ParseInt(parts[2][1:], 10, 64); err != nil {
		return Cursor{}, fmt.Errorf("%w: id", ErrInvalidCursor)
	}

	switch parts[1][0] {
	case 's':
		bits, err := strconv.ParseUint(parts[1][1:], 16, 64)
		if err != nil {
			return Cursor{}, fmt.Errorf("%w: score", ErrInvalidCursor)
		}
		c.Relevance = true
		c.Score = math.Float64frombits(bits)
		if math.IsNaN(c.Score) {
			return Cursor{}, fmt.Errorf("%w: score", ErrInvalidCursor)
		}
	case 't':
		if c.TS, err = strconv.ParseInt(parts[1][1:], 10, 64); err != nil {
			return Cursor{}, fmt.Errorf("%w: timestamp", ErrInvalidCursor)
		}
	default:
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}

// after reports whether an item sorts strictly after the cursor position.
// Relevance order is score descending then id ascending; recency order is
// created_ts descending then id descending.
func (c Cursor) after(score float64, ts, id int64) bool {
	if c.Relevance {
		if score != c.Score {
			return score < c.Score
		}
		return id > c.ID
	}
	if ts != c.TS {
		return ts < c.TS
	}
	return id < c.ID
}

package search

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/rpggio/mailscope/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestCursor_EncodeDecode(t *testing.T) {
	cursors := []Cursor{
		{Watermark: 42, Relevance: true, Score: 3.14159, ID: 7},
		{Watermark: 42, Relevance: true, Score: -0.5, ID: 1},
		{Watermark: 1, TS: 1_700_000_000_000_000, ID: 99},
		{Watermark: 0, TS: -5, ID: 0},
	}
	for _, c := range cursors {
		got, err := DecodeCursor(c.Encode())
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestCursor_Opaque(t *testing.T) {
	token := Cursor{Watermark: 10, TS: 123, ID: 4}.Encode()
	require.NotContains(t, token, "=")
	require.NotContains(t, token, "/")
	require.NotContains(t, token, "+")
}

func TestDecodeCursor_Invalid(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	tokens := []string{
		"",
		"!!!",
		enc("garbage"),
		enc("w1.x2.i3"),
		enc("wq.t2.i3"),
		enc("w1.t2"),
		enc("w1.tabc.i3"),
		enc("w1.szz.i3"),
		enc("w1.t2.iz"),
		enc("w1.s7ff8000000000001.i3"),
	}
	for _, tok := range tokens {
		_, err := DecodeCursor(tok)
		require.Error(t, err, tok)
		require.True(t, errors.Is(err, ErrInvalidCursor))
		require.True(t, errors.Is(err, repository.ErrInvalidInput))
	}
}

func TestCursor_After(t *testing.T) {
	rel := Cursor{Relevance: true, Score: 2.0, ID: 5}
	require.True(t, rel.after(1.0, 0, 1))
	require.True(t, rel.after(2.0, 0, 6))
	require.False(t, rel.after(2.0, 0, 5))
	require.False(t, rel.after(3.0, 0, 9))

	rec := Cursor{TS: 100, ID: 5}
	require.True(t, rec.after(0, 99, 50))
	require.True(t, rec.after(0, 100, 4))
	require.False(t, rec.after(0, 100, 5))
	require.False(t, rec.after(0, 101, 1))
}

package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

type memWriter struct {
	objects     map[string][]byte
	types       map[string]string
	multiparted []string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.multiparted = append(m.multiparted, path)
	return nil
}

var at = time.Date(2024, 3, 1, 12, 30, 5, 250_000_000, time.UTC)

func TestArchiveBook(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w)

	v := &view.BookView{Meta: view.Meta{Feed: view.FeedBook, Generation: 4, Loaded: true}, Levels: 10}
	path, err := a.ArchiveBook(context.Background(), v, at)
	require.NoError(t, err)
	assert.Equal(t, "snapshots/book/2024-03-01/123005.250.json", path)
	assert.Equal(t, "application/json", w.types[path])
	assert.Contains(t, string(w.objects[path]), `"generation":4`)
}

func TestArchiveTradesJSONL(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w)

	trades := []domain.Trade{
		{ID: 7, Symbol: "AAPL", Price: decimal.RequireFromString("150.25"), Quantity: 10},
		{ID: 9, Symbol: "AAPL", Price: decimal.RequireFromString("150.30"), Quantity: 5},
	}
	path, err := a.ArchiveTrades(context.Background(), trades, at)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "trades/2024-03-01/"))
	assert.True(t, strings.HasSuffix(path, "-7-9.jsonl"))

	sc := bufio.NewScanner(bytes.NewReader(w.objects[path]))
	lines := 0
	for sc.Scan() {
		lines++
		assert.Contains(t, sc.Text(), `"trade_id"`)
	}
	assert.Equal(t, 2, lines)
	assert.Empty(t, w.multiparted)
}

func TestArchiveTradesEmpty(t *testing.T) {
	w := newMemWriter()
	path, err := NewArchiver(w).ArchiveTrades(context.Background(), nil, at)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, w.objects)
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "a/b.json", joinKey("", "/a/b.json"))
	assert.Equal(t, "tradedesk/dev/a/b.json", joinKey("tradedesk/dev", "a/b.json"))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
}

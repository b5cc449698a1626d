package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// multipartThreshold is the payload size above which uploads go through the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// Archiver writes view snapshots and trade batches as objects partitioned by
// UTC day:
//
//	snapshots/book/2024-03-01/120000.000.json
//	snapshots/ticks/2024-03-01/120000.000.json
//	trades/2024-03-01/120000.000-<first>-<last>.jsonl
type Archiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates an Archiver on top of any BlobWriter.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// ArchiveBook uploads the book view as one JSON document and returns its
// path.
func (a *Archiver) ArchiveBook(ctx context.Context, v *view.BookView, at time.Time) (string, error) {
	return a.putJSON(ctx, snapshotPath("book", at), v)
}

// ArchiveTicks uploads the tick window as one JSON document and returns its
// path.
func (a *Archiver) ArchiveTicks(ctx context.Context, v *view.TickView, at time.Time) (string, error) {
	return a.putJSON(ctx, snapshotPath("ticks", at), v)
}

// ArchiveTrades uploads trades as JSONL. Trades must be in ascending id
// order; the path carries the id range.
func (a *Archiver) ArchiveTrades(ctx context.Context, trades []domain.Trade, at time.Time) (string, error) {
	if len(trades) == 0 {
		return "", nil
	}
	buf, err := marshalJSONL(trades)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}
	at = at.UTC()
	path := fmt.Sprintf("trades/%s/%s-%d-%d.jsonl",
		at.Format("2006-01-02"), at.Format("150405.000"), trades[0].ID, trades[len(trades)-1].ID)

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive trades upload: %w", err)
	}
	return path, nil
}

func (a *Archiver) putJSON(ctx context.Context, path string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s marshal: %w", path, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive %s upload: %w", path, err)
	}
	return path, nil
}

func snapshotPath(kind string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("snapshots/%s/%s/%s.json", kind, at.Format("2006-01-02"), at.Format("150405.000"))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

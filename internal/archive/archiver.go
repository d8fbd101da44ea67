// Package archive snapshots finalized and cancelled markets to S3-compatible
// object storage once they are past their retention window, the cold-storage
// counterpart to internal/blob/s3/archiver.go's trade and order archiving in
// the teacher's platform.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here: that is a separate, explicit step to be run only after
// an archive has been verified.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/predictify/marketengine/internal/domain"
)

// blobPutter is the narrow upload capability the archiver needs, satisfied
// by internal/store/s3blob.Writer.
type blobPutter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// MarketStore provides read access to markets for archival purposes. Its one
// method is deliberately narrower than market.Registry's full CRUD surface.
type MarketStore interface {
	ListAll(ctx context.Context) ([]*domain.Market, error)
}

// Archiver implements the cold-storage snapshot of markets that have left
// the active lifecycle.
type Archiver struct {
	writer  blobPutter
	markets MarketStore
	logger  *slog.Logger
}

// New creates an Archiver over the given object-storage writer and market
// store.
func New(writer blobPutter, markets MarketStore, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{writer: writer, markets: markets, logger: logger}
}

// ArchiveMarkets snapshots every market in domain.StateFinalized or
// domain.StateCancelled whose ResolvedAt (or, for markets cancelled before
// ever resolving, EndTime) falls strictly before the cutoff. Matching
// records are serialized to JSONL and uploaded to
// archive/markets/YYYY-MM.jsonl, partitioned by the cutoff's year-month. The
// count of archived records is returned; zero matching records is not an
// error and performs no upload.
func (a *Archiver) ArchiveMarkets(ctx context.Context, before time.Time) (int64, error) {
	all, err := a.markets.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("archive: list markets: %w", err)
	}

	var due []*domain.Market
	for _, m := range all {
		if m.State != domain.StateFinalized && m.State != domain.StateCancelled {
			continue
		}
		cutoffAnchor := m.ResolvedAt
		if cutoffAnchor == 0 {
			cutoffAnchor = m.EndTime
		}
		if cutoffAnchor < before.Unix() {
			due = append(due, m)
		}
	}

	if len(due) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(due)
	if err != nil {
		return 0, fmt.Errorf("archive: marshal markets: %w", err)
	}

	path := archivePath("markets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("archive: upload markets: %w", err)
	}

	count := int64(len(due))
	a.logger.Info("archive.markets",
		"path", path,
		"count", count,
		"before", before.Format(time.RFC3339),
	)

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time:
//
//	archive/markets/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per element.
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

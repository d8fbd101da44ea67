package archive_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/marketengine/internal/archive"
	"github.com/predictify/marketengine/internal/domain"
)

type fakeWriter struct {
	path        string
	contentType string
	body        []byte
	calls       int
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.path = path
	f.contentType = contentType
	f.body = body
	f.calls++
	return nil
}

type fakeMarketStore struct {
	markets []*domain.Market
}

func (f *fakeMarketStore) ListAll(context.Context) ([]*domain.Market, error) {
	return f.markets, nil
}

func TestArchiverArchiveMarkets(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("skips markets not yet past the cutoff", func(t *testing.T) {
		markets := []*domain.Market{
			{ID: "mkt_1", State: domain.StateFinalized, ResolvedAt: cutoff.Add(time.Hour).Unix()},
			{ID: "mkt_2", State: domain.StateActive, ResolvedAt: cutoff.Add(-time.Hour).Unix()},
		}
		w := &fakeWriter{}
		a := archive.New(w, &fakeMarketStore{markets: markets}, slog.Default())

		count, err := a.ArchiveMarkets(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Zero(t, w.calls)
	})

	t.Run("archives finalized and cancelled markets before the cutoff", func(t *testing.T) {
		markets := []*domain.Market{
			{ID: "mkt_1", State: domain.StateFinalized, ResolvedAt: cutoff.Add(-time.Hour).Unix()},
			{ID: "mkt_2", State: domain.StateCancelled, EndTime: cutoff.Add(-24 * time.Hour).Unix()},
			{ID: "mkt_3", State: domain.StateDisputed, ResolvedAt: cutoff.Add(-time.Hour).Unix()},
		}
		w := &fakeWriter{}
		a := archive.New(w, &fakeMarketStore{markets: markets}, slog.Default())

		count, err := a.ArchiveMarkets(context.Background(), cutoff)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
		assert.Equal(t, 1, w.calls)
		assert.Equal(t, "archive/markets/2026-08.jsonl", w.path)
		assert.Equal(t, "application/x-ndjson", w.contentType)

		lines := bytes.Count(w.body, []byte("\n"))
		assert.Equal(t, 2, lines)
	})

	t.Run("cancelled market with no ResolvedAt falls back to EndTime", func(t *testing.T) {
		markets := []*domain.Market{
			{ID: "mkt_1", State: domain.StateCancelled, EndTime: cutoff.Add(time.Hour).Unix()},
		}
		w := &fakeWriter{}
		a := archive.New(w, &fakeMarketStore{markets: markets}, slog.Default())

		count, err := a.ArchiveMarkets(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Zero(t, count, "market ended after cutoff should not be archived")
	})
}

package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/quantara/tradewatch/internal/domain"
)

// multipartThreshold is the serialized size above which uploads switch to the
// multipart path.
const multipartThreshold = 8 * 1024 * 1024

// BlobWriter is the narrow upload surface the archiver needs. *Writer
// satisfies it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves aged trade history out of PostgreSQL into object storage.
// Trade events older than the retention cutoff are serialized to JSONL,
// uploaded, and then pruned from the hot store; closed positions are copied
// but never pruned, since the positions table keeps only one row per symbol.
type Archiver struct {
	writer    BlobWriter
	events    domain.TradeEventStore
	positions domain.PositionStore
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. The positions store may be nil when
// position history is not persisted.
func NewArchiver(writer BlobWriter, events domain.TradeEventStore, positions domain.PositionStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		events:    events,
		positions: positions,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTradeEvents uploads every trade event older than the cutoff to
// archive/trade_events/YYYY-MM.jsonl and deletes the archived rows. Rows are
// only deleted after the upload succeeds. It returns the number of events
// archived.
func (a *Archiver) ArchiveTradeEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade events marshal: %w", err)
	}

	path := archivePath("trade_events", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive trade events upload: %w", err)
	}

	deleted, err := a.events.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: prune archived trade events: %w", err)
	}

	a.logger.InfoContext(ctx, "trade events archived",
		slog.String("path", path),
		slog.Int("count", len(events)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(events)), nil
}

// ArchiveClosedPositions uploads positions closed before the cutoff to
// archive/positions/YYYY-MM.jsonl. It returns the number of positions
// archived.
func (a *Archiver) ArchiveClosedPositions(ctx context.Context, before time.Time) (int64, error) {
	if a.positions == nil {
		return 0, nil
	}

	positions, err := a.positions.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	path := archivePath("positions", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	a.logger.InfoContext(ctx, "closed positions archived",
		slog.String("path", path),
		slog.Int("count", len(positions)),
	)
	return int64(len(positions)), nil
}

// Run archives both record kinds once. Used by the periodic archive loop.
func (a *Archiver) Run(ctx context.Context, before time.Time) error {
	if _, err := a.ArchiveTradeEvents(ctx, before); err != nil {
		return err
	}
	if _, err := a.ArchiveClosedPositions(ctx, before); err != nil {
		return err
	}
	return nil
}

func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time, e.g. archive/trade_events/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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

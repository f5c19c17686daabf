package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/quantara/tradewatch/internal/domain"
)

type fakeWriter struct {
	puts   map[string][]byte
	putErr error
}

func (f *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[path] = buf.Bytes()
	return nil
}

func (f *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return f.Put(ctx, path, data, "")
}

type fakeEventStore struct {
	events  []domain.TradeEvent
	deleted bool
}

func (f *fakeEventStore) Insert(ctx context.Context, evt domain.TradeEvent) error { return nil }

func (f *fakeEventStore) ListBySymbol(ctx context.Context, symbol string, limit int) ([]domain.TradeEvent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeEvent, error) {
	return f.events, nil
}

func (f *fakeEventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	f.deleted = true
	n := int64(len(f.events))
	f.events = nil
	return n, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveTradeEventsUploadsAndPrunes(t *testing.T) {
	writer := &fakeWriter{}
	store := &fakeEventStore{events: []domain.TradeEvent{
		{ID: "e1", Symbol: "AAPL", Type: domain.TradeEventEntry, Price: 50},
		{ID: "e2", Symbol: "AAPL", Type: domain.TradeEventExit, Price: 50.5},
	}}
	a := NewArchiver(writer, store, nil, testLogger())

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveTradeEvents(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveTradeEvents returned error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	data, ok := writer.puts["archive/trade_events/2026-08.jsonl"]
	if !ok {
		t.Fatalf("expected upload under archive/trade_events/2026-08.jsonl, got %v", writer.puts)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("jsonl lines = %d, want 2", len(lines))
	}
	if !store.deleted {
		t.Error("archived rows must be pruned after a successful upload")
	}
}

func TestArchiveTradeEventsKeepsRowsOnUploadFailure(t *testing.T) {
	writer := &fakeWriter{putErr: errors.New("bucket unavailable")}
	store := &fakeEventStore{events: []domain.TradeEvent{
		{ID: "e1", Symbol: "AAPL", Type: domain.TradeEventEntry},
	}}
	a := NewArchiver(writer, store, nil, testLogger())

	if _, err := a.ArchiveTradeEvents(context.Background(), time.Now()); err == nil {
		t.Fatal("expected an error when the upload fails")
	}
	if store.deleted {
		t.Error("rows must not be pruned when the upload fails")
	}
}

func TestArchiveTradeEventsEmpty(t *testing.T) {
	writer := &fakeWriter{}
	a := NewArchiver(writer, &fakeEventStore{}, nil, testLogger())

	count, err := a.ArchiveTradeEvents(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveTradeEvents returned error: %v", err)
	}
	if count != 0 || len(writer.puts) != 0 {
		t.Errorf("count = %d, uploads = %d, want no work", count, len(writer.puts))
	}
}

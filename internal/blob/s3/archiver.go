package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outcomebet/paribet/internal/domain"
)

// Narrow store interfaces required by the exporter. The Postgres stores
// satisfy these implicitly through their existing ListAll methods.

// MarketExportStore provides read access to markets for export purposes.
type MarketExportStore interface {
	ListAll(ctx context.Context) ([]domain.Market, error)
}

// BetExportStore provides read access to bet positions for export purposes.
type BetExportStore interface {
	ListAll(ctx context.Context) ([]domain.ParticipantBet, error)
}

// Archiver implements domain.SettlementArchiver by serializing settlement
// reports to JSON and uploading them to S3, partitioned by settlement date:
//
//	settlements/2025/01/market-42.json
//
// It also exports full ledger journals as JSONL for operator backups.
type Archiver struct {
	writer  *Writer
	markets MarketExportStore
	bets    BetExportStore
}

// NewArchiver creates a new Archiver. The store arguments may be nil when the
// deployment runs without a journal; ExportLedger then returns an error.
func NewArchiver(writer *Writer, markets MarketExportStore, bets BetExportStore) *Archiver {
	return &Archiver{
		writer:  writer,
		markets: markets,
		bets:    bets,
	}
}

// ArchiveSettlement uploads a settlement report as a single JSON object. The
// report is immutable once written: markets settle exactly once, so the key
// is stable and a re-upload after a retry overwrites an identical object.
func (a *Archiver) ArchiveSettlement(ctx context.Context, report domain.SettlementReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal settlement %d: %w", report.MarketID, err)
	}

	path := settlementPath(report.MarketID, report.SettledAt)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive settlement %d: %w", report.MarketID, err)
	}
	return nil
}

// ExportLedger dumps every journaled market and bet position as JSONL and
// uploads the result via multipart upload to exports/YYYY-MM-DD/ledger.jsonl.
// It returns the number of records exported.
func (a *Archiver) ExportLedger(ctx context.Context, now time.Time) (int64, error) {
	if a.markets == nil || a.bets == nil {
		return 0, fmt.Errorf("s3blob: export requires a journal store")
	}

	markets, err := a.markets.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: export markets query: %w", err)
	}
	bets, err := a.bets.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: export bets query: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, m := range markets {
		if err := enc.Encode(m); err != nil {
			return 0, fmt.Errorf("s3blob: export encode market %d: %w", i, err)
		}
	}
	for i, b := range bets {
		if err := enc.Encode(b); err != nil {
			return 0, fmt.Errorf("s3blob: export encode bet %d: %w", i, err)
		}
	}

	path := fmt.Sprintf("exports/%s/ledger.jsonl", now.Format("2006-01-02"))
	if err := a.writer.PutMultipart(ctx, path, &buf, "application/x-ndjson", minPartSize); err != nil {
		return 0, fmt.Errorf("s3blob: export upload: %w", err)
	}

	return int64(len(markets) + len(bets)), nil
}

// settlementPath builds the S3 key for a settlement report, partitioned by
// the year and month the market settled.
func settlementPath(marketID uint64, settledAt time.Time) string {
	return fmt.Sprintf("settlements/%s/market-%d.json", settledAt.Format("2006/01"), marketID)
}

// Compile-time interface check.
var _ domain.SettlementArchiver = (*Archiver)(nil)

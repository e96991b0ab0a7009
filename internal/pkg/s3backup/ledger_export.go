package s3backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

const exportBatchSize = 500

// ObjectStore is the part of the S3 client the exporter uses.
type ObjectStore interface {
	PutObject(ctx context.Context, objectKey string, body []byte, contentType string) error
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type exportLine struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Amount    int64                  `json:"amount"`
	Bucket    string                 `json:"bucket"`
	Reason    string                 `json:"reason"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// LedgerExporter writes one JSONL object per UTC day of ledger entries.
type LedgerExporter struct {
	ledger  repository.LedgerRepository
	store   ObjectStore
	config  *Config
	metrics *metrics.Metrics
}

func NewLedgerExporter(ledger repository.LedgerRepository, store ObjectStore, cfg *Config, m *metrics.Metrics) *LedgerExporter {
	return &LedgerExporter{ledger: ledger, store: store, config: cfg, metrics: m}
}

// ExportDay uploads the entries created on day's UTC date and returns their
// count. A day already present in the bucket is not uploaded again.
func (e *LedgerExporter) ExportDay(ctx context.Context, day time.Time) (int, error) {
	from := entitlements.DayStart(day)
	key := e.config.GetObjectKey(from)

	exists, err := e.store.ObjectExists(ctx, key)
	if err != nil {
		e.metrics.IncLedgerExport("error")
		return 0, err
	}
	if exists {
		e.metrics.IncLedgerExport("skipped")
		log.Infof("[S3Backup] %s already exported", key)
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	err = e.ledger.EachBetween(ctx, from, from.AddDate(0, 0, 1), exportBatchSize, func(entries []models.CreditLedgerEntry) error {
		for _, entry := range entries {
			line := exportLine{
				ID:        entry.ID,
				UserID:    entry.UserID,
				Amount:    entry.Amount,
				Bucket:    entry.Bucket,
				Reason:    entry.Reason,
				Metadata:  entry.Metadata,
				CreatedAt: entry.CreatedAt.UTC(),
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		e.metrics.IncLedgerExport("error")
		return 0, fmt.Errorf("read ledger for %s: %w", from.Format("2006-01-02"), err)
	}

	if err := e.store.PutObject(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		e.metrics.IncLedgerExport("error")
		return 0, err
	}
	e.metrics.IncLedgerExport("uploaded")
	log.Infof("[S3Backup] exported %d ledger entries to %s", count, key)
	return count, nil
}

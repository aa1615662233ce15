// Package snapshot persists a small daily summary of ingestion activity:
// per-kind counts of the objects active on each day, derived from the day
// index. Nothing is deleted; snapshots only add.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatgraph/pkg/config"
	"chatgraph/pkg/logger"
	"chatgraph/pkg/models"
	"chatgraph/pkg/objid"
	"chatgraph/pkg/store"
)

// Record is one persisted snapshot.
type Record struct {
	Date    string         `json:"date"`
	TakenAt int64          `json:"taken_at"`
	Counts  map[string]int `json:"counts"`
	Total   int            `json:"total"`
}

// Start launches the scheduler when enabled. Returns a cancel func.
func Start(ctx context.Context, cfg *config.Config, st *store.Store) (context.CancelFunc, error) {
	if !cfg.Snapshot.Enabled {
		logger.Info("snapshot_disabled")
		return func() {}, nil
	}
	cronExpr := cfg.Snapshot.Cron
	if cronExpr == "" {
		cronExpr = "0 1 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid snapshot cron expression: %s", cfg.Snapshot.Cron)
	}
	logger.Info("snapshot_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, st)
	return cancel, nil
}

// runScheduler sleeps until the next cron tick and snapshots the previous
// day (the one most recently completed in UTC).
func runScheduler(ctx context.Context, cronExpr string, st *store.Store) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("snapshot_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("snapshot_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			date := objid.DateString(time.Now().UTC().Add(-24 * time.Hour).Unix())
			if err := RunOnce(st, date); err != nil {
				logger.Error("snapshot_run_error", "date", date, "error", err)
			}
		case <-ctx.Done():
			logger.Info("snapshot_scheduler_stopping")
			return
		}
	}
}

// RunOnce counts the day index for date and persists the snapshot record.
func RunOnce(st *store.Store, date string) error {
	keys, err := st.ScanKeys(store.DayPrefix(date))
	if err != nil {
		return fmt.Errorf("scan day index %s: %w", date, err)
	}
	rec := Record{Date: date, TakenAt: time.Now().UTC().Unix(), Counts: map[string]int{}}
	for _, k := range keys {
		global := k[len(store.DayPrefix(date)):]
		if ref, ok := models.ParseGlobal(global); ok {
			rec.Counts[string(ref.Kind)]++
			rec.Total++
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := st.Set("snapshot:"+date, b); err != nil {
		return err
	}
	logger.Info("snapshot_written", "date", date, "total", rec.Total)
	return nil
}

// Load returns the stored snapshot for date, if any.
func Load(st *store.Store, date string) (*Record, bool, error) {
	v, ok, err := st.Get("snapshot:" + date)
	if err != nil || !ok {
		return nil, false, err
	}
	var rec Record
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

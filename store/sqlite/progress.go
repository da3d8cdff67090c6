package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// BATCH PROGRESS (leave.ProgressStore interface)
// =============================================================================

// progressName keys the single scheduler row. Reset leaves it alone: it
// tracks wall-clock batch runs, not scenario data.
const progressName = "scheduler"

// LoadBatchProgress returns the zero value when nothing has been saved yet.
func (s *Store) LoadBatchProgress(ctx context.Context) (leave.BatchProgress, error) {
	var (
		p              leave.BatchProgress
		month, lastDay string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_month, last_day FROM batch_progress WHERE name = ?`, progressName,
	).Scan(&month, &lastDay)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to load batch progress: %w", err)
	}

	if month != "" {
		if p.LastMonth, err = generic.ParseMonth(month); err != nil {
			return p, fmt.Errorf("corrupt last_month %q: %w", month, err)
		}
	}
	if p.LastDay, err = parseDate(lastDay); err != nil {
		return p, fmt.Errorf("corrupt last_day %q: %w", lastDay, err)
	}
	return p, nil
}

func (s *Store) SaveBatchProgress(ctx context.Context, p leave.BatchProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	month := ""
	if !p.LastMonth.IsZero() {
		month = p.LastMonth.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_progress (name, last_month, last_day, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_month = excluded.last_month,
			last_day = excluded.last_day,
			updated_at = excluded.updated_at`,
		progressName, month, formatDate(p.LastDay), formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save batch progress: %w", err)
	}
	return nil
}

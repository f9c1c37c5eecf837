package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

// DayStats aggregates one owner's activity for one calendar day. Computed on
// the fly for the feed's virtual daily rows; never persisted.
type DayStats struct {
	MessageCount int      `json:"message_count"`
	TotalTokens  int      `json:"total_tokens"`
	MomentCount  int      `json:"moment_count"`
	Sessions     []string `json:"sessions"`
}

// SessionCount is derived, not stored.
func (d *DayStats) SessionCount() int { return len(d.Sessions) }

// DayStatsFor aggregates messages and moments of one owner inside
// [dayStart, dayEnd).
func (r *Repo) DayStatsFor(ctx context.Context, ownerID string, dayStart, dayEnd time.Time) (*DayStats, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	vars := map[string]any{
		"owner": ownerID,
		"start": rfc3339(dayStart),
		"end":   rfc3339(dayEnd),
	}

	type msgAgg struct {
		MessageCount int      `json:"message_count"`
		TotalTokens  int      `json:"total_tokens"`
		Sessions     []string `json:"sessions"`
	}
	msgResults, err := surrealdb.Query[[]msgAgg](ctx, r.client.db, `
		SELECT
			count() AS message_count,
			math::sum(token_count) AS total_tokens,
			array::distinct(session_id) AS sessions
		FROM message
		WHERE owner_id = $owner AND deleted_at = NONE
			AND created_at >= type::datetime($start)
			AND created_at < type::datetime($end)
		GROUP ALL
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("day message stats: %w", wrapQueryError(err))
	}

	type momAgg struct {
		MomentCount int `json:"moment_count"`
	}
	momResults, err := surrealdb.Query[[]momAgg](ctx, r.client.db, `
		SELECT count() AS moment_count
		FROM moment
		WHERE owner_id = $owner AND deleted_at = NONE
			AND created_at >= type::datetime($start)
			AND created_at < type::datetime($end)
		GROUP ALL
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("day moment stats: %w", wrapQueryError(err))
	}

	stats := &DayStats{}
	if m, ok := first(msgResults); ok {
		stats.MessageCount = m.MessageCount
		stats.TotalTokens = m.TotalTokens
		stats.Sessions = m.Sessions
	}
	if m, ok := first(momResults); ok {
		stats.MomentCount = m.MomentCount
	}
	return stats, nil
}

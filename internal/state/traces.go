// ./internal/state/traces.go
package state

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hernan-erasmo/overlord/internal/engine"
)

// TraceStore persists per-trace pipeline statistics. Satisfies the engine's
// stats sink.
type TraceStore struct{}

// NewTraceStore returns a store over the global pool.
func NewTraceStore() *TraceStore {
	return &TraceStore{}
}

// RecordTrace inserts one trace row. Failures are logged, never propagated:
// analytics must not slow or stall the pipeline.
func (s *TraceStore) RecordTrace(stats engine.TraceStats) {
	if DB == nil {
		return
	}
	_, err := DB.Exec(`
		INSERT INTO trace_stats
			(trace_id, origin, candidates, buckets, underwater, elapsed_ms, over_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		stats.TraceID, stats.Origin, stats.Candidates, stats.Buckets,
		stats.Underwater, stats.Elapsed.Milliseconds(), stats.OverDeadline,
	)
	if err != nil {
		log.Error().Err(err).Str("trace_id", stats.TraceID).Msg("Failed to record trace stats")
	}
}

// TraceRow is one persisted trace, shaped for the ops API.
type TraceRow struct {
	TraceID      string `json:"trace_id"`
	Origin       string `json:"origin"`
	Candidates   int    `json:"candidates"`
	Buckets      int    `json:"buckets"`
	Underwater   int    `json:"underwater"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	OverDeadline bool   `json:"over_deadline"`
	RecordedAt   string `json:"recorded_at"`
}

// GetRecentTraces retrieves recent trace rows with pagination.
func GetRecentTraces(limit int) ([]TraceRow, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	rows, err := DB.Query(`
		SELECT trace_id, origin, candidates, buckets, underwater, elapsed_ms, over_deadline, recorded_at
		FROM trace_stats
		ORDER BY recorded_at DESC
		LIMIT $1`, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent traces")
		return nil, fmt.Errorf("failed to query recent traces: %w", err)
	}
	defer rows.Close()

	var traces []TraceRow
	for rows.Next() {
		var row TraceRow
		if err := rows.Scan(
			&row.TraceID, &row.Origin, &row.Candidates, &row.Buckets,
			&row.Underwater, &row.ElapsedMs, &row.OverDeadline, &row.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trace row: %w", err)
		}
		traces = append(traces, row)
	}
	return traces, rows.Err()
}

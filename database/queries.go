package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vnetscan/vnetscan/speedtester"
)

// Data Models

type ProbeRun struct {
	ID          int64      `db:"id" json:"id"`
	StartTime   time.Time  `db:"start_time" json:"startTime"`
	EndTime     *time.Time `db:"end_time" json:"endTime,omitempty"`
	OptionsJSON string     `db:"options_json" json:"options"`
	TargetCount int        `db:"target_count" json:"targetCount"`
	Source      string     `db:"source" json:"source"`
}

// SampleRecord is one persisted detection cycle.
type SampleRecord struct {
	ID             int64     `db:"id" csv:"id" json:"id"`
	RunID          int64     `db:"run_id" csv:"run_id" json:"runId"`
	Target         string    `db:"target" csv:"target" json:"target"`
	Status         string    `db:"status" csv:"status" json:"status"`
	Reason         string    `db:"reason" csv:"reason" json:"reason,omitempty"`
	LatencyMs      float64   `db:"latency_ms" csv:"latency_ms" json:"latencyMs"`
	JitterMs       float64   `db:"jitter_ms" csv:"jitter_ms" json:"jitterMs"`
	DownloadMbps   float64   `db:"download_mbps" csv:"download_mbps" json:"downloadMbps"`
	UploadMbps     float64   `db:"upload_mbps" csv:"upload_mbps" json:"uploadMbps"`
	ConnectionType string    `db:"connection_type" csv:"connection_type" json:"connectionType"`
	EffectiveType  string    `db:"effective_type" csv:"effective_type" json:"effectiveType"`
	Method         string    `db:"method" csv:"method" json:"method"`
	Failures       string    `db:"failures" csv:"failures" json:"failures,omitempty"`
	CapturedAt     time.Time `db:"captured_at" csv:"captured_at" json:"capturedAt"`
}

// NewSampleRecord flattens a sample for storage. status and reason are the
// examiner's verdict for the target.
func NewSampleRecord(status, reason string, s speedtester.BandwidthSample) SampleRecord {
	return SampleRecord{
		Target:         s.Target,
		Status:         status,
		Reason:         reason,
		LatencyMs:      s.LatencyMs,
		JitterMs:       s.JitterMs,
		DownloadMbps:   s.DownloadMbps,
		UploadMbps:     s.UploadMbps,
		ConnectionType: string(s.ConnectionType),
		EffectiveType:  string(s.EffectiveType),
		Method:         string(s.Method),
		Failures:       strings.Join(s.Failures, ","),
		CapturedAt:     s.CapturedAt,
	}
}

// === Functions === /

// Probe runs //

func CreateProbeRun(ctx context.Context, optionsJSON string, targetCount int, source string) (int64, error) {
	db, err := conn()
	if err != nil {
		return 0, err
	}
	if optionsJSON == "" {
		optionsJSON = "{}"
	}
	query := `INSERT INTO probe_runs (options_json, target_count, source) VALUES (?, ?, ?)`
	res, err := db.ExecContext(ctx, query, optionsJSON, targetCount, source)
	if err != nil {
		return 0, fmt.Errorf("could not create probe_run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("could not get last insert id for probe_run: %w", err)
	}
	return id, nil
}

func FinishProbeRun(ctx context.Context, id int64, end time.Time) error {
	db, err := conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE probe_runs SET end_time = ? WHERE id = ?`, end.UTC(), id)
	if err != nil {
		return fmt.Errorf("could not finish probe_run %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no probe run found with id %d", id)
	}
	return nil
}

func ListProbeRuns(ctx context.Context, limit int) ([]ProbeRun, error) {
	db, err := conn()
	if err != nil {
		return nil, err
	}
	runs := []ProbeRun{}
	query := `SELECT id, start_time, end_time, options_json, target_count, source FROM probe_runs ORDER BY id DESC LIMIT ?`
	if err := db.SelectContext(ctx, &runs, query, limitOrAll(limit)); err != nil {
		return nil, fmt.Errorf("could not list probe runs: %w", err)
	}
	return runs, nil
}

// DeleteRunsBefore removes runs started before t together with their samples.
func DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	db, err := conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM probe_runs WHERE start_time < ?`, t.UTC().Format(time.DateTime))
	if err != nil {
		return 0, fmt.Errorf("could not prune probe runs: %w", err)
	}
	return res.RowsAffected()
}

// Samples //

func InsertSamplesBatch(ctx context.Context, runID int64, samples []SampleRecord) error {
	db, err := conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO bandwidth_samples (run_id, target, status, reason, latency_ms, jitter_ms, download_mbps, upload_mbps,
			connection_type, effective_type, method, failures, captured_at)
		VALUES (:run_id, :target, :status, :reason, :latency_ms, :jitter_ms, :download_mbps, :upload_mbps,
			:connection_type, :effective_type, :method, :failures, :captured_at)
	`)
	if err != nil {
		return fmt.Errorf("could not prepare named statement for bandwidth_samples: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		s.RunID = runID
		if s.CapturedAt.IsZero() {
			s.CapturedAt = time.Now()
		}
		s.CapturedAt = s.CapturedAt.UTC()
		if _, err := stmt.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to execute insert for sample of %s: %w", s.Target, err)
		}
	}

	return tx.Commit()
}

// GetSampleHistory returns the newest samples across all runs.
func GetSampleHistory(ctx context.Context, limit int) ([]SampleRecord, error) {
	db, err := conn()
	if err != nil {
		return nil, err
	}
	results := []SampleRecord{}
	query := `SELECT * FROM bandwidth_samples ORDER BY captured_at DESC, id DESC LIMIT ?`
	err = db.SelectContext(ctx, &results, query, limitOrAll(limit))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("could not list sample history: %w", err)
	}
	return results, nil
}

// GetRunSamples returns the samples of one run, best first.
func GetRunSamples(ctx context.Context, runID int64) ([]SampleRecord, error) {
	db, err := conn()
	if err != nil {
		return nil, err
	}
	results := []SampleRecord{}
	query := `
		SELECT * FROM bandwidth_samples
		WHERE run_id = ?
		ORDER BY
			CASE WHEN status IN ('passed', 'partial') THEN 0 ELSE 1 END,
			latency_ms ASC,
			download_mbps DESC
	`
	err = db.SelectContext(ctx, &results, query, runID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("could not list samples of run %d: %w", runID, err)
	}
	return results, nil
}

// SQLite treats a negative LIMIT as no limit.
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

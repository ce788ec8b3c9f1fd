package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/analysis"
	"github.com/t77yq/benchconsole/internal/model"
)

// ExecutionRecord is a finished execution as seen by the console
type ExecutionRecord struct {
	ID             string                `json:"id"`
	ExecutionID    string                `json:"execution_id"`
	Name           string                `json:"name"`
	WorkloadName   string                `json:"workload_name,omitempty"`
	ClusterName    string                `json:"cluster_name,omitempty"`
	Status         model.ExecutionStatus `json:"status"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	ClientCount    int                   `json:"client_count"`
	TotalIOPS      float64               `json:"total_iops"`
	ThroughputMBps float64               `json:"throughput_mbps"`
	LatencyUs      float64               `json:"latency_us"`
	Efficiency     analysis.Percent      `json:"efficiency"`
	Utilization    analysis.Percent      `json:"utilization"`
	Bottleneck     analysis.Bottleneck   `json:"bottleneck"`
	BaselineSource string                `json:"baseline_source,omitempty"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	RecordedAt     time.Time             `json:"recorded_at"`
}

// HistoryFilter narrows List and Count. Empty fields match everything.
type HistoryFilter struct {
	Status  model.ExecutionStatus
	Cluster string
}

// ExecutionHistory stores finished executions
type ExecutionHistory interface {
	// Record stores a finished execution. Recording the same execution again is a no-op.
	Record(ctx context.Context, exec model.Execution, result analysis.Result) error

	// Get retrieves the record of an execution, or nil if there is none
	Get(ctx context.Context, executionID string) (*ExecutionRecord, error)

	// List retrieves records, newest first
	List(ctx context.Context, filter HistoryFilter, offset, limit int) ([]*ExecutionRecord, error)

	// Count returns the number of records matching filter
	Count(ctx context.Context, filter HistoryFilter) (int, error)

	// DeleteBefore deletes records recorded before the given time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteExecutionHistory implements ExecutionHistory using SQLite
type SQLiteExecutionHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

const selectColumns = `id, execution_id, name, workload_name, cluster_name, status, error_message,
	client_count, total_iops, throughput_mbps, latency_us, efficiency, utilization,
	bottleneck, baseline_source, started_at, completed_at, recorded_at`

// NewSQLiteExecutionHistory opens or creates the history database at dbPath
func NewSQLiteExecutionHistory(logger *zap.Logger, dbPath string) (*SQLiteExecutionHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	h := &SQLiteExecutionHistory{
		logger: logger.Named("history"),
		db:     db,
	}

	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return h, nil
}

func (h *SQLiteExecutionHistory) initialize() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS execution_history (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			workload_name TEXT,
			cluster_name TEXT,
			status TEXT NOT NULL,
			error_message TEXT,
			client_count INTEGER NOT NULL DEFAULT 0,
			total_iops REAL NOT NULL DEFAULT 0,
			throughput_mbps REAL NOT NULL DEFAULT 0,
			latency_us REAL NOT NULL DEFAULT 0,
			efficiency REAL,
			utilization REAL,
			bottleneck TEXT NOT NULL,
			baseline_source TEXT,
			started_at DATETIME,
			completed_at DATETIME,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_execution_history_status ON execution_history(status);
		CREATE INDEX IF NOT EXISTS idx_execution_history_cluster ON execution_history(cluster_name);
		CREATE INDEX IF NOT EXISTS idx_execution_history_recorded_at ON execution_history(recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Record implements ExecutionHistory.Record
func (h *SQLiteExecutionHistory) Record(ctx context.Context, exec model.Execution, result analysis.Result) error {
	var source string
	if exec.NetworkBaseline != nil {
		source = exec.NetworkBaseline.Source
	}

	res, err := h.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO execution_history (
			id, execution_id, name, workload_name, cluster_name, status, error_message,
			client_count, total_iops, throughput_mbps, latency_us, efficiency, utilization,
			bottleneck, baseline_source, started_at, completed_at, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		exec.ID,
		exec.Name,
		nullString(exec.WorkloadName),
		nullString(exec.ClusterName),
		string(exec.Status),
		nullString(exec.ErrorMessage),
		exec.ClientCount,
		result.IOPS,
		result.AchievedMBps,
		result.LatencyUs,
		nullPercent(result.Efficiency),
		nullPercent(result.Utilization),
		string(result.Bottleneck),
		nullString(source),
		nullTimestamp(exec.StartedAt),
		nullTimestamp(exec.CompletedAt),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record execution %s: %w", exec.ID, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		h.logger.Info("Recorded execution",
			zap.String("execution_id", exec.ID),
			zap.String("status", string(exec.Status)),
			zap.String("bottleneck", string(result.Bottleneck)))
	}
	return nil
}

// Get implements ExecutionHistory.Get
func (h *SQLiteExecutionHistory) Get(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	row := h.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM execution_history WHERE execution_id = ?", executionID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan execution history: %w", err)
	}
	return rec, nil
}

// List implements ExecutionHistory.List
func (h *SQLiteExecutionHistory) List(ctx context.Context, filter HistoryFilter, offset, limit int) ([]*ExecutionRecord, error) {
	where, args := filter.clause()
	query := "SELECT " + selectColumns + " FROM execution_history" + where +
		" ORDER BY recorded_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution history: %w", err)
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution history: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count implements ExecutionHistory.Count
func (h *SQLiteExecutionHistory) Count(ctx context.Context, filter HistoryFilter) (int, error) {
	where, args := filter.clause()

	var count int
	err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM execution_history"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count execution history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements ExecutionHistory.DeleteBefore
func (h *SQLiteExecutionHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := h.db.ExecContext(ctx, "DELETE FROM execution_history WHERE recorded_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete execution history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	h.logger.Info("Deleted old execution history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (h *SQLiteExecutionHistory) Close() error {
	return h.db.Close()
}

func (f HistoryFilter) clause() (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Cluster != "" {
		conds = append(conds, "cluster_name = ?")
		args = append(args, f.Cluster)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*ExecutionRecord, error) {
	rec := &ExecutionRecord{}
	var status, bottleneck string
	var workload, cluster, errMsg, source sql.NullString
	var efficiency, utilization sql.NullFloat64
	var startedAt, completedAt sql.NullTime

	err := s.Scan(
		&rec.ID,
		&rec.ExecutionID,
		&rec.Name,
		&workload,
		&cluster,
		&status,
		&errMsg,
		&rec.ClientCount,
		&rec.TotalIOPS,
		&rec.ThroughputMBps,
		&rec.LatencyUs,
		&efficiency,
		&utilization,
		&bottleneck,
		&source,
		&startedAt,
		&completedAt,
		&rec.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = model.ExecutionStatus(status)
	rec.Bottleneck = analysis.Bottleneck(bottleneck)
	rec.WorkloadName = workload.String
	rec.ClusterName = cluster.String
	rec.ErrorMessage = errMsg.String
	rec.BaselineSource = source.String
	rec.Efficiency = analysis.Percent{Value: efficiency.Float64, Valid: efficiency.Valid}
	rec.Utilization = analysis.Percent{Value: utilization.Float64, Valid: utilization.Valid}
	if startedAt.Valid {
		rec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullPercent(p analysis.Percent) sql.NullFloat64 {
	return sql.NullFloat64{Float64: p.Value, Valid: p.Valid}
}

func nullTimestamp(ts *model.Timestamp) sql.NullTime {
	if ts == nil || ts.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: ts.UTC(), Valid: true}
}

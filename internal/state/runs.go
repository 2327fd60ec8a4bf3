package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// RunRecord is a persisted run row.
type RunRecord struct {
	ID         string     `json:"id"`
	Goal       string     `json:"goal"`
	Mode       string     `json:"mode"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CreateRun inserts a new run row.
func (db *DB) CreateRun(r *RunRecord) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, goal, mode, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Goal, r.Mode, r.Status, formatTime(r.StartedAt))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRunStatus updates a run's status, stamping finished_at on terminal
// statuses.
func (db *DB) UpdateRunStatus(id, status string) error {
	var finishedAt any
	if status == "completed" || status == "failed" || status == "stopped" {
		finishedAt = formatTime(time.Now())
	}
	_, err := db.Exec(`
		UPDATE runs SET status = ?, finished_at = COALESCE(?, finished_at) WHERE id = ?
	`, status, finishedAt, id)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID, or nil when absent.
func (db *DB) GetRun(id string) (*RunRecord, error) {
	row := db.QueryRow(`
		SELECT id, goal, mode, status, started_at, finished_at FROM runs WHERE id = ?
	`, id)

	var r RunRecord
	var startedAt string
	var finishedAt sql.NullString
	err := row.Scan(&r.ID, &r.Goal, &r.Mode, &r.Status, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, goal, mode, status, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		var r RunRecord
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.Goal, &r.Mode, &r.Status, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finishedAt.Valid {
			if t, perr := parseTime(finishedAt.String); perr == nil {
				r.FinishedAt = &t
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// UpsertItem writes the current state of one work item.
func (db *DB) UpsertItem(runID string, item *models.WorkItem) error {
	created := item.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO items (id, run_id, task, status, assigned_worker, depends_on, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, id) DO UPDATE SET
			status = excluded.status,
			assigned_worker = excluded.assigned_worker,
			result = excluded.result
	`, item.ID, runID, item.Task, string(item.Status), item.AssignedWorker,
		strings.Join(item.Dependencies, ","), item.Result, formatTime(created))
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// ListItems returns a run's items oldest first.
func (db *DB) ListItems(runID string) ([]*models.WorkItem, error) {
	rows, err := db.Query(`
		SELECT id, task, status, assigned_worker, depends_on, result, created_at
		FROM items WHERE run_id = ? ORDER BY created_at ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkItem
	for rows.Next() {
		var item models.WorkItem
		var status, dependsOn, createdAt string
		var worker, result sql.NullString
		if err := rows.Scan(&item.ID, &item.Task, &status, &worker, &dependsOn, &result, &createdAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Status = models.ItemStatus(status)
		item.AssignedWorker = worker.String
		item.Result = result.String
		if dependsOn != "" {
			item.Dependencies = strings.Split(dependsOn, ",")
		}
		if t, perr := parseTime(createdAt); perr == nil {
			item.CreatedAt = t
		}
		out = append(out, &item)
	}
	return out, rows.Err()
}

// UpsertWorker writes the current state of one worker.
func (db *DB) UpsertWorker(runID string, w *models.Worker) error {
	_, err := db.Exec(`
		INSERT INTO workers (id, run_id, name, role, type, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, id) DO UPDATE SET status = excluded.status
	`, w.ID, runID, w.Name, w.Role, string(w.Type), string(w.Status))
	if err != nil {
		return fmt.Errorf("upsert worker: %w", err)
	}
	return nil
}

// ListWorkers returns a run's workers.
func (db *DB) ListWorkers(runID string) ([]*models.Worker, error) {
	rows, err := db.Query(`
		SELECT id, name, role, type, status FROM workers WHERE run_id = ? ORDER BY name ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []*models.Worker
	for rows.Next() {
		var w models.Worker
		var typ, status string
		var role sql.NullString
		if err := rows.Scan(&w.ID, &w.Name, &role, &typ, &status); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.Role = role.String
		w.Type = models.WorkerType(typ)
		w.Status = models.WorkerStatus(status)
		out = append(out, &w)
	}
	return out, rows.Err()
}

// Snapshot persists the full board and pool state of a run in one pass.
func (db *DB) Snapshot(runID string, items []*models.WorkItem, workers []*models.Worker) error {
	for _, item := range items {
		if err := db.UpsertItem(runID, item); err != nil {
			return err
		}
	}
	for _, w := range workers {
		if err := db.UpsertWorker(runID, w); err != nil {
			return err
		}
	}
	return nil
}

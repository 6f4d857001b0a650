package storage

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/varaku1012/quantumwala/pkg/models"
	"github.com/varaku1012/quantumwala/pkg/storage"
)

// PostgresStore implements storage.Store on PostgreSQL. Record inserts are
// single statements, so each append is atomic with respect to concurrent
// readers; storage failures surface as storage.ErrPersistence.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(storage.ErrPersistence, err.Error())
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(storage.ErrPersistence, err.Error())
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) SaveRun(run models.WorkflowRun) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_runs (id, name, status, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = $3, ended_at = $5`,
		run.ID, run.Name, run.Status, run.StartedAt, run.EndedAt)
	if err != nil {
		return errors.Wrapf(storage.ErrPersistence, "save run %s: %v", run.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateRunStatus(id string, status models.WorkflowStatus) error {
	res, err := s.db.Exec("UPDATE workflow_runs SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return errors.Wrapf(storage.ErrPersistence, "update run %s: %v", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(storage.ErrNotFound, "run %q", id)
	}
	return nil
}

func (s *PostgresStore) GetRun(id string) (models.WorkflowRun, error) {
	var run models.WorkflowRun
	err := s.db.Get(&run, "SELECT * FROM workflow_runs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.WorkflowRun{}, errors.Wrapf(storage.ErrNotFound, "run %q", id)
	}
	if err != nil {
		return models.WorkflowRun{}, errors.Wrapf(storage.ErrPersistence, "get run %s: %v", id, err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns() ([]models.WorkflowRun, error) {
	runs := []models.WorkflowRun{}
	err := s.db.Select(&runs, "SELECT * FROM workflow_runs ORDER BY started_at DESC")
	if err != nil {
		return nil, errors.Wrapf(storage.ErrPersistence, "list runs: %v", err)
	}
	return runs, nil
}

func (s *PostgresStore) Append(rec models.ExecutionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO execution_records
			(workflow_id, task_id, attempt, status, started_at, ended_at, output_summary, error_msg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.WorkflowID, rec.TaskID, rec.Attempt, rec.Status,
		rec.StartedAt, rec.EndedAt, rec.OutputSummary, rec.Error)
	if err != nil {
		return errors.Wrapf(storage.ErrPersistence, "append record for task %s: %v", rec.TaskID, err)
	}
	return nil
}

func (s *PostgresStore) LatestStatus(workflowID, taskID string) (models.TaskStatus, error) {
	var status models.TaskStatus
	err := s.db.Get(&status, `
		SELECT status FROM execution_records
		WHERE workflow_id = $1 AND task_id = $2
		ORDER BY id DESC LIMIT 1`,
		workflowID, taskID)
	if err == sql.ErrNoRows {
		return "", errors.Wrapf(storage.ErrNotFound, "task %q in run %q", taskID, workflowID)
	}
	if err != nil {
		return "", errors.Wrapf(storage.ErrPersistence, "latest status: %v", err)
	}
	return status, nil
}

func (s *PostgresStore) History(workflowID string) ([]models.ExecutionRecord, error) {
	var records []models.ExecutionRecord
	err := s.db.Select(&records, `
		SELECT * FROM execution_records WHERE workflow_id = $1 ORDER BY id`,
		workflowID)
	if err != nil {
		return nil, errors.Wrapf(storage.ErrPersistence, "history for run %s: %v", workflowID, err)
	}
	return records, nil
}

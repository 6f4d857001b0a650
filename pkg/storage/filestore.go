package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/varaku1012/quantumwala/pkg/models"
)

// FileStore persists runs and execution records as JSON files under a state
// directory. Every write goes through a temp-file-then-rename so that a
// concurrent reader (or a process restarted mid-write) never observes a
// partial file.
//
// Layout:
//
//	<dir>/runs.json                 all workflow runs
//	<dir>/<workflow_id>/records.json  append-only record log for one run
type FileStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(ErrPersistence, "create state dir %s: %v", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) runsPath() string {
	return filepath.Join(s.dir, "runs.json")
}

func (s *FileStore) recordsPath(workflowID string) string {
	return filepath.Join(s.dir, workflowID, "records.json")
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by rename. Rename within a filesystem is atomic, so readers see
// either the old file or the new one, never a partial write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(ErrPersistence, "create temp file in %s: %v", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "write %s: %v", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "sync %s: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "close %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "rename %s -> %s: %v", tmpName, path, err)
	}
	return nil
}

func readJSON(path string, dest interface{}) (found bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(ErrPersistence, "read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrapf(ErrPersistence, "decode %s: %v", path, err)
	}
	return true, nil
}

func (s *FileStore) loadRuns() ([]models.WorkflowRun, error) {
	var runs []models.WorkflowRun
	if _, err := readJSON(s.runsPath(), &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *FileStore) saveRuns(runs []models.WorkflowRun) error {
	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return errors.Wrapf(ErrPersistence, "encode runs: %v", err)
	}
	return writeAtomic(s.runsPath(), data)
}

func (s *FileStore) SaveRun(run models.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, err := s.loadRuns()
	if err != nil {
		return err
	}
	replaced := false
	for i, r := range runs {
		if r.ID == run.ID {
			runs[i] = run
			replaced = true
			break
		}
	}
	if !replaced {
		runs = append(runs, run)
	}
	return s.saveRuns(runs)
}

func (s *FileStore) UpdateRunStatus(id string, status models.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, err := s.loadRuns()
	if err != nil {
		return err
	}
	for i, r := range runs {
		if r.ID == id {
			runs[i].Status = status
			return s.saveRuns(runs)
		}
	}
	return errors.Wrapf(ErrNotFound, "run %q", id)
}

func (s *FileStore) GetRun(id string) (models.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, err := s.loadRuns()
	if err != nil {
		return models.WorkflowRun{}, err
	}
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return models.WorkflowRun{}, errors.Wrapf(ErrNotFound, "run %q", id)
}

func (s *FileStore) ListRuns() ([]models.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRuns()
}

func (s *FileStore) Append(rec models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.recordsPath(rec.WorkflowID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(ErrPersistence, "create run dir: %v", err)
	}
	var records []models.ExecutionRecord
	if _, err := readJSON(path, &records); err != nil {
		return err
	}
	rec.ID = int64(len(records) + 1)
	records = append(records, rec)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrapf(ErrPersistence, "encode records: %v", err)
	}
	return writeAtomic(path, data)
}

func (s *FileStore) LatestStatus(workflowID, taskID string) (models.TaskStatus, error) {
	records, err := s.History(workflowID)
	if err != nil {
		return "", err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].TaskID == taskID {
			return records[i].Status, nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "task %q in run %q", taskID, workflowID)
}

func (s *FileStore) History(workflowID string) ([]models.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []models.ExecutionRecord
	if _, err := readJSON(s.recordsPath(workflowID), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FileStore) Close() error {
	return nil
}

package storage

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/varaku1012/quantumwala/pkg/models"
)

// MockStore implements Store with in-memory slices, for tests. It can be
// configured to start failing appends after a given count to exercise the
// scheduler's persistence-outage path.
type MockStore struct {
	mu             sync.Mutex
	runs           []models.WorkflowRun
	records        []models.ExecutionRecord
	nextID         int64
	appendsLeft    int
	failingAppends bool
}

func NewMockStore() *MockStore {
	return &MockStore{}
}

// FailAppendsAfter makes the store return ErrPersistence on every Append
// after n successful ones.
func (m *MockStore) FailAppendsAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failingAppends = true
	m.appendsLeft = n
}

func (m *MockStore) SaveRun(run models.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *MockStore) UpdateRunStatus(id string, status models.WorkflowStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.ID == id {
			m.runs[i].Status = status
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "run %q", id)
}

func (m *MockStore) GetRun(id string) (models.WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return models.WorkflowRun{}, errors.Wrapf(ErrNotFound, "run %q", id)
}

func (m *MockStore) ListRuns() ([]models.WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.WorkflowRun, len(m.runs))
	copy(out, m.runs)
	return out, nil
}

func (m *MockStore) Append(rec models.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failingAppends {
		if m.appendsLeft <= 0 {
			return errors.Wrap(ErrPersistence, "mock store unavailable")
		}
		m.appendsLeft--
	}
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, rec)
	return nil
}

func (m *MockStore) LatestStatus(workflowID, taskID string) (models.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.WorkflowID == workflowID && r.TaskID == taskID {
			return r.Status, nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "task %q in run %q", taskID, workflowID)
}

func (m *MockStore) History(workflowID string) ([]models.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExecutionRecord
	for _, r := range m.records {
		if r.WorkflowID == workflowID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockStore) Close() error {
	return nil
}

package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/dukex/stride/pkg/models"
	"github.com/hashicorp/go-memdb"
)

const (
	executionsTable = "executions"
	indexID         = "id"
	indexWorkflow   = "workflow_id"
)

// ExecutionStore keeps execution snapshots in an MVCC in-memory database. Every
// read and write copies, so callers never share state with the store.
type ExecutionStore struct {
	db *memdb.MemDB
}

func NewExecutionStore() (*ExecutionStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			executionsTable: {
				Name: executionsTable,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexWorkflow: {
						Name:    indexWorkflow,
						Indexer: &memdb.StringFieldIndex{Field: "WorkflowID"},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("create execution store: %w", err)
	}

	return &ExecutionStore{db: db}, nil
}

func (s *ExecutionStore) Put(execution *models.WorkflowExecution) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(executionsTable, execution.Clone()); err != nil {
		return fmt.Errorf("store execution %s: %w", execution.ID, err)
	}

	txn.Commit()

	return nil
}

func (s *ExecutionStore) Get(id string) (*models.WorkflowExecution, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(executionsTable, indexID, id)
	if err != nil || raw == nil {
		return nil, false
	}

	return raw.(*models.WorkflowExecution).Clone(), true
}

// List returns executions ordered by start time, newest first. An empty
// workflowID lists everything.
func (s *ExecutionStore) List(workflowID string) []*models.WorkflowExecution {
	txn := s.db.Txn(false)
	defer txn.Abort()

	var (
		it  memdb.ResultIterator
		err error
	)

	if workflowID == "" {
		it, err = txn.Get(executionsTable, indexID)
	} else {
		it, err = txn.Get(executionsTable, indexWorkflow, workflowID)
	}

	if err != nil {
		return nil
	}

	var out []*models.WorkflowExecution
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*models.WorkflowExecution).Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	return out
}

// DeleteStartedBefore removes executions that started at or before cutoff and returns how many went.
func (s *ExecutionStore) DeleteStartedBefore(cutoff time.Time) (int, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(executionsTable, indexID)
	if err != nil {
		return 0, err
	}

	var stale []any
	for raw := it.Next(); raw != nil; raw = it.Next() {
		if !raw.(*models.WorkflowExecution).StartedAt.After(cutoff) {
			stale = append(stale, raw)
		}
	}

	for _, raw := range stale {
		if err := txn.Delete(executionsTable, raw); err != nil {
			return 0, err
		}
	}

	txn.Commit()

	return len(stale), nil
}

func (s *ExecutionStore) Len() int {
	return len(s.List(""))
}

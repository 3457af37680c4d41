package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukex/stride/pkg/models"
)

// RecordRepository appends database action records to stride_action_records.
type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Write(ctx context.Context, record models.ActionRecord) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
	}

	query := `
		INSERT INTO stride_action_records (id, table_name, action, data, workflow_id, user_id, written_at)
		VALUES ($1, $2, $3, $4, NULLIF($5::text, ''), NULLIF($6::text, ''), $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.Table,
		record.Action,
		data,
		record.WorkflowID,
		record.UserID,
		record.WrittenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record %s into %s: %w", record.ID, record.Table, err)
	}

	return nil
}

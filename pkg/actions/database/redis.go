package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/stride/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

const defaultStreamPrefix = "stride:records:"

// RedisStreamWriter appends records to one Redis stream per table.
type RedisStreamWriter struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
}

// NewRedisStreamWriter builds a writer from a redis:// URL. maxLen caps each stream
// approximately; zero disables trimming.
func NewRedisStreamWriter(url string, maxLen int64) (*RedisStreamWriter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return &RedisStreamWriter{
		client: redis.NewClient(opts),
		prefix: defaultStreamPrefix,
		maxLen: maxLen,
	}, nil
}

func NewRedisStreamWriterFromClient(client redis.UniversalClient, maxLen int64) *RedisStreamWriter {
	return &RedisStreamWriter{client: client, prefix: defaultStreamPrefix, maxLen: maxLen}
}

// Stream returns the stream key records for table are appended to.
func (w *RedisStreamWriter) Stream(table string) string {
	return w.prefix + table
}

func (w *RedisStreamWriter) WriteRecord(ctx context.Context, record models.ActionRecord) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("marshal record data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: w.Stream(record.Table),
		Values: map[string]any{
			"id":          record.ID,
			"action":      record.Action,
			"data":        string(data),
			"user_id":     record.UserID,
			"workflow_id": record.WorkflowID,
			"written_at":  record.WrittenAt.Format(time.RFC3339Nano),
		},
	}

	if w.maxLen > 0 {
		args.MaxLen = w.maxLen
		args.Approx = true
	}

	return w.client.XAdd(ctx, args).Err()
}

func (w *RedisStreamWriter) Ping(ctx context.Context) error {
	return w.client.Ping(ctx).Err()
}

func (w *RedisStreamWriter) Close() error {
	return w.client.Close()
}

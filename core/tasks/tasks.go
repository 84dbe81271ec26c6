package tasks

import (
	"encoding/json"

	"chronos-server/core/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names routed through the asynq mux.
const (
	TypeCalendarBackfill  = "calendar:backfill"
	TypeCalendarDeltaSync = "calendar:delta_sync"
)

// BackfillPayload asks the worker to backfill every calendar of one account.
// BackfillBeforeTS pins the past edge of the window and BackfillAfterTS the
// future edge (RFC3339); both default when empty.
type BackfillPayload struct {
	UserID            uuid.UUID `json:"user_id"`
	ExternalAccountID string    `json:"external_account_id"`
	BackfillBeforeTS  string    `json:"backfill_before_ts,omitempty"`
	BackfillAfterTS   string    `json:"backfill_after_ts,omitempty"`
}

// DeltaSyncPayload asks the worker to run one delta-sync pass for a user.
type DeltaSyncPayload struct {
	UserID    uuid.UUID `json:"user_id"`
	ForceFull bool      `json:"force_full"`
}

// Client enqueues background sync tasks. Enqueue is fire-and-forget: failures
// are logged, never propagated to the triggering request.
type Client struct {
	client *asynq.Client
}

func NewClient(redisAddr, redisPassword string, redisDB int) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: redisPassword,
			DB:       redisDB,
		}),
	}
}

func (c *Client) EnqueueBackfill(payload BackfillPayload) {
	c.enqueue(TypeCalendarBackfill, payload)
}

func (c *Client) EnqueueDeltaSync(payload DeltaSyncPayload) {
	c.enqueue(TypeCalendarDeltaSync, payload)
}

func (c *Client) enqueue(taskType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Tasks:Enqueue:Marshal:Error", "type", taskType, "error", err)
		return
	}
	info, err := c.client.Enqueue(asynq.NewTask(taskType, data), asynq.MaxRetry(0))
	if err != nil {
		logger.Error("Tasks:Enqueue:Error", "type", taskType, "error", err)
		return
	}
	logger.Info("Tasks:Enqueued", "type", taskType, "task_id", info.ID)
}

func (c *Client) Close() error {
	return c.client.Close()
}

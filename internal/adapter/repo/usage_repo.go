package repo

import (
	"context"
	"encoding/json"
	"time"

	"motionbooth/internal/domain"
	"motionbooth/internal/infra"
	"motionbooth/internal/sqlinline"
)

// UsageRecorderPG appends diagnostic usage events. Callers treat failures as
// log-only.
type UsageRecorderPG struct {
	sql infra.SQLExecutor
}

func NewUsageRecorder(sql infra.SQLExecutor) *UsageRecorderPG {
	return &UsageRecorderPG{sql: sql}
}

func (u *UsageRecorderPG) Record(ctx context.Context, ownerID, taskID, eventType string, success bool, latency time.Duration, properties map[string]any) error {
	var props []byte
	if len(properties) > 0 {
		encoded, err := json.Marshal(properties)
		if err != nil {
			return err
		}
		props = encoded
	}
	_, err := u.sql.Exec(ctx, sqlinline.QInsertUsageEvent,
		ownerID, taskID, eventType, success, latency.Milliseconds(), props)
	return err
}

var _ domain.UsageRecorder = (*UsageRecorderPG)(nil)

package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends to the engagement_events table. The log is write-once and
// append-only; status on the candidate row is only a cached projection of it.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, candidateID, kind string, payload EventPayload) (int64, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := w.DB.ExecContext(ctx, `INSERT INTO engagement_events(ts,candidate_id,kind,payload_json) VALUES (?,?,?,?)`,
		ts, candidateID, kind, string(data))
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

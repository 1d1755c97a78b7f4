package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Activity types written by the board core. Moves are the only audited
// mutation; comment deletion and stage creation intentionally leave no row.
const (
	TypeStatusChange  = "STATUS_CHANGE"
	TypeRequestUpdate = "REQUEST_UPDATE"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Append writes one activity row inside the caller's transaction so the
// audit entry commits or rolls back together with the mutation it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, actType, projectID, itemKind, itemID, userID string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal activity payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO activities(ts,type,project_id,item_kind,item_id,user_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, actType, nullable(projectID), itemKind, nullable(itemID), userID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

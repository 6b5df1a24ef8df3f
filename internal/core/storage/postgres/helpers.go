package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	v1 "github.com/lumenlake/sessionizer/internal/api/v1"
	"github.com/lumenlake/sessionizer/internal/core/session"
)

// marshalPayload marshals an event payload to JSON. Nil or empty payloads
// produce nil (SQL NULL) rather than a JSON "null" string.
func marshalPayload(payload map[string]interface{}) ([]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRawEventRow scans a raw-shaped row (batch or lookback slice) into a
// RawEvent. Compatible with both sql.Row and sql.Rows.
func scanRawEventRow(row scanner) (v1.RawEvent, error) {
	var evt v1.RawEvent
	var payloadJSON []byte

	err := row.Scan(
		&evt.IngestSeq,
		&evt.UserID,
		&evt.EventID,
		&evt.ProductCode,
		&evt.Timestamp,
		&payloadJSON,
	)
	if err != nil {
		return v1.RawEvent{}, fmt.Errorf("failed to scan raw event row: %w", err)
	}

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &evt.Payload); err != nil {
			return v1.RawEvent{}, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	return evt, nil
}

// scanSessionRow scans a full cleaned-layer row. time_diff_ms is nullable:
// NULL marks the first visible event of a partition.
func scanSessionRow(row scanner) (session.SessionedEvent, error) {
	var se session.SessionedEvent
	var payloadJSON []byte
	var timeDiffMS sql.NullInt64

	err := row.Scan(
		&se.IngestSeq,
		&se.UserID,
		&se.EventID,
		&se.ProductCode,
		&se.Timestamp,
		&payloadJSON,
		&se.IsUserAction,
		&timeDiffMS,
		&se.IsNewSession,
		&se.SessionGroupSeq,
		&se.SessionStartTime,
		&se.SessionID,
		&se.PDate,
	)
	if err != nil {
		return session.SessionedEvent{}, fmt.Errorf("failed to scan session row: %w", err)
	}

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &se.Payload); err != nil {
			return session.SessionedEvent{}, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	if timeDiffMS.Valid {
		d := time.Duration(timeDiffMS.Int64) * time.Millisecond
		se.TimeDiff = &d
	}

	return se, nil
}

// timeDiffMillis converts the optional gap to its nullable column value.
func timeDiffMillis(d *time.Duration) interface{} {
	if d == nil {
		return nil
	}
	return d.Milliseconds()
}

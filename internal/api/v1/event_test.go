package v1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRawEvent_Validate(t *testing.T) {
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	valid := RawEvent{
		UserID:      "u1",
		EventID:     "a",
		ProductCode: "p1",
		Timestamp:   now,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(e *RawEvent)
		wantErr string
	}{
		{"missing user_id", func(e *RawEvent) { e.UserID = "" }, "user_id"},
		{"missing event_id", func(e *RawEvent) { e.EventID = "" }, "event_id"},
		{"missing product_code", func(e *RawEvent) { e.ProductCode = "" }, "product_code"},
		{"zero timestamp", func(e *RawEvent) { e.Timestamp = time.Time{} }, "timestamp"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := valid
			tc.mutate(&e)
			err := e.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

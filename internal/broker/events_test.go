package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutProducerLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ep := NewEventPublisher(nil, logger)
	err := ep.Publish(context.Background(), domain.EventTicketUsed, "TKT-1", map[string]any{"method": "scan"})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "event", line["msg"])
	assert.Equal(t, domain.EventTicketUsed, line["type"])
	assert.Equal(t, "TKT-1", line["key"])

	assert.NoError(t, ep.Close())
}

func TestEventEnvelope(t *testing.T) {
	ts := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	ev := domain.Event{
		ID:        "e-1",
		Type:      domain.EventBookingCreated,
		Key:       "b-1",
		Timestamp: ts,
		Data:      map[string]any{"passengers": 2},
	}

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"event_id":"e-1","event_type":"booking.created","key":"b-1","timestamp":"2026-05-01T08:00:00Z","data":{"passengers":2}}`,
		string(b),
	)
}

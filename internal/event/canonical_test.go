package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowhook/backend/pkg/models"
)

func TestFromCDCOperationMapping(t *testing.T) {
	cases := map[string]models.Operation{
		"c": models.OpInsert,
		"u": models.OpUpdate,
		"d": models.OpDelete,
		"r": models.OpRead,
	}
	for code, want := range cases {
		ev := FromCDC(map[string]any{"op": code, "after": map[string]any{"id": float64(1)}}, "cdc.public.orders", nil)
		require.NotNil(t, ev, "code %q", code)
		assert.Equal(t, want, ev.Operation)
		assert.Equal(t, "orders", ev.Table)
	}
}

func TestFromCDCUnknownCodeDropsEvent(t *testing.T) {
	ev := FromCDC(map[string]any{"op": "x", "after": map[string]any{}}, "cdc.public.orders", nil)
	assert.Nil(t, ev)
}

func TestFromCDCEnvelopeForm(t *testing.T) {
	raw := map[string]any{
		"payload": map[string]any{
			"op":     "u",
			"before": map[string]any{"a": float64(1), "b": float64(2)},
			"after":  map[string]any{"a": float64(1), "b": float64(3)},
			"source": map[string]any{"table": "customers"},
			"ts_ms":  float64(1700000000000),
		},
	}
	ev := FromCDC(raw, "cdc.public.ignored", nil)
	require.NotNil(t, ev)
	assert.Equal(t, models.OpUpdate, ev.Operation)
	assert.Equal(t, "customers", ev.Table)
	assert.Equal(t, []string{"b"}, ev.ChangedFields)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ev.Timestamp)
}

func TestFromCDCInsertHasNoChangedFields(t *testing.T) {
	ev := FromCDC(map[string]any{"op": "c", "after": map[string]any{"id": float64(1)}}, "cdc.public.orders", nil)
	require.NotNil(t, ev)
	assert.Nil(t, ev.Before)
	assert.Empty(t, ev.ChangedFields)
}

func TestChangedFields(t *testing.T) {
	before := map[string]any{"a": float64(1), "b": float64(2)}
	after := map[string]any{"a": float64(1), "b": float64(3)}
	assert.Equal(t, []string{"b"}, ChangedFields(before, after))

	// keys present on only one side count as changed
	assert.Equal(t, []string{"new", "old"},
		ChangedFields(map[string]any{"old": 1}, map[string]any{"new": 2}))

	assert.Empty(t, ChangedFields(before, before))
}

func TestTableFromTopic(t *testing.T) {
	assert.Equal(t, "orders", TableFromTopic("cdc.public.orders"))
	assert.Equal(t, "orders", TableFromTopic("orders"))
	assert.Equal(t, "", TableFromTopic(""))
}

func TestFromWebhook(t *testing.T) {
	ev := FromWebhook("POST", "/hooks/order-created",
		map[string]string{"X-Signature": "abc"},
		map[string]any{"order_id": float64(9)}, "orders")

	assert.Empty(t, ev.Operation)
	assert.Equal(t, "orders", ev.Table)
	assert.Equal(t, map[string]any{"order_id": float64(9)}, ev.After)
	assert.Equal(t, "POST", ev.Metadata["method"])
	headers := ev.Metadata["headers"].(map[string]any)
	assert.Equal(t, "abc", headers["x-signature"])
}

func TestFlattenForFilter(t *testing.T) {
	ev := &models.CanonicalEvent{
		Operation:     models.OpUpdate,
		Table:         "orders",
		Before:        map[string]any{"status": "new"},
		After:         map[string]any{"status": "paid"},
		ChangedFields: []string{"status"},
	}
	flat := FlattenForFilter(ev)

	assert.Equal(t, "UPDATE", flat["operation_type"])
	assert.Equal(t, "orders", flat["table_name"])
	assert.Equal(t, "paid", flat["after_status"])
	assert.Equal(t, "new", flat["before_status"])
}

func TestRawData(t *testing.T) {
	ev := &models.CanonicalEvent{
		Operation: models.OpUpdate,
		Table:     "orders",
		Before:    map[string]any{"is_active": false},
		After:     map[string]any{"is_active": true},
	}
	data := RawData(ev)

	assert.Equal(t, "UPDATE", data["operation"])
	after := data["after"].(map[string]any)
	assert.Equal(t, true, after["is_active"])
}

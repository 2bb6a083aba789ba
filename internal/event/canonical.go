// Package event normalizes raw change-capture and webhook payloads into the
// canonical event shape the trigger matcher and engine consume.
package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"flowhook/backend/pkg/models"
)

// Logger is the subset of the application logger this package needs.
type Logger interface {
	Warn(msg string, args ...any)
}

var operationCodes = map[string]models.Operation{
	"c": models.OpInsert,
	"u": models.OpUpdate,
	"d": models.OpDelete,
	"r": models.OpRead,
}

// FromCDC normalizes a change-capture record into a CanonicalEvent. Both the
// Debezium envelope form ({"payload": {...}}) and the flat form are accepted.
// An unknown operation code drops the event: the return is nil and the
// caller moves on to the next record.
func FromCDC(raw map[string]any, topic string, logger Logger) *models.CanonicalEvent {
	payload := raw
	if inner, ok := raw["payload"].(map[string]any); ok {
		payload = inner
	}

	code, _ := payload["op"].(string)
	operation, ok := operationCodes[code]
	if !ok {
		if logger != nil {
			logger.Warn("dropping change event with unknown operation code", "op", code, "topic", topic)
		}
		return nil
	}

	before, _ := payload["before"].(map[string]any)
	after, _ := payload["after"].(map[string]any)

	table := TableFromTopic(topic)
	metadata := map[string]any{"topic": topic}
	timestamp := time.Now().UTC()
	if source, ok := payload["source"].(map[string]any); ok {
		if t, ok := source["table"].(string); ok && t != "" {
			table = t
		}
		metadata["source"] = source
	}
	if tsMs, ok := payload["ts_ms"].(float64); ok && tsMs > 0 {
		timestamp = time.UnixMilli(int64(tsMs)).UTC()
	}

	var changed []string
	if operation == models.OpUpdate {
		changed = ChangedFields(before, after)
	}

	return &models.CanonicalEvent{
		Operation:     operation,
		Table:         table,
		Before:        before,
		After:         after,
		ChangedFields: changed,
		Timestamp:     timestamp,
		Metadata:      metadata,
	}
}

// FromWebhook wraps an incoming HTTP call into the canonical shape. Operation
// is left unset; the parsed body becomes the event data.
func FromWebhook(method, url string, headers map[string]string, body map[string]any, table string) *models.CanonicalEvent {
	metadata := map[string]any{
		"method": method,
		"url":    url,
	}
	if len(headers) > 0 {
		h := make(map[string]any, len(headers))
		for k, v := range headers {
			h[strings.ToLower(k)] = v
		}
		metadata["headers"] = h
	}
	return &models.CanonicalEvent{
		Table:         table,
		After:         body,
		ChangedFields: nil,
		Timestamp:     time.Now().UTC(),
		Metadata:      metadata,
	}
}

// ChangedFields computes the symmetric key union of before and after where
// the serialized values differ. Sorted for stable output.
func ChangedFields(before, after map[string]any) []string {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	var changed []string
	for k := range keys {
		if serialize(before[k]) != serialize(after[k]) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func serialize(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// TableFromTopic derives the table name from a change-capture topic of the
// form <prefix>.<schema>.<table>.
func TableFromTopic(topic string) string {
	if topic == "" {
		return ""
	}
	parts := strings.Split(topic, ".")
	return parts[len(parts)-1]
}

// FlattenForFilter exposes a CDC event as a flat object for trigger-level
// filter schemas: operation_type, table_name, before/after subtrees, plus
// after_<field> and before_<field> convenience keys.
func FlattenForFilter(ev *models.CanonicalEvent) map[string]any {
	flat := map[string]any{
		"operation_type": string(ev.Operation),
		"table_name":     ev.Table,
		"before":         ev.Before,
		"after":          ev.After,
		"changed_fields": ev.ChangedFields,
	}
	for k, v := range ev.After {
		flat["after_"+k] = v
	}
	for k, v := range ev.Before {
		flat["before_"+k] = v
	}
	return flat
}

// RawData is the raw-event view subscription filters evaluate against:
// operation, before and after at the top level.
func RawData(ev *models.CanonicalEvent) map[string]any {
	data := map[string]any{
		"operation": string(ev.Operation),
		"table":     ev.Table,
	}
	if ev.Before != nil {
		data["before"] = ev.Before
	}
	if ev.After != nil {
		data["after"] = ev.After
	}
	if len(ev.ChangedFields) > 0 {
		changed := make([]any, len(ev.ChangedFields))
		for i, f := range ev.ChangedFields {
			changed[i] = f
		}
		data["changedFields"] = changed
	}
	return data
}

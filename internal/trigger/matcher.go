// Package trigger decides which subscriptions fire for a canonical event.
package trigger

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"flowhook/backend/internal/event"
	"flowhook/backend/internal/filter"
	"flowhook/backend/internal/repository"
	"flowhook/backend/pkg/models"
)

// Logger is the subset of the application logger this package needs.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// SignatureVerifier checks a webhook event's signature against the trigger's
// configured properties. Pluggable; a nil verifier accepts everything.
type SignatureVerifier func(ev *models.CanonicalEvent, props models.JSONMap) bool

// Matcher evaluates trigger-level and subscription-level filters. All
// lookup/validation failures resolve to "no match" with a log line; nothing
// here may throw past the event-ingestion loop.
type Matcher struct {
	registries repository.RegistryStore
	subs       repository.SubscriptionStore
	filters    *filter.Engine
	verifier   SignatureVerifier
	logger     Logger
}

// NewMatcher creates a Matcher. verifier and logger may be nil.
func NewMatcher(registries repository.RegistryStore, subs repository.SubscriptionStore, filters *filter.Engine, verifier SignatureVerifier, logger Logger) *Matcher {
	return &Matcher{
		registries: registries,
		subs:       subs,
		filters:    filters,
		verifier:   verifier,
		logger:     logger,
	}
}

// ShouldTrigger reports whether the trigger itself accepts the event: the
// registry entry is active, the source-specific prefilters pass and the
// trigger's own filter schema (if any) matches.
func (m *Matcher) ShouldTrigger(ctx context.Context, triggerKey string, ev *models.CanonicalEvent) bool {
	reg, err := m.registries.GetTriggerByKey(ctx, triggerKey)
	if err != nil {
		m.warn("trigger lookup failed", "trigger_key", triggerKey, "error", err)
		return false
	}
	if !reg.IsActive {
		m.debug("trigger inactive", "trigger_key", triggerKey)
		return false
	}

	switch reg.EventSource {
	case models.EventSourceDebezium:
		if !m.matchesCDCProperties(reg.Properties, ev) {
			return false
		}
	case models.EventSourceWebhook:
		if !m.matchesWebhookProperties(reg, ev) {
			return false
		}
	}

	if reg.FilterSchema != nil {
		data := event.RawData(ev)
		if reg.EventSource == models.EventSourceDebezium {
			data = event.FlattenForFilter(ev)
		}
		if !m.filters.Evaluate(reg.FilterSchema, data) {
			return false
		}
	}
	return true
}

// FindMatches returns the active subscriptions whose filter conditions pass
// for the event. The trigger-level check runs first; when it rejects, the
// result is empty.
func (m *Matcher) FindMatches(ctx context.Context, triggerKey string, ev *models.CanonicalEvent) ([]*models.Subscription, error) {
	if !m.ShouldTrigger(ctx, triggerKey, ev) {
		return nil, nil
	}

	subs, err := m.subs.ListActiveByTriggerKey(ctx, triggerKey)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for %s: %w", triggerKey, err)
	}

	raw := event.RawData(ev)
	var matched []*models.Subscription
	for _, sub := range subs {
		if sub.FilterConditions != nil {
			if err := filter.Validate(sub.FilterConditions); err != nil {
				m.warn("skipping subscription with malformed filter", "subscription_id", sub.ID, "error", err)
				continue
			}
			if !m.filters.Evaluate(sub.FilterConditions, raw) {
				continue
			}
		}
		matched = append(matched, sub)
	}
	return matched, nil
}

// matchesCDCProperties applies debezium-source prefilters before any generic
// filter runs: table equality, operation allow-list, monitored fields and
// the status-transition shortcut.
func (m *Matcher) matchesCDCProperties(props models.JSONMap, ev *models.CanonicalEvent) bool {
	if table := propString(props, "table_name"); table != "" && table != ev.Table {
		return false
	}

	if allowed := propStrings(props, "change_type"); len(allowed) > 0 {
		ok := false
		for _, op := range allowed {
			if strings.EqualFold(op, string(ev.Operation)) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if ev.Operation == models.OpUpdate {
		if monitored := propStrings(props, "monitor_fields"); len(monitored) > 0 {
			if !anyFieldChanged(monitored, ev.ChangedFields) {
				return false
			}
		}
	}

	if propBool(props, "status_change_only") {
		if !anyFieldChanged([]string{"status"}, ev.ChangedFields) {
			return false
		}
		before, _ := ev.Before["status"]
		after, _ := ev.After["status"]
		if fmt.Sprint(before) == fmt.Sprint(after) {
			return false
		}
	}

	return true
}

// matchesWebhookProperties applies webhook-source prefilters: URL wildcard
// pattern, allowed methods, required headers and signature verification.
func (m *Matcher) matchesWebhookProperties(reg *models.TriggerRegistry, ev *models.CanonicalEvent) bool {
	props := reg.Properties
	meta := ev.Metadata

	if pattern := propString(props, "url_pattern"); pattern != "" {
		url, _ := meta["url"].(string)
		if !WildcardMatch(pattern, url) {
			return false
		}
	}

	if methods := propStrings(props, "methods"); len(methods) > 0 {
		method, _ := meta["method"].(string)
		ok := false
		for _, allowed := range methods {
			if strings.EqualFold(allowed, method) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if required, ok := props["required_headers"].(map[string]any); ok && len(required) > 0 {
		headers, _ := meta["headers"].(map[string]any)
		for name, want := range required {
			got, ok := headers[strings.ToLower(name)]
			if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
				return false
			}
		}
	}

	if m.verifier != nil && !m.verifier(ev, props) {
		m.warn("webhook signature verification failed", "trigger_key", reg.Key)
		return false
	}

	return true
}

// WildcardMatch tests s against a glob-ish pattern where * matches any run
// and ? matches one character. Anchored, case-insensitive; an invalid
// compiled pattern never matches.
func WildcardMatch(pattern, s string) bool {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	escaped = strings.ReplaceAll(escaped, `\?`, `.`)
	re, err := regexp.Compile(`(?i)^` + escaped + `$`)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func anyFieldChanged(wanted, changed []string) bool {
	for _, want := range wanted {
		for _, field := range changed {
			if want == field {
				return true
			}
		}
	}
	return false
}

func propString(props models.JSONMap, key string) string {
	s, _ := props[key].(string)
	return s
}

func propStrings(props models.JSONMap, key string) []string {
	items, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func propBool(props models.JSONMap, key string) bool {
	b, _ := props[key].(bool)
	return b
}

func (m *Matcher) warn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}

func (m *Matcher) debug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

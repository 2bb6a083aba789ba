// Package consumer ingests change-capture events from Kafka and hands them to
// the workflow engine.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"flowhook/backend/internal/engine"
	"flowhook/backend/internal/event"
	"flowhook/backend/internal/observability"
	"flowhook/backend/internal/repository"
	"flowhook/backend/pkg/models"
)

// Logger is the subset of the application logger this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Consumer reads CDC topics through a Sarama consumer group. Messages within
// a partition are processed in order; each message is matched against every
// active change-capture trigger and the engine fans matching subscriptions
// out to asynchronous runs. A bad message is logged and skipped, never fatal.
type Consumer struct {
	brokers []string
	groupID string
	topics  []string

	engine     *engine.Engine
	registries repository.RegistryStore
	metrics    *observability.Metrics
	logger     Logger

	mu     sync.Mutex
	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a Consumer for the given topics. metrics and logger may
// be nil.
func NewConsumer(brokers []string, groupID string, topics []string, eng *engine.Engine, registries repository.RegistryStore, metrics *observability.Metrics, logger Logger) *Consumer {
	return &Consumer{
		brokers:    brokers,
		groupID:    groupID,
		topics:     topics,
		engine:     eng,
		registries: registries,
		metrics:    metrics,
		logger:     logger,
	}
}

// TopicsForTriggers derives the CDC topic list from the active change-capture
// triggers: <prefix>.<table_name> per trigger, or an explicit topic property.
func TopicsForTriggers(ctx context.Context, registries repository.RegistryStore, prefix string) ([]string, error) {
	triggers, err := registries.ListTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}

	seen := make(map[string]struct{})
	var topics []string
	add := func(topic string) {
		if topic == "" {
			return
		}
		if _, ok := seen[topic]; ok {
			return
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}

	for _, t := range triggers {
		if !t.IsActive || t.EventSource != models.EventSourceDebezium {
			continue
		}
		if topic, ok := t.Properties["topic"].(string); ok && topic != "" {
			add(topic)
			continue
		}
		if table, ok := t.Properties["table_name"].(string); ok && table != "" && prefix != "" {
			add(prefix + "." + table)
		}
	}
	return topics, nil
}

// Start connects the consumer group and begins consuming until Stop or ctx
// cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.topics) == 0 {
		return fmt.Errorf("no CDC topics to consume")
	}

	cfg := sarama.NewConfig()
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.group = group
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	handler := &groupHandler{consumer: c}
	go func() {
		defer close(done)
		for {
			if err := group.Consume(consumeCtx, c.topics, handler); err != nil {
				c.error("consumer group error", "error", err)
			}
			if consumeCtx.Err() != nil {
				return
			}
		}
	}()

	c.info("CDC consumer started", "brokers", c.brokers, "group_id", c.groupID, "topics", c.topics)
	return nil
}

// Stop cancels consumption and closes the group.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	cancel, group, done := c.cancel, c.group, c.done
	c.cancel, c.group, c.done = nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if group != nil {
		if err := group.Close(); err != nil {
			return fmt.Errorf("close consumer group: %w", err)
		}
	}
	c.info("CDC consumer stopped")
	return nil
}

// groupHandler implements sarama.ConsumerGroupHandler. The trigger list is
// snapshotted once per rebalance; new triggers apply on the next session.
type groupHandler struct {
	consumer    *Consumer
	triggerKeys []string
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	triggers, err := h.consumer.registries.ListTriggers(session.Context())
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}
	h.triggerKeys = h.triggerKeys[:0]
	for _, t := range triggers {
		if t.IsActive && t.EventSource == models.EventSourceDebezium {
			h.triggerKeys = append(h.triggerKeys, t.Key)
		}
	}
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.consumer.handleMessage(session.Context(), msg, h.triggerKeys)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage, triggerKeys []string) {
	c.metrics.EventConsumed(ctx)

	if len(msg.Value) == 0 {
		// tombstone after a delete; nothing to match
		c.metrics.EventDropped(ctx)
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(msg.Value, &raw); err != nil {
		c.warn("dropping undecodable change event", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		c.metrics.EventDropped(ctx)
		return
	}

	ev := event.FromCDC(raw, msg.Topic, c.logger)
	if ev == nil {
		c.metrics.EventDropped(ctx)
		return
	}

	for _, key := range triggerKeys {
		outcome := c.engine.ProcessTriggerEvent(ctx, key, ev)
		if outcome.Error != "" {
			c.error("trigger processing failed", "trigger_key", key, "topic", msg.Topic, "error", outcome.Error)
			continue
		}
		if outcome.WorkflowsTriggered > 0 {
			c.info("change event triggered workflows", "trigger_key", key, "table", ev.Table, "workflows", outcome.WorkflowsTriggered)
		}
	}
}

func (c *Consumer) info(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Consumer) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Consumer) error(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}

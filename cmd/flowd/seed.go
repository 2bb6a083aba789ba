package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"flowhook/backend/internal/logging"
	"flowhook/backend/internal/repository"
	"flowhook/backend/pkg/models"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the registries and a demo workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			pool, err := initDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repository.Migrate(ctx, pool); err != nil {
				return err
			}

			return runSeed(ctx, repository.NewPostgresStore(pool), logger)
		},
	}
}

// runSeed is idempotent: existing registry keys and workflow names are left
// untouched so it can run on every deploy.
func runSeed(ctx context.Context, store repository.Repository, logger *logging.Logger) error {
	triggers := []*models.TriggerRegistry{
		{
			Key:         "customers-changed",
			Name:        "Customer record changed",
			Description: "Fires on change-capture events from the customers table",
			EventSource: models.EventSourceDebezium,
			Properties:  models.JSONMap{"table_name": "customers"},
			IsActive:    true,
		},
		{
			Key:         "order-received",
			Name:        "Order webhook",
			Description: "Fires when an external shop posts an order",
			EventSource: models.EventSourceWebhook,
			Properties: models.JSONMap{
				"methods":    []any{"POST"},
				"table_name": "orders",
			},
			IsActive: true,
		},
	}
	for _, t := range triggers {
		if _, err := store.GetTriggerByKey(ctx, t.Key); err == nil {
			logger.Info("Skipping existing trigger", "key", t.Key)
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := store.CreateTrigger(ctx, t); err != nil {
			return err
		}
		logger.Info("Seeded trigger", "key", t.Key)
	}

	actions := []*models.ActionRegistry{
		{
			Key:           "create_task",
			Name:          "Create task",
			Description:   "Creates a follow-up task",
			Category:      "task_management",
			ExecutionType: models.ExecutionTypeInternal,
			IsActive:      true,
		},
		{
			Key:           "send_notification",
			Name:          "Send notification",
			Description:   "Notifies a channel about an event",
			Category:      "communication",
			ExecutionType: models.ExecutionTypeInternal,
			IsActive:      true,
		},
	}
	for _, a := range actions {
		if _, err := store.GetActionByKey(ctx, a.Key); err == nil {
			logger.Info("Skipping existing action", "key", a.Key)
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := store.CreateAction(ctx, a); err != nil {
			return err
		}
		logger.Info("Seeded action", "key", a.Key)
	}

	// Demo workflow: create a setup task when a customer becomes active
	const demoName = "Customer activation follow-up"
	existing, err := store.ListWorkflows(ctx)
	if err != nil {
		return err
	}
	for _, wf := range existing {
		if wf.Name == demoName {
			logger.Info("Skipping existing workflow", "name", demoName)
			logger.Info("Seeding complete!")
			return nil
		}
	}

	wf := &models.WorkflowDefinition{
		Name:        demoName,
		Description: "Creates a setup task whenever a customer flips to active.",
		IsActive:    true,
		CreatedBy:   "seed",
	}
	if err := store.CreateWorkflow(ctx, wf); err != nil {
		return err
	}

	steps := []*models.WorkflowStep{
		{
			Name:      "setup_task",
			Kind:      models.StepKindAction,
			ActionKey: "create_task",
			Config: models.JSONMap{
				"title":      "Setup: {{trigger.after.name}}",
				"entityType": "customer",
				"dueDate":    "+1d",
			},
		},
	}
	if err := store.CreateVersion(ctx, &models.WorkflowVersion{WorkflowID: wf.ID}, steps, nil); err != nil {
		return err
	}

	sub := &models.Subscription{
		WorkflowID: wf.ID,
		TriggerKey: "customers-changed",
		FilterConditions: &models.FilterNode{
			Combinator: models.CombinatorAnd,
			Conditions: []*models.FilterNode{
				{Variable: "operation", Operator: models.OpEquals, Value: "UPDATE"},
				{Variable: "after.is_active", Operator: models.OpEquals, Value: true},
				{Variable: "before.is_active", Operator: models.OpEquals, Value: false},
			},
		},
		IsActive: true,
	}
	if err := store.CreateSubscription(ctx, sub); err != nil {
		return err
	}
	logger.Info("Seeded workflow", "name", demoName, "id", wf.ID)

	logger.Info("Seeding complete!")
	return nil
}

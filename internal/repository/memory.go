package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowhook/backend/pkg/models"
)

// MemoryStore is a mutex-guarded in-memory Repository. It backs the engine
// tests and local development without Postgres.
type MemoryStore struct {
	mu sync.RWMutex

	workflows     map[string]*models.WorkflowDefinition
	versions      map[string]*models.WorkflowVersion
	steps         map[string][]*models.WorkflowStep // by version id
	edges         map[string][]*models.WorkflowEdge // by version id
	triggers      map[string]*models.TriggerRegistry
	actions       map[string]*models.ActionRegistry
	subscriptions []*models.Subscription
	runs          map[string]*models.WorkflowRun
	stepRuns      map[string][]*models.StepRun // by run id, in creation order
	tasks         map[string]*models.Task
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*models.WorkflowDefinition),
		versions:  make(map[string]*models.WorkflowVersion),
		steps:     make(map[string][]*models.WorkflowStep),
		edges:     make(map[string][]*models.WorkflowEdge),
		triggers:  make(map[string]*models.TriggerRegistry),
		actions:   make(map[string]*models.ActionRegistry),
		runs:      make(map[string]*models.WorkflowRun),
		stepRuns:  make(map[string][]*models.StepRun),
		tasks:     make(map[string]*models.Task),
	}
}

var _ Repository = (*MemoryStore)(nil)

func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	copied := *wf
	return &copied, nil
}

func (s *MemoryStore) ListWorkflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.WorkflowDefinition, 0, len(s.workflows))
	for _, wf := range s.workflows {
		copied := *wf
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateWorkflow(ctx context.Context, wf *models.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	wf.CreatedAt, wf.UpdatedAt = now, now
	copied := *wf
	s.workflows[wf.ID] = &copied
	return nil
}

func (s *MemoryStore) SaveWorkflow(ctx context.Context, wf *models.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; !ok {
		return fmt.Errorf("workflow %s: %w", wf.ID, ErrNotFound)
	}
	wf.UpdatedAt = time.Now().UTC()
	copied := *wf
	s.workflows[wf.ID] = &copied
	return nil
}

func (s *MemoryStore) CreateVersion(ctx context.Context, ver *models.WorkflowVersion, steps []*models.WorkflowStep, edges []*models.WorkflowEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[ver.WorkflowID]
	if !ok {
		return fmt.Errorf("workflow %s: %w", ver.WorkflowID, ErrNotFound)
	}

	if ver.ID == "" {
		ver.ID = uuid.New().String()
	}
	if ver.Version == 0 {
		max := 0
		for _, existing := range s.versions {
			if existing.WorkflowID == ver.WorkflowID && existing.Version > max {
				max = existing.Version
			}
		}
		ver.Version = max + 1
	}
	for _, existing := range s.versions {
		if existing.WorkflowID == ver.WorkflowID {
			existing.IsLatest = false
		}
	}
	ver.IsLatest = true
	ver.CreatedAt = time.Now().UTC()

	for i, step := range steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
		step.VersionID = ver.ID
		if step.StepOrder == 0 {
			step.StepOrder = i + 1
		}
		step.CreatedAt = ver.CreatedAt
		copied := *step
		s.steps[ver.ID] = append(s.steps[ver.ID], &copied)
	}
	for _, edge := range edges {
		if edge.ID == "" {
			edge.ID = uuid.New().String()
		}
		edge.VersionID = ver.ID
		if edge.BranchKey == "" {
			edge.BranchKey = models.DefaultBranchKey
		}
		copied := *edge
		s.edges[ver.ID] = append(s.edges[ver.ID], &copied)
	}

	if ver.RootStepID == "" && len(steps) > 0 {
		ver.RootStepID = steps[0].ID
	}

	copied := *ver
	s.versions[ver.ID] = &copied

	wf.LatestVerID = ver.ID
	wf.UpdatedAt = ver.CreatedAt
	return nil
}

func (s *MemoryStore) GetVersion(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ver, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	copied := *ver
	return &copied, nil
}

func (s *MemoryStore) ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.WorkflowVersion
	for _, ver := range s.versions {
		if ver.WorkflowID == workflowID {
			copied := *ver
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *MemoryStore) SetRootStep(ctx context.Context, versionID, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ver, ok := s.versions[versionID]
	if !ok {
		return fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	ver.RootStepID = stepID
	return nil
}

func (s *MemoryStore) ListSteps(ctx context.Context, versionID string) ([]*models.WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := s.steps[versionID]
	out := make([]*models.WorkflowStep, len(steps))
	for i, step := range steps {
		copied := *step
		out[i] = &copied
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StepOrder != out[j].StepOrder {
			return out[i].StepOrder < out[j].StepOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) ListEdges(ctx context.Context, versionID string) ([]*models.WorkflowEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edges := s.edges[versionID]
	out := make([]*models.WorkflowEdge, len(edges))
	for i, edge := range edges {
		copied := *edge
		out[i] = &copied
	}
	return out, nil
}

func (s *MemoryStore) GetTriggerByKey(ctx context.Context, key string) (*models.TriggerRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.triggers[key]
	if !ok {
		return nil, fmt.Errorf("trigger %s: %w", key, ErrNotFound)
	}
	copied := *t
	return &copied, nil
}

func (s *MemoryStore) ListTriggers(ctx context.Context) ([]*models.TriggerRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TriggerRegistry, 0, len(s.triggers))
	for _, t := range s.triggers {
		copied := *t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) CreateTrigger(ctx context.Context, t *models.TriggerRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()
	copied := *t
	s.triggers[t.Key] = &copied
	return nil
}

func (s *MemoryStore) GetActionByKey(ctx context.Context, key string) (*models.ActionRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[key]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", key, ErrNotFound)
	}
	copied := *a
	return &copied, nil
}

func (s *MemoryStore) ListActions(ctx context.Context) ([]*models.ActionRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ActionRegistry, 0, len(s.actions))
	for _, a := range s.actions {
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) CreateAction(ctx context.Context, a *models.ActionRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	copied := *a
	s.actions[a.Key] = &copied
	return nil
}

func (s *MemoryStore) ListActiveByTriggerKey(ctx context.Context, triggerKey string) ([]*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Subscription
	for _, sub := range s.subscriptions {
		if sub.TriggerKey == triggerKey && sub.IsActive {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Subscription
	for _, sub := range s.subscriptions {
		if sub.WorkflowID == workflowID {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.CreatedAt = time.Now().UTC()
	copied := *sub
	s.subscriptions = append(s.subscriptions, &copied)
	return nil
}

func (s *MemoryStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.subscriptions {
		if existing.ID == sub.ID {
			copied := *sub
			s.subscriptions[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("subscription %s: %w", sub.ID, ErrNotFound)
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *MemoryStore) SaveRun(ctx context.Context, run *models.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	copied := *run
	return &copied, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.WorkflowRun
	for _, run := range s.runs {
		if workflowID == "" || run.WorkflowID == workflowID {
			copied := *run
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateStepRun(ctx context.Context, sr *models.StepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr.ID == "" {
		sr.ID = uuid.New().String()
	}
	if sr.StartedAt.IsZero() {
		sr.StartedAt = time.Now().UTC()
	}
	for _, existing := range s.stepRuns[sr.RunID] {
		if existing.StepID == sr.StepID {
			return fmt.Errorf("step run for (%s, %s) already exists", sr.RunID, sr.StepID)
		}
	}
	copied := *sr
	s.stepRuns[sr.RunID] = append(s.stepRuns[sr.RunID], &copied)
	return nil
}

func (s *MemoryStore) SaveStepRun(ctx context.Context, sr *models.StepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.stepRuns[sr.RunID] {
		if existing.ID == sr.ID {
			copied := *sr
			s.stepRuns[sr.RunID][i] = &copied
			return nil
		}
	}
	return fmt.Errorf("step run %s: %w", sr.ID, ErrNotFound)
}

func (s *MemoryStore) ListStepRuns(ctx context.Context, runID string) ([]*models.StepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stepRuns := s.stepRuns[runID]
	out := make([]*models.StepRun, len(stepRuns))
	for i, sr := range stepRuns {
		copied := *sr
		out[i] = &copied
	}
	return out, nil
}

func (s *MemoryStore) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *MemoryStore) SaveTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return fmt.Errorf("task %s: %w", task.ID, ErrNotFound)
	}
	task.UpdatedAt = time.Now().UTC()
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	copied := *task
	return &copied, nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, entityType string, limit int) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Task
	for _, task := range s.tasks {
		if entityType == "" || task.EntityType == entityType {
			copied := *task
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

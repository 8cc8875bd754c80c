package registry

import (
	"fmt"
	"sync"

	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

// Observer is notified with the resulting task after every registry mutation.
type Observer func(task model.Task)

// Config is the configuration for the task registry.
type Config struct {
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "registry.Registry"})
	return nil
}

// Registry is the in-memory store of the known tasks.
//
// All mutations are serialized. Observers are called outside the lock, one
// mutation at a time and in the same order the mutations happened. Mutations
// made by an observer are queued and notified after the current ones.
type Registry struct {
	mu        sync.Mutex
	tasks     map[string]model.Task
	order     []string
	observers []Observer
	pending   []model.Task
	flushing  bool
	logger    log.Logger
}

// New returns a new empty registry.
func New(cfg Config) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Registry{
		tasks:  map[string]model.Task{},
		logger: cfg.Logger,
	}, nil
}

// Subscribe registers an observer for every future mutation.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Merge applies a partial update to a task, creating it with the defaults if unseen.
func (r *Registry) Merge(id string, u model.TaskUpdate) (model.Task, error) {
	if id == "" {
		return model.Task{}, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		t = model.NewTask(id)
		r.order = append(r.order, id)
		r.logger.Debugf("Task %s created by update", id)
	}
	t = t.Apply(u)
	r.tasks[id] = t
	r.pending = append(r.pending, t)
	r.mu.Unlock()

	r.flush()
	return t, nil
}

// MergeIfActive applies a partial update only when the task is known and not in a
// terminal status at merge time. It returns false when the update was skipped.
func (r *Registry) MergeIfActive(id string, u model.TaskUpdate) (model.Task, bool, error) {
	if id == "" {
		return model.Task{}, false, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		r.mu.Unlock()
		return t, false, nil
	}
	t = t.Apply(u)
	r.tasks[id] = t
	r.pending = append(r.pending, t)
	r.mu.Unlock()

	r.flush()
	return t, true, nil
}

// SeedPlaceholder inserts the initial task only if the ID is unknown.
// It returns true when the task was inserted.
func (r *Registry) SeedPlaceholder(id string, initial model.Task) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	if _, ok := r.tasks[id]; ok {
		r.mu.Unlock()
		r.logger.Debugf("Task %s already known, placeholder ignored", id)
		return false, nil
	}
	initial.ID = id
	if initial.Status == "" {
		initial.Status = model.TaskStatusQueued
	}
	r.tasks[id] = initial
	r.order = append(r.order, id)
	r.pending = append(r.pending, initial)
	r.mu.Unlock()

	r.logger.Debugf("Task %s seeded", id)
	r.flush()
	return true, nil
}

// Get returns a task by ID.
func (r *Registry) Get(id string) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	return t, nil
}

// ListAll returns a snapshot of all the tasks in the order they were first seen.
func (r *Registry) ListAll() []model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := make([]model.Task, 0, len(r.order))
	for _, id := range r.order {
		tasks = append(tasks, r.tasks[id])
	}
	return tasks
}

// ActiveIDs returns the IDs of the tasks that are not in a terminal status.
func (r *Registry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, id := range r.order {
		if !r.tasks[id].Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Stats returns aggregated stats of the current tasks.
func (r *Registry) Stats() model.TaskStats {
	return model.ComputeTaskStats(r.ListAll())
}

// MarkRetrieved sets the retrieved flag of a task, it's idempotent.
func (r *Registry) MarkRetrieved(id string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	if t.Retrieved {
		r.mu.Unlock()
		return nil
	}
	t.Retrieved = true
	r.tasks[id] = t
	r.pending = append(r.pending, t)
	r.mu.Unlock()

	r.logger.Debugf("Task %s marked as retrieved", id)
	r.flush()
	return nil
}

// ClaimRetrieval atomically marks a retrievable task as retrieved and returns
// its filename. Only one caller per task will ever get ok=true.
func (r *Registry) ClaimRetrieval(id string) (filename string, ok bool) {
	r.mu.Lock()
	t, exists := r.tasks[id]
	if !exists || !t.Retrievable() {
		r.mu.Unlock()
		return "", false
	}
	t.Retrieved = true
	r.tasks[id] = t
	r.pending = append(r.pending, t)
	r.mu.Unlock()

	r.logger.Debugf("Task %s claimed for retrieval", id)
	r.flush()
	return t.Filename, true
}

// flush delivers the pending notifications. Only one goroutine delivers at a
// time, the rest leave their notifications queued for it.
func (r *Registry) flush() {
	r.mu.Lock()
	if r.flushing {
		r.mu.Unlock()
		return
	}
	r.flushing = true

	for len(r.pending) > 0 {
		batch := r.pending
		r.pending = nil
		observers := append([]Observer(nil), r.observers...)
		r.mu.Unlock()

		for _, t := range batch {
			for _, o := range observers {
				o(t)
			}
		}

		r.mu.Lock()
	}

	r.flushing = false
	r.mu.Unlock()
}

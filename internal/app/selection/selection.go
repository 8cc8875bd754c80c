package selection

import (
	"context"
	"fmt"
	"sync"

	"github.com/tuberip/tuberip/internal/app/browse"
	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

// QueuedTitle is the title of the placeholder tasks of a batch.
const QueuedTitle = "Queued Video"

// PageSource is the browse view the selection is scoped to.
type PageSource interface {
	View() model.View
	Subscribe(o browse.ViewObserver)
}

// BatchBackend submits batches and probes formats.
type BatchBackend interface {
	SubmitBatch(ctx context.Context, req backend.SubmitBatchRequest) ([]string, error)
	ProbeFormats(ctx context.Context, urls []string) ([]model.FormatProbe, error)
}

// TaskSeeder seeds placeholder tasks.
type TaskSeeder interface {
	SeedPlaceholder(id string, initial model.Task) (bool, error)
}

// SessionIDFunc returns the current event channel session ID, empty if not connected.
type SessionIDFunc func() string

// ServiceConfig is the configuration of the selection service.
type ServiceConfig struct {
	Pages     PageSource
	Backend   BatchBackend
	Registry  TaskSeeder
	SessionID SessionIDFunc
	Logger    log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Pages == nil {
		return fmt.Errorf("page source is required")
	}
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.SessionID == nil {
		c.SessionID = func() string { return "" }
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Selection"})
	return nil
}

// Service tracks the selected items of the browsed source and dispatches them as a batch.
// The selection never holds items of another browse session.
type Service struct {
	pages     PageSource
	backend   BatchBackend
	registry  TaskSeeder
	sessionID SessionIDFunc
	logger    log.Logger

	mu      sync.Mutex
	session uint64
	source  string
	order   []string
	urls    map[string]string
}

// NewService returns a new selection service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Service{
		pages:     cfg.Pages,
		backend:   cfg.Backend,
		registry:  cfg.Registry,
		sessionID: cfg.SessionID,
		logger:    cfg.Logger,
		urls:      map[string]string{},
	}
	cfg.Pages.Subscribe(s.onView)

	return s, nil
}

func (s *Service) onView(v model.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(v)
}

// scope clears the selection when the view belongs to another session or source.
// Must be called with the lock held.
func (s *Service) scope(v model.View) {
	if v.Session == s.session && v.Page.SourceURL == s.source {
		return
	}
	if len(s.order) > 0 {
		s.logger.Debugf("Browse source changed, clearing %d selected items", len(s.order))
	}
	s.session = v.Session
	s.source = v.Page.SourceURL
	s.clear()
}

func (s *Service) clear() {
	s.order = nil
	s.urls = map[string]string{}
}

// Toggle flips the selection of an item of the current page.
// It returns true when the item ends selected.
func (s *Service) Toggle(itemID string) (bool, error) {
	v := s.pages.View()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(v)

	if _, ok := s.urls[itemID]; ok {
		s.remove(itemID)
		return false, nil
	}

	it, ok := v.Page.Item(itemID)
	if !ok {
		return false, fmt.Errorf("item %q is not on the current page: %w", itemID, model.ErrNotFound)
	}
	s.add(it)
	return true, nil
}

// SelectAll selects every item of the current page, or clears the selection if all
// of them are already selected. It returns the number of selected items.
func (s *Service) SelectAll() int {
	v := s.pages.View()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(v)

	all := len(v.Page.Items) > 0
	for _, it := range v.Page.Items {
		if _, ok := s.urls[it.ID]; !ok {
			all = false
			break
		}
	}

	s.clear()
	if all {
		return 0
	}
	for _, it := range v.Page.Items {
		s.add(it)
	}
	return len(s.order)
}

// Clear drops the selection.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

// Selected returns the selected item IDs in selection order.
func (s *Service) Selected() []string {
	v := s.pages.View()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(v)
	return append([]string{}, s.order...)
}

// IsSelected returns true if the item is selected.
func (s *Service) IsSelected(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.urls[itemID]
	return ok
}

func (s *Service) add(it model.Item) {
	if _, ok := s.urls[it.ID]; ok {
		return
	}
	s.urls[it.ID] = it.URL
	s.order = append(s.order, it.ID)
}

func (s *Service) remove(id string) {
	delete(s.urls, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Service) selectedURLs() ([]string, []string) {
	v := s.pages.View()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(v)

	ids := append([]string{}, s.order...)
	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		urls = append(urls, s.urls[id])
	}
	return ids, urls
}

// DispatchBatch submits one download per selected item with the quality cap and
// seeds a queued placeholder per returned task, in the returned order. On success the
// selection is cleared, on failure it's kept.
func (s *Service) DispatchBatch(ctx context.Context, quality model.QualityCap) ([]string, error) {
	ids, urls := s.selectedURLs()
	if len(urls) == 0 {
		return nil, model.ErrEmptySelection
	}

	taskIDs, err := s.backend.SubmitBatch(ctx, backend.SubmitBatchRequest{
		URLs:       urls,
		QualityCap: quality,
		SessionID:  s.sessionID(),
	})
	if err != nil {
		return nil, fmt.Errorf("could not submit batch: %w", err)
	}
	if len(taskIDs) != len(urls) {
		s.logger.Warningf("Batch of %d items returned %d tasks", len(urls), len(taskIDs))
	}

	for _, id := range taskIDs {
		_, err := s.registry.SeedPlaceholder(id, model.Task{
			Status:   model.TaskStatusQueued,
			Progress: 0,
			Title:    QueuedTitle,
		})
		if err != nil {
			s.logger.Warningf("Could not seed task %q: %s", id, err)
		}
	}

	s.mu.Lock()
	for _, id := range ids {
		s.remove(id)
	}
	s.mu.Unlock()

	s.logger.Infof("Batch of %d items dispatched (quality %s)", len(taskIDs), quality)
	return taskIDs, nil
}

// ProbeSelected returns the maximum available resolution of every selected item.
func (s *Service) ProbeSelected(ctx context.Context) ([]model.FormatProbe, error) {
	_, urls := s.selectedURLs()
	if len(urls) == 0 {
		return nil, model.ErrEmptySelection
	}

	probes, err := s.backend.ProbeFormats(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("could not probe formats: %w", err)
	}
	return probes, nil
}

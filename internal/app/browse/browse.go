package browse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

// ErrSuperseded is returned when a fetch result was discarded because a newer fetch was issued.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// Resolver resolves a URL page.
type Resolver interface {
	Resolve(ctx context.Context, req model.ResolveRequest) (*model.ResolveResult, error)
}

// ViewObserver is notified with a snapshot of the view after every change.
type ViewObserver func(v model.View)

// ControllerConfig is the configuration of the browse controller.
type ControllerConfig struct {
	Resolver Resolver
	Logger   log.Logger
}

func (c *ControllerConfig) defaults() error {
	if c.Resolver == nil {
		return fmt.Errorf("resolver is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Browse"})
	return nil
}

// Controller is the browse state machine of the submitted URL.
//
//	Idle --SubmitURL--> AwaitingFirstPage --AutoLoad--> Loading --ok--> Loaded
//	Loading --err--> Error
//	Loaded|Error --FetchPage/Next/Previous/SwitchTab--> Loading
//
// Every fetch gets a sequence number, only the response of the latest issued
// fetch is applied.
type Controller struct {
	resolver Resolver
	logger   log.Logger

	mu        sync.Mutex
	view      model.View
	loaded    *model.CollectionPage
	seq       uint64
	observers []ViewObserver
}

// NewController returns a new browse controller in idle state.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Controller{
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
		view:     model.View{State: model.BrowseStateIdle},
	}, nil
}

// Subscribe registers an observer of the view changes.
func (c *Controller) Subscribe(o ViewObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// View returns a snapshot of the current view.
func (c *Controller) View() model.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(c.view)
}

// Page returns a snapshot of the current collection page.
func (c *Controller) Page() model.CollectionPage {
	return c.View().Page
}

// SubmitURL starts a new browse session for the URL. The first page is not fetched
// until AutoLoad is called.
func (c *Controller) SubmitURL(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("url is required: %w", model.ErrNotValid)
	}

	c.mu.Lock()
	c.seq++
	c.loaded = nil
	c.view = model.View{
		Session: c.view.Session + 1,
		State:   model.BrowseStateAwaitingFirstPage,
		Page: model.CollectionPage{
			SourceURL: url,
			Kind:      model.CollectionKindChannel,
			Tab:       model.TabVideos,
			Page:      1,
			Items:     []model.Item{},
			IsLoading: true,
		},
	}
	v := snapshot(c.view)
	c.mu.Unlock()

	c.logger.Debugf("Browse session %d started for %s", v.Session, url)
	c.notify(v)
	return nil
}

// AutoLoad fetches the first page of a just submitted URL. It only fetches once per
// session, it returns false when there was nothing to load.
func (c *Controller) AutoLoad(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.view.State != model.BrowseStateAwaitingFirstPage {
		c.mu.Unlock()
		return false, nil
	}
	url := c.view.Page.SourceURL
	seq, v := c.begin(url, 1, model.TabVideos)
	c.mu.Unlock()

	c.notify(v)
	return true, c.fetch(ctx, seq, model.ResolveRequest{URL: url, Page: 1, Tab: model.TabVideos})
}

// FetchPage fetches a page of a URL tab, superseding any fetch in flight.
func (c *Controller) FetchPage(ctx context.Context, url string, page int, tab model.Tab) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("url is required: %w", model.ErrNotValid)
	}
	if page < 1 {
		return fmt.Errorf("page must be 1 or greater: %w", model.ErrNotValid)
	}
	if !tab.Valid() {
		return fmt.Errorf("unknown tab %q: %w", tab, model.ErrNotValid)
	}

	c.mu.Lock()
	seq, v := c.begin(url, page, tab)
	c.mu.Unlock()

	c.notify(v)
	return c.fetch(ctx, seq, model.ResolveRequest{URL: url, Page: page, Tab: tab})
}

// Next fetches the next page, only if the current page has more.
func (c *Controller) Next(ctx context.Context) error {
	p := c.Page()
	if p.SourceURL == "" {
		return model.ErrNoSource
	}
	if !p.HasMore {
		return model.ErrNoNextPage
	}
	return c.FetchPage(ctx, p.SourceURL, p.Page+1, p.Tab)
}

// Previous fetches the previous page, only if it exists.
func (c *Controller) Previous(ctx context.Context) error {
	p := c.Page()
	if p.SourceURL == "" {
		return model.ErrNoSource
	}
	if p.Page-1 < 1 {
		return model.ErrNoPreviousPage
	}
	return c.FetchPage(ctx, p.SourceURL, p.Page-1, p.Tab)
}

// SwitchTab fetches the first page of another tab. Switching to the current tab does nothing.
func (c *Controller) SwitchTab(ctx context.Context, tab model.Tab) error {
	if !tab.Valid() {
		return fmt.Errorf("unknown tab %q: %w", tab, model.ErrNotValid)
	}
	p := c.Page()
	if p.SourceURL == "" {
		return model.ErrNoSource
	}
	if p.Tab == tab {
		return nil
	}
	return c.FetchPage(ctx, p.SourceURL, 1, tab)
}

// begin records the requested navigation optimistically. Must be called with the lock held.
func (c *Controller) begin(url string, page int, tab model.Tab) (uint64, model.View) {
	c.seq++
	c.view.State = model.BrowseStateLoading
	c.view.Page.SourceURL = url
	c.view.Page.Page = page
	c.view.Page.Tab = tab
	c.view.Page.IsLoading = true
	c.view.Page.Err = ""
	return c.seq, snapshot(c.view)
}

func (c *Controller) fetch(ctx context.Context, seq uint64, req model.ResolveRequest) error {
	res, err := c.resolver.Resolve(ctx, req)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		c.logger.Debugf("Discarding stale response of %s page %d tab %s", req.URL, req.Page, req.Tab)
		return ErrSuperseded
	}

	if err == nil && res == nil {
		err = fmt.Errorf("empty resolve result")
	}

	if err != nil {
		// Keep what is already displayed.
		if c.loaded != nil {
			c.view.Page = *c.loaded
		}
		c.view.Page.IsLoading = false
		c.view.Page.Err = err.Error()
		c.view.State = model.BrowseStateError
		v := snapshot(c.view)
		c.mu.Unlock()

		c.logger.Warningf("Could not fetch %s page %d tab %s: %s", req.URL, req.Page, req.Tab, err)
		c.notify(v)
		return fmt.Errorf("could not fetch page: %w", err)
	}

	switch {
	case res.Single != nil:
		single := *res.Single
		c.view.Single = &single
		c.view.Page = model.CollectionPage{
			SourceURL: req.URL,
			Kind:      model.CollectionKindSingleItem,
			Title:     single.Title,
			Tab:       req.Tab,
			Page:      req.Page,
			Items:     []model.Item{},
		}
		loaded := snapshot(c.view).Page
		c.loaded = &loaded
	case res.Collection != nil:
		page := *res.Collection
		page.SourceURL = req.URL
		page.Page = req.Page
		page.Tab = req.Tab
		page.IsLoading = false
		page.Err = ""
		if page.Items == nil {
			page.Items = []model.Item{}
		}
		c.view.Single = nil
		c.view.Page = page
		loaded := snapshot(c.view).Page
		c.loaded = &loaded
	}
	c.view.State = model.BrowseStateLoaded
	v := snapshot(c.view)
	c.mu.Unlock()

	c.notify(v)
	return nil
}

func (c *Controller) notify(v model.View) {
	c.mu.Lock()
	observers := append([]ViewObserver(nil), c.observers...)
	c.mu.Unlock()

	for _, o := range observers {
		o(v)
	}
}

func snapshot(v model.View) model.View {
	if v.Page.Items != nil {
		v.Page.Items = append([]model.Item{}, v.Page.Items...)
	}
	if v.Single != nil {
		single := *v.Single
		single.Formats = append([]model.Format(nil), single.Formats...)
		v.Single = &single
	}
	return v
}

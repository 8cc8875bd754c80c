package lib

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tuberip/tuberip/internal/app/single"
	"github.com/tuberip/tuberip/internal/artifact"
	"github.com/tuberip/tuberip/internal/conventions"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/session"
	"github.com/tuberip/tuberip/internal/storage"
	"github.com/tuberip/tuberip/internal/storage/sqlite"
)

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} uses the stored backend address (or
// http://localhost:5000), ~/.tuberip/tuberip.db and stores the files on ./downloads.
type Config struct {
	// Endpoint is the backend address, it takes precedence over the stored one.
	Endpoint string

	// DBPath is the SQLite database path with the settings and the download history.
	// Default: ~/.tuberip/tuberip.db.
	DBPath string

	// OutputDir is the directory where the retrieved files are stored.
	// Default: downloads.
	OutputDir string

	// RequestTimeout bounds every backend request. Default: 2m.
	RequestTimeout time.Duration

	// HTTPClient is used for the backend requests. Default: a new client.
	HTTPClient *http.Client

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(conventions.DataDir())
	}
	if c.OutputDir == "" {
		c.OutputDir = conventions.DefaultDownloadsDir
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// Client is the main SDK entry point.
//
// Create a Client with [New], call [Client.Start] to receive the task events and
// release its resources with [Client.Close].
type Client struct {
	repo    *sqlite.Repository
	session *session.Session
	logger  log.Logger

	// mu serializes the browse and selection operations.
	mu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new SDK client, it doesn't connect to the backend until Start is called.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint, err = repo.GetSetting(ctx, storage.SettingEndpoint)
		switch {
		case errors.Is(err, model.ErrNotFound):
			endpoint = conventions.DefaultEndpoint
		case err != nil:
			repo.Close()
			return nil, fmt.Errorf("could not get stored endpoint: %w", err)
		}
	}

	sink, err := artifact.NewLocalSink(artifact.LocalSinkConfig{
		Dir:    cfg.OutputDir,
		Logger: cfg.Logger,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("could not create artifact sink: %w", err)
	}

	c := &Client{repo: repo, logger: cfg.Logger}
	c.session, err = session.New(session.Config{
		Endpoint:       endpoint,
		Sink:           sink,
		HTTPClient:     cfg.HTTPClient,
		RequestTimeout: cfg.RequestTimeout,
		OnRetrieved:    c.recordDownload,
		Logger:         cfg.Logger,
	})
	if err != nil {
		repo.Close()
		return nil, mapError(fmt.Errorf("could not create session: %w", err))
	}

	return c, nil
}

// Start connects to the backend event stream in the background, it reconnects
// until the context ends or the client is closed. Calling it more than once has no effect.
func (c *Client) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.done != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		if err := c.session.Run(ctx); err != nil {
			c.logger.Errorf("Client session failed: %s", err)
		}
	}()
}

// Close stops the client session and releases its resources.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	c.runMu.Lock()
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	c.runMu.Unlock()

	return c.repo.Close()
}

func (c *Client) started() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.done != nil
}

// waitConnected waits for the event stream so the dispatched tasks report to this client.
func (c *Client) waitConnected(ctx context.Context) error {
	if !c.started() {
		return ErrNotStarted
	}
	if err := c.session.WaitConnected(ctx); err != nil {
		return fmt.Errorf("could not connect to the event stream: %w", err)
	}
	return nil
}

// Endpoint returns the backend address in use.
func (c *Client) Endpoint() string { return c.session.Endpoint() }

// SetEndpoint switches the backend and stores it for the next clients.
func (c *Client) SetEndpoint(ctx context.Context, endpoint string) error {
	if err := c.session.SetEndpoint(endpoint); err != nil {
		return mapError(err)
	}
	if err := c.repo.SetSetting(ctx, storage.SettingEndpoint, endpoint); err != nil {
		return fmt.Errorf("could not store endpoint: %w", err)
	}
	return nil
}

// Resolve resolves a URL into the first page of a playlist or channel, or a single item.
func (c *Client) Resolve(ctx context.Context, url string) (*Resolved, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.session.Browse()
	if err := b.SubmitURL(url); err != nil {
		return nil, mapError(err)
	}
	if _, err := b.AutoLoad(ctx); err != nil {
		return nil, mapError(fmt.Errorf("could not resolve %s: %w", url, err))
	}

	return fromInternalView(b.View()), nil
}

// Page fetches a page of a playlist or channel.
func (c *Client) Page(ctx context.Context, url string, page int, tab Tab) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.fetchPage(ctx, url, page, model.Tab(tab))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (c *Client) fetchPage(ctx context.Context, url string, page int, tab model.Tab) (*Page, error) {
	b := c.session.Browse()
	if b.Page().SourceURL != url {
		if err := b.SubmitURL(url); err != nil {
			return nil, err
		}
	}
	if err := b.FetchPage(ctx, url, page, tab); err != nil {
		return nil, fmt.Errorf("could not fetch %s page %d: %w", url, page, err)
	}

	v := b.View()
	if v.IsSingle() {
		return nil, fmt.Errorf("%s is a single item: %w", url, model.ErrNotValid)
	}
	return fromInternalPage(v.Page), nil
}

// showPage makes the page the browsed one, fetching it if needed.
func (c *Client) showPage(ctx context.Context, page *Page) error {
	if page == nil {
		return fmt.Errorf("page is required: %w", model.ErrNotValid)
	}

	cur := c.session.Browse().Page()
	if cur.SourceURL == page.SourceURL && cur.Page == page.Number && string(cur.Tab) == string(page.Tab) && !cur.IsLoading {
		return nil
	}
	_, err := c.fetchPage(ctx, page.SourceURL, page.Number, model.Tab(page.Tab))
	return err
}

// DownloadItems downloads items of a page on the maximum quality (`max`, `audio`, `720`...).
// It returns the task IDs in the same order as the item IDs.
func (c *Client) DownloadItems(ctx context.Context, page *Page, itemIDs []string, quality string) ([]string, error) {
	q, err := model.ParseQualityCap(quality)
	if err != nil {
		return nil, mapError(err)
	}
	if len(itemIDs) == 0 {
		return nil, ErrEmptySelection
	}
	if err := c.waitConnected(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.showPage(ctx, page); err != nil {
		return nil, mapError(err)
	}

	sel := c.session.Selection()
	sel.Clear()
	for _, id := range itemIDs {
		if sel.IsSelected(id) {
			continue
		}
		if _, err := sel.Toggle(id); err != nil {
			return nil, mapError(err)
		}
	}

	ids, err := sel.DispatchBatch(ctx, q)
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

// Download downloads a single item on one of its formats and returns the task ID.
func (c *Client) Download(ctx context.Context, item *SingleItem, formatID string) (string, error) {
	if item == nil {
		return "", fmt.Errorf("item is required: %w", ErrNotValid)
	}
	if err := c.waitConnected(ctx); err != nil {
		return "", err
	}

	id, err := c.session.Single().Dispatch(ctx, single.Request{
		URL:       item.URL,
		FormatID:  formatID,
		Title:     item.Title,
		Thumbnail: item.Thumbnail,
	})
	if err != nil {
		return "", mapError(err)
	}
	return id, nil
}

// Probe returns the maximum available resolution of every item of a page.
func (c *Client) Probe(ctx context.Context, page *Page) ([]FormatProbe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.showPage(ctx, page); err != nil {
		return nil, mapError(err)
	}

	sel := c.session.Selection()
	sel.Clear()
	if sel.SelectAll() == 0 {
		return nil, ErrEmptySelection
	}
	defer sel.Clear()

	probes, err := sel.ProbeSelected(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return fromInternalProbes(probes), nil
}

// Tasks returns every task known by the client, in the order they were first seen.
func (c *Client) Tasks() []Task {
	return fromInternalTasks(c.session.Registry().ListAll(), c.session.Retrievals())
}

// Wait blocks until every task failed or had its file retrieved and returns them.
func (c *Client) Wait(ctx context.Context, taskIDs []string) ([]Task, error) {
	if !c.started() {
		return nil, ErrNotStarted
	}
	if err := c.session.WaitTasks(ctx, taskIDs); err != nil {
		return nil, err
	}

	tasks := make([]model.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, err := c.session.Registry().Get(id)
		if err != nil {
			return nil, mapError(err)
		}
		tasks = append(tasks, t)
	}
	return fromInternalTasks(tasks, c.session.Retrievals()), nil
}

// History returns the download history, newest first. A limit <= 0 returns all.
func (c *Client) History(ctx context.Context, limit int) ([]Download, error) {
	ds, err := c.repo.ListDownloads(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list downloads: %w", err)
	}
	return fromInternalDownloads(ds), nil
}

func (c *Client) recordDownload(taskID, location string, retrievalErr error) {
	t, err := c.session.Registry().Get(taskID)
	if err != nil {
		t = model.NewTask(taskID)
	}

	d := model.DownloadRecord{
		TaskID:   taskID,
		Title:    t.Title,
		Filename: t.Filename,
		Location: location,
	}
	if retrievalErr != nil {
		d.Error = retrievalErr.Error()
	}

	if err := c.repo.RecordDownload(context.Background(), d); err != nil {
		c.logger.Warningf("Could not record download of task %s: %s", taskID, err)
	}
}

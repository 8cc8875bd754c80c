package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/events"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

// RequestIDHeader is the header used to correlate client and backend logs.
const RequestIDHeader = "X-Request-ID"

// EndpointFunc returns the currently active backend endpoint.
type EndpointFunc func() string

// ClientConfig is the configuration of the HTTP backend client.
type ClientConfig struct {
	// Endpoint is called on every request so endpoint changes apply to the next request.
	Endpoint EndpointFunc
	// HTTPClient is the HTTP client for API and file requests.
	HTTPClient *http.Client
	// RequestTimeout limits the API calls, file downloads are not limited.
	RequestTimeout time.Duration
	Logger         log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.Endpoint == nil {
		return fmt.Errorf("endpoint is required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.HTTP"})
	return nil
}

// Client is the HTTP JSON implementation of backend.Backend.
type Client struct {
	endpoint   EndpointFunc
	httpClient *http.Client
	timeout    time.Duration
	logger     log.Logger
}

var _ backend.Backend = &Client{}

// NewClient returns a new HTTP backend client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: cfg.HTTPClient,
		timeout:    cfg.RequestTimeout,
		logger:     cfg.Logger,
	}, nil
}

// --- JSON wire types ---

type infoRequestJSON struct {
	URL  string `json:"url"`
	Page int    `json:"page"`
	Tab  string `json:"tab"`
}

type infoResponseJSON struct {
	Type        string       `json:"type"`
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	CurrentTab  string       `json:"current_tab"`
	Page        int          `json:"page"`
	HasMore     bool         `json:"has_more"`
	Videos      []videoJSON  `json:"videos"`
	Thumbnail   string       `json:"thumbnail"`
	Duration    float64      `json:"duration"`
	OriginalURL string       `json:"original_url"`
	Formats     []formatJSON `json:"formats"`
}

type videoJSON struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	IsShort   bool    `json:"is_short"`
}

type formatJSON struct {
	FormatID       string  `json:"format_id"`
	Resolution     string  `json:"resolution"`
	Ext            string  `json:"ext"`
	FilesizeApprox float64 `json:"filesize_approx"`
}

type downloadRequestJSON struct {
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
	SID      string `json:"sid,omitempty"`
}

type downloadResponseJSON struct {
	TaskID string `json:"taskId"`
}

type batchRequestJSON struct {
	URLs       []string         `json:"urls"`
	QualityCap model.QualityCap `json:"quality_cap"`
	SID        string           `json:"sid,omitempty"`
}

type batchResponseJSON struct {
	TaskIDs []string `json:"taskIds"`
}

type probeRequestJSON struct {
	URLs []string `json:"urls"`
}

type probeResponseJSON struct {
	Formats []struct {
		URL           string `json:"url"`
		MaxHeight     int    `json:"maxHeight"`
		MaxResolution string `json:"maxResolution"`
		Error         string `json:"error"`
	} `json:"formats"`
}

type statusRequestJSON struct {
	TaskIDs []string `json:"taskIds"`
}

type statusResponseJSON struct {
	Tasks []json.RawMessage `json:"tasks"`
}

type errorResponseJSON struct {
	Error string `json:"error"`
}

func (r infoResponseJSON) toModel(req model.ResolveRequest) (*model.ResolveResult, error) {
	switch r.Type {
	case "video":
		formats := make([]model.Format, 0, len(r.Formats))
		for _, f := range r.Formats {
			formats = append(formats, model.Format{
				FormatID:       f.FormatID,
				Resolution:     f.Resolution,
				Ext:            f.Ext,
				FilesizeApprox: int64(f.FilesizeApprox),
			})
		}
		originalURL := r.OriginalURL
		if originalURL == "" {
			originalURL = req.URL
		}
		return &model.ResolveResult{Single: &model.SingleItem{
			Title:           r.Title,
			Thumbnail:       r.Thumbnail,
			DurationSeconds: r.Duration,
			OriginalURL:     originalURL,
			Formats:         formats,
		}}, nil

	case string(model.CollectionKindPlaylist), string(model.CollectionKindChannel):
		items := make([]model.Item, 0, len(r.Videos))
		for _, v := range r.Videos {
			items = append(items, model.Item{
				ID:              v.ID,
				URL:             v.URL,
				Title:           v.Title,
				Thumbnail:       v.Thumbnail,
				DurationSeconds: v.Duration,
				IsShort:         v.IsShort,
			})
		}
		page := r.Page
		if page <= 0 {
			page = req.Page
		}
		tab := model.Tab(r.CurrentTab)
		if !tab.Valid() {
			tab = req.Tab
		}
		return &model.ResolveResult{Collection: &model.CollectionPage{
			SourceURL: req.URL,
			Kind:      model.CollectionKind(r.Type),
			Title:     r.Title,
			Tab:       tab,
			Page:      page,
			Items:     items,
			HasMore:   r.HasMore,
		}}, nil
	}

	return nil, fmt.Errorf("unknown resolve type %q: %w", r.Type, model.ErrNotValid)
}

// Resolve returns a collection page or a single item.
func (c *Client) Resolve(ctx context.Context, req model.ResolveRequest) (*model.ResolveResult, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Tab == "" {
		req.Tab = model.TabVideos
	}

	var resp infoResponseJSON
	err := c.postJSON(ctx, "resolve", "/api/info", infoRequestJSON{URL: req.URL, Page: req.Page, Tab: string(req.Tab)}, &resp)
	if err != nil {
		return nil, err
	}

	return resp.toModel(req)
}

// SubmitSingle starts a single download.
func (c *Client) SubmitSingle(ctx context.Context, req backend.SubmitSingleRequest) (string, error) {
	var resp downloadResponseJSON
	err := c.postJSON(ctx, "submit single", "/api/download", downloadRequestJSON{URL: req.URL, FormatID: req.FormatID, SID: req.SessionID}, &resp)
	if err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", &backend.TransportError{Op: "submit single", Err: fmt.Errorf("missing task id: %w", model.ErrNotValid)}
	}

	return resp.TaskID, nil
}

// SubmitBatch starts one download per URL.
func (c *Client) SubmitBatch(ctx context.Context, req backend.SubmitBatchRequest) ([]string, error) {
	urls := req.URLs
	if urls == nil {
		urls = []string{}
	}

	var resp batchResponseJSON
	err := c.postJSON(ctx, "submit batch", "/api/batch_download", batchRequestJSON{URLs: urls, QualityCap: req.QualityCap, SID: req.SessionID}, &resp)
	if err != nil {
		return nil, err
	}

	return resp.TaskIDs, nil
}

// ProbeFormats returns the max resolution available for each URL.
func (c *Client) ProbeFormats(ctx context.Context, urls []string) ([]model.FormatProbe, error) {
	var resp probeResponseJSON
	err := c.postJSON(ctx, "probe formats", "/api/batch_formats", probeRequestJSON{URLs: urls}, &resp)
	if err != nil {
		return nil, err
	}

	probes := make([]model.FormatProbe, 0, len(resp.Formats))
	for _, f := range resp.Formats {
		probes = append(probes, model.FormatProbe{
			URL:           f.URL,
			MaxHeight:     f.MaxHeight,
			MaxResolution: f.MaxResolution,
			Error:         f.Error,
		})
	}

	return probes, nil
}

// TaskStatus queries the state of the tasks. Backends without the status
// endpoint return backend.ErrNotSupported.
func (c *Client) TaskStatus(ctx context.Context, taskIDs []string) (map[string]model.TaskUpdate, error) {
	var resp statusResponseJSON
	err := c.postJSON(ctx, "task status", "/api/tasks/status", statusRequestJSON{TaskIDs: taskIDs}, &resp)
	if err != nil {
		var terr *backend.TransportError
		if errors.As(err, &terr) && (terr.StatusCode == http.StatusNotFound || terr.StatusCode == http.StatusMethodNotAllowed) {
			return nil, fmt.Errorf("%w: %w", backend.ErrNotSupported, err)
		}
		return nil, err
	}

	updates := make(map[string]model.TaskUpdate, len(resp.Tasks))
	for _, raw := range resp.Tasks {
		taskID, u, dropped, err := events.DecodeProgress(raw)
		if err != nil {
			c.logger.Warningf("invalid task status entry ignored: %s", err)
			continue
		}
		for _, d := range dropped {
			c.logger.Warningf("%s", d)
		}
		updates[taskID] = u
	}

	return updates, nil
}

// RetrieveArtifact opens the file produced by a task.
func (c *Client) RetrieveArtifact(ctx context.Context, filename string) (*backend.Artifact, error) {
	const op = "retrieve artifact"

	u, err := c.url("/api/file/" + url.PathEscape(filename))
	if err != nil {
		return nil, &backend.TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &backend.TransportError{Op: op, Err: err}
	}
	req.Header.Set(RequestIDHeader, newRequestID())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &backend.TransportError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &backend.TransportError{Op: op, StatusCode: resp.StatusCode, Err: readErrorBody(resp.Body)}
	}

	c.logger.Debugf("Retrieving artifact %s", filename)

	return &backend.Artifact{
		Filename:    filename,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := c.url(path)
	if err != nil {
		return &backend.TransportError{Op: op, Err: err}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("could not encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return &backend.TransportError{Op: op, Err: err}
	}
	reqID := newRequestID()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, reqID)

	logger := c.logger.WithValues(log.Kv{"request-id": reqID})
	logger.Debugf("POST %s", u)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &backend.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &backend.TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponseJSON
		if jerr := json.Unmarshal(data, &e); jerr == nil && e.Error != "" {
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusNotFound {
				return fmt.Errorf("%s: %w", op, &backend.ValidationError{Message: e.Error})
			}
			return &backend.TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(e.Error)}
		}
		return &backend.TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	// Some backends answer 200 with an error body.
	var e errorResponseJSON
	if jerr := json.Unmarshal(data, &e); jerr == nil && e.Error != "" {
		return fmt.Errorf("%s: %w", op, &backend.ValidationError{Message: e.Error})
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &backend.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("could not decode response: %w", err)}
	}

	return nil
}

func (c *Client) url(path string) (string, error) {
	endpoint := strings.TrimSuffix(c.endpoint(), "/")
	if endpoint == "" {
		return "", fmt.Errorf("backend endpoint is not set")
	}
	return endpoint + path, nil
}

func readErrorBody(r io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e errorResponseJSON
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return errors.New(e.Error)
	}
	return errors.New(strings.TrimSpace(string(data)))
}

func newRequestID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

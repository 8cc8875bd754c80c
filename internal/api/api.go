package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tuberip/tuberip/internal/app/browse"
	"github.com/tuberip/tuberip/internal/app/single"
	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/printer"
	"github.com/tuberip/tuberip/internal/storage"
)

// Browser is the browse controller of the session.
type Browser interface {
	View() model.View
	SubmitURL(url string) error
	AutoLoad(ctx context.Context) (bool, error)
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SwitchTab(ctx context.Context, tab model.Tab) error
}

// Selector is the selection of the session.
type Selector interface {
	Toggle(itemID string) (bool, error)
	SelectAll() int
	Clear()
	Selected() []string
	DispatchBatch(ctx context.Context, quality model.QualityCap) ([]string, error)
	ProbeSelected(ctx context.Context) ([]model.FormatProbe, error)
}

// SingleDispatcher dispatches single item downloads.
type SingleDispatcher interface {
	Dispatch(ctx context.Context, req single.Request) (string, error)
}

// TaskLister lists the known tasks.
type TaskLister interface {
	ListAll() []model.Task
	Stats() model.TaskStats
}

// EndpointManager switches the backend address.
type EndpointManager interface {
	Endpoint() string
	SetEndpoint(endpoint string) error
}

// HandlerConfig is the configuration of the API handler.
type HandlerConfig struct {
	Browse    Browser
	Selection Selector
	Single    SingleDispatcher
	Tasks     TaskLister
	Endpoints EndpointManager
	// Settings persists endpoint changes, optional.
	Settings storage.SettingsRepository
	// History lists the download history, optional.
	History storage.HistoryRepository
	Logger  log.Logger
}

func (c *HandlerConfig) defaults() error {
	if c.Browse == nil {
		return fmt.Errorf("browse controller is required")
	}
	if c.Selection == nil {
		return fmt.Errorf("selection is required")
	}
	if c.Single == nil {
		return fmt.Errorf("single dispatcher is required")
	}
	if c.Tasks == nil {
		return fmt.Errorf("task lister is required")
	}
	if c.Endpoints == nil {
		return fmt.Errorf("endpoint manager is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Handler"})
	return nil
}

// Handler exposes the session snapshots and the dispatch operations over HTTP.
type Handler struct {
	browse    Browser
	selection Selector
	single    SingleDispatcher
	tasks     TaskLister
	endpoints EndpointManager
	settings  storage.SettingsRepository
	history   storage.HistoryRepository
	logger    log.Logger
}

// NewHandler returns a new API handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Handler{
		browse:    cfg.Browse,
		selection: cfg.Selection,
		single:    cfg.Single,
		tasks:     cfg.Tasks,
		endpoints: cfg.Endpoints,
		settings:  cfg.Settings,
		history:   cfg.History,
		logger:    cfg.Logger,
	}, nil
}

// Router returns a gin engine with the API routes registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes registers the API routes on the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		api.GET("/view", h.getView)
		api.POST("/browse", h.submitURL)
		api.POST("/browse/next", h.navigate(h.browse.Next))
		api.POST("/browse/previous", h.navigate(h.browse.Previous))
		api.POST("/browse/tab", h.switchTab)

		api.GET("/selection", h.getSelection)
		api.POST("/selection/toggle", h.toggle)
		api.POST("/selection/all", h.selectAll)
		api.DELETE("/selection", h.clearSelection)
		api.POST("/selection/dispatch", h.dispatchBatch)
		api.POST("/selection/probe", h.probeSelected)

		api.POST("/download", h.dispatchSingle)
		api.GET("/tasks", h.listTasks)
		api.GET("/downloads", h.listDownloads)

		api.GET("/endpoint", h.getEndpoint)
		api.PUT("/endpoint", h.setEndpoint)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// render writes the JSON printer output with the status code.
func (h *Handler) render(c *gin.Context, status int, print func(p printer.Printer) error) {
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(status)
	if err := print(printer.NewJSONPrinter(c.Writer)); err != nil {
		h.logger.Errorf("could not render response: %s", err)
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warningf("%s %s failed: %s", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var verr *backend.ValidationError
	switch {
	case errors.Is(err, model.ErrNotValid), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNoSource),
		errors.Is(err, model.ErrNoNextPage),
		errors.Is(err, model.ErrNoPreviousPage),
		errors.Is(err, model.ErrEmptySelection),
		errors.Is(err, browse.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, backend.ErrNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) getView(c *gin.Context) {
	v := h.browse.View()
	h.render(c, http.StatusOK, func(p printer.Printer) error { return p.PrintView(v) })
}

type submitURLRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *Handler) submitURL(c *gin.Context) {
	var req submitURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.browse.SubmitURL(req.URL); err != nil {
		h.fail(c, err)
		return
	}
	if _, err := h.browse.AutoLoad(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}

	h.getView(c)
}

func (h *Handler) navigate(move func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := move(c.Request.Context()); err != nil {
			h.fail(c, err)
			return
		}
		h.getView(c)
	}
}

type switchTabRequest struct {
	Tab string `json:"tab" binding:"required"`
}

func (h *Handler) switchTab(c *gin.Context) {
	var req switchTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.browse.SwitchTab(c.Request.Context(), model.Tab(req.Tab)); err != nil {
		h.fail(c, err)
		return
	}
	h.getView(c)
}

func (h *Handler) getSelection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"selected": h.selection.Selected()})
}

type toggleRequest struct {
	ID string `json:"id" binding:"required"`
}

func (h *Handler) toggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	selected, err := h.selection.Toggle(req.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": req.ID, "selected": selected})
}

func (h *Handler) selectAll(c *gin.Context) {
	n := h.selection.SelectAll()
	c.JSON(http.StatusOK, gin.H{"count": n, "selected": h.selection.Selected()})
}

func (h *Handler) clearSelection(c *gin.Context) {
	h.selection.Clear()
	c.Status(http.StatusNoContent)
}

type dispatchBatchRequest struct {
	Quality string `json:"quality"`
}

func (h *Handler) dispatchBatch(c *gin.Context) {
	var req dispatchBatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	quality, err := model.ParseQualityCap(req.Quality)
	if err != nil {
		h.fail(c, err)
		return
	}

	ids, err := h.selection.DispatchBatch(c.Request.Context(), quality)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskIds": ids})
}

func (h *Handler) probeSelected(c *gin.Context) {
	probes, err := h.selection.ProbeSelected(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, func(p printer.Printer) error { return p.PrintProbes(probes) })
}

type dispatchSingleRequest struct {
	URL       string `json:"url" binding:"required"`
	FormatID  string `json:"format_id" binding:"required"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

func (h *Handler) dispatchSingle(c *gin.Context) {
	var req dispatchSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.single.Dispatch(c.Request.Context(), single.Request{
		URL:       req.URL,
		FormatID:  req.FormatID,
		Title:     req.Title,
		Thumbnail: req.Thumbnail,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": id})
}

func (h *Handler) listTasks(c *gin.Context) {
	tasks := h.tasks.ListAll()
	stats := h.tasks.Stats()
	h.render(c, http.StatusOK, func(p printer.Printer) error { return p.PrintTasks(tasks, stats) })
}

func (h *Handler) listDownloads(c *gin.Context) {
	if h.history == nil {
		h.fail(c, fmt.Errorf("download history: %w", backend.ErrNotSupported))
		return
	}

	records, err := h.history.ListDownloads(c.Request.Context(), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.render(c, http.StatusOK, func(p printer.Printer) error { return p.PrintDownloads(records) })
}

func (h *Handler) getEndpoint(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoint": h.endpoints.Endpoint()})
}

type setEndpointRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

func (h *Handler) setEndpoint(c *gin.Context) {
	var req setEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.endpoints.SetEndpoint(req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}

	if h.settings != nil {
		if err := h.settings.SetSetting(c.Request.Context(), storage.SettingEndpoint, req.Endpoint); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"endpoint": h.endpoints.Endpoint()})
}

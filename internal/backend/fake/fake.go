package fake

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tuberip/tuberip/internal/events"
	"github.com/tuberip/tuberip/internal/events/websocket"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

// ServerConfig is the configuration for the fake backend.
type ServerConfig struct {
	// PageSize is the number of items per collection page.
	PageSize int
	// ItemsPerTab is the total number of items of every generated collection tab.
	ItemsPerTab int
	// StepDelay is the time between the progress events of a job.
	StepDelay time.Duration
	Logger    log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.ItemsPerTab < 0 {
		return fmt.Errorf("items per tab can't be negative")
	}
	if c.ItemsPerTab == 0 {
		c.ItemsPerTab = 120
	}
	if c.StepDelay <= 0 {
		c.StepDelay = 200 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.Fake"})
	return nil
}

// Server is a fake backend that speaks the same HTTP and event stream protocol
// as a real one. It resolves generated catalogs and simulates download jobs
// without touching the network.
//
// URLs containing `watch?v=` resolve to single items, `list=` or `playlist` to
// playlists, `fail` to a resolve error and `broken` jobs end with an error event.
type Server struct {
	engine    *gin.Engine
	hub       *websocket.Hub
	pageSize  int
	perTab    int
	stepDelay time.Duration
	logger    log.Logger

	mu    sync.Mutex
	tasks map[string]map[string]any
	files map[string][]byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a new fake backend.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		hub:       websocket.NewHub(cfg.Logger),
		pageSize:  cfg.PageSize,
		perTab:    cfg.ItemsPerTab,
		stepDelay: cfg.StepDelay,
		logger:    cfg.Logger,
		tasks:     map[string]map[string]any{},
		files:     map[string][]byte{},
		ctx:       ctx,
		cancel:    cancel,
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.registerRoutes(s.engine)

	return s, nil
}

// Handler returns the HTTP handler of the backend.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub returns the event stream hub.
func (s *Server) Hub() *websocket.Hub { return s.hub }

// Close stops the running jobs and waits for them.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
	s.hub.CloseAll()
}

// AddFile makes a file retrievable, used to simulate jobs finished elsewhere.
func (s *Server) AddFile(filename string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[filename] = data
}

// SetTask overrides the stored state of a task, it's not broadcasted.
func (s *Server) SetTask(taskID string, state map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := map[string]any{"taskId": taskID}
	for k, v := range state {
		st[k] = v
	}
	s.tasks[taskID] = st
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/ws", gin.WrapH(s.hub))

	api := router.Group("/api")
	{
		api.POST("/info", s.info)
		api.POST("/download", s.download)
		api.POST("/batch_download", s.batchDownload)
		api.POST("/batch_formats", s.batchFormats)
		api.POST("/tasks/status", s.taskStatus)
		api.GET("/file/:name", s.file)
	}
}

type infoRequest struct {
	URL  string `json:"url"`
	Page int    `json:"page"`
	Tab  string `json:"tab"`
}

func (s *Server) info(c *gin.Context) {
	var req infoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is required"})
		return
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Tab == "" {
		req.Tab = string(model.TabVideos)
	}

	switch {
	case strings.Contains(req.URL, "fail"):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "extractor failed"})
	case isSingle(req.URL):
		c.JSON(http.StatusOK, gin.H{
			"type":         "video",
			"title":        "Video " + shortID(req.URL),
			"thumbnail":    "https://i.ytimg.com/vi/" + shortID(req.URL) + "/hqdefault.jpg",
			"duration":     212,
			"original_url": req.URL,
			"formats": []gin.H{
				{"format_id": "137", "resolution": "1080p", "ext": "mp4", "filesize_approx": 52428800},
				{"format_id": "136", "resolution": "720p", "ext": "mp4", "filesize_approx": 26214400},
				{"format_id": "audio", "resolution": "Audio Only", "ext": "webm", "filesize_approx": nil},
			},
		})
	default:
		c.JSON(http.StatusOK, s.collectionPage(req))
	}
}

func (s *Server) collectionPage(req infoRequest) gin.H {
	kind := model.CollectionKindChannel
	if strings.Contains(req.URL, "list=") || strings.Contains(req.URL, "playlist") {
		kind = model.CollectionKindPlaylist
	}

	start := (req.Page - 1) * s.pageSize
	end := start + s.pageSize
	if end > s.perTab {
		end = s.perTab
	}

	videos := []gin.H{}
	base := shortID(req.URL)
	for i := start; i < end; i++ {
		id := fmt.Sprintf("%s-%s-%03d", base, req.Tab, i+1)
		url := "https://www.youtube.com/watch?v=" + id
		if req.Tab == string(model.TabShorts) {
			url = "https://www.youtube.com/shorts/" + id
		}
		videos = append(videos, gin.H{
			"id":         id,
			"title":      fmt.Sprintf("%s item %d", req.Tab, i+1),
			"duration":   60 + i,
			"thumbnail":  "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg",
			"url":        url,
			"is_short":   req.Tab == string(model.TabShorts),
			"max_height": 0,
		})
	}

	return gin.H{
		"type":        string(kind),
		"title":       "Collection " + base,
		"url":         req.URL,
		"current_tab": req.Tab,
		"videos":      videos,
		"page":        req.Page,
		"has_more":    end < s.perTab,
	}
}

type downloadRequest struct {
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
	SID      string `json:"sid"`
}

func (s *Server) download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is required"})
		return
	}
	if req.FormatID == "" {
		req.FormatID = "best"
	}

	id := uuid.NewString()
	s.startJob(id, req.URL, req.FormatID, false)

	c.JSON(http.StatusOK, gin.H{"taskId": id, "status": "started"})
}

type batchRequest struct {
	URLs       []string         `json:"urls"`
	QualityCap model.QualityCap `json:"quality_cap"`
	SID        string           `json:"sid"`
}

func (s *Server) batchDownload(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		id := uuid.NewString()
		ids = append(ids, id)
		s.startJob(id, u, req.QualityCap.String(), true)
	}

	c.JSON(http.StatusOK, gin.H{"taskIds": ids, "status": "batch_started"})
}

func (s *Server) batchFormats(c *gin.Context) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	formats := make([]gin.H, 0, len(req.URLs))
	for _, u := range req.URLs {
		switch {
		case strings.Contains(u, "broken"):
			formats = append(formats, gin.H{"url": u, "maxHeight": 0, "maxResolution": "Unknown", "error": "video unavailable"})
		case strings.Contains(u, "/shorts/"):
			formats = append(formats, gin.H{"url": u, "maxHeight": 1920, "maxResolution": "1920p"})
		default:
			formats = append(formats, gin.H{"url": u, "maxHeight": 1080, "maxResolution": "1080p"})
		}
	}

	c.JSON(http.StatusOK, gin.H{"formats": formats})
}

func (s *Server) taskStatus(c *gin.Context) {
	var req struct {
		TaskIDs []string `json:"taskIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := []map[string]any{}
	for _, id := range req.TaskIDs {
		if st, ok := s.tasks[id]; ok {
			tasks = append(tasks, st)
		}
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) file(c *gin.Context) {
	name := c.Param("name")

	s.mu.Lock()
	data, ok := s.files[name]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) startJob(id, url, quality string, queued bool) {
	title := "Video " + shortID(url)
	if queued {
		s.emit(id, map[string]any{"status": string(model.TaskStatusQueued), "progress": 0})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(id, url, title, quality)
	}()
}

func (s *Server) runJob(id, url, title, quality string) {
	const total = 4 * 1024 * 1024
	logger := s.logger.WithValues(log.Kv{"task": id})
	logger.Debugf("Fake job started for %s", url)

	for _, p := range []float64{0, 25, 50, 75, 100} {
		if !s.sleep() {
			return
		}
		if p == 50 && strings.Contains(url, "broken") {
			s.emitEvent(events.EventError, id, map[string]any{"error": "ERROR: video unavailable"})
			logger.Debugf("Fake job failed")
			return
		}
		s.emit(id, map[string]any{
			"status":           string(model.TaskStatusDownloading),
			"progress":         p,
			"speed":            "1.5MiB/s",
			"eta":              fmt.Sprintf("00:%02d", int((100-p)/10)),
			"downloaded_bytes": int64(p / 100 * total),
			"total_bytes":      total,
			"title":            title,
		})
	}

	if !s.sleep() {
		return
	}
	s.emit(id, map[string]any{"status": string(model.TaskStatusOptimizing), "message": "Optimizing for Windows..."})

	filename := fmt.Sprintf("%s [%s].mp4", title, quality)
	s.AddFile(filename, []byte("fake media content of "+url))

	if !s.sleep() {
		return
	}
	s.emit(id, map[string]any{
		"status":   string(model.TaskStatusFinished),
		"progress": 100,
		"filename": filename,
		"title":    title,
	})
	s.emitEvent(events.EventComplete, id, map[string]any{})
	logger.Debugf("Fake job finished: %s", filename)
}

func (s *Server) sleep() bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(s.stepDelay):
		return true
	}
}

// emit stores and broadcasts a progress event.
func (s *Server) emit(id string, payload map[string]any) {
	s.mu.Lock()
	st, ok := s.tasks[id]
	if !ok {
		st = map[string]any{"taskId": id}
		s.tasks[id] = st
	}
	for k, v := range payload {
		st[k] = v
	}
	s.mu.Unlock()

	s.emitEvent(events.EventProgress, id, payload)
}

func (s *Server) emitEvent(event, id string, payload map[string]any) {
	data := map[string]any{"taskId": id}
	for k, v := range payload {
		data[k] = v
	}

	if event == events.EventError {
		s.mu.Lock()
		st, ok := s.tasks[id]
		if !ok {
			st = map[string]any{"taskId": id}
			s.tasks[id] = st
		}
		st["status"] = string(model.TaskStatusError)
		st["error"] = payload["error"]
		s.mu.Unlock()
	}

	if err := s.hub.Broadcast(event, data); err != nil {
		s.logger.Warningf("could not broadcast %s event: %s", event, err)
	}
}

func isSingle(url string) bool {
	return strings.Contains(url, "watch?v=") || strings.Contains(url, "youtu.be/") || strings.Contains(url, "/shorts/")
}

func shortID(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

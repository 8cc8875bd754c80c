package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tuberip/tuberip/internal/api"
	"github.com/tuberip/tuberip/internal/app/browse"
	"github.com/tuberip/tuberip/internal/app/selection"
	"github.com/tuberip/tuberip/internal/app/single"
	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/backend/backendmock"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/registry"
	"github.com/tuberip/tuberip/internal/session"
	"github.com/tuberip/tuberip/internal/storage/memory"
)

const sourceURL = "https://www.youtube.com/@someone"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEndpoints struct {
	endpoint string
}

func (f *fakeEndpoints) Endpoint() string { return f.endpoint }

func (f *fakeEndpoints) SetEndpoint(endpoint string) error {
	if err := session.ValidateEndpoint(endpoint); err != nil {
		return err
	}
	f.endpoint = endpoint
	return nil
}

type testAPI struct {
	router    http.Handler
	backend   *backendmock.MockBackend
	registry  *registry.Registry
	repo      *memory.Repository
	endpoints *fakeEndpoints
}

func newTestAPI(t *testing.T, withHistory bool) testAPI {
	t.Helper()

	mb := backendmock.NewMockBackend(t)
	reg, err := registry.New(registry.Config{})
	require.NoError(t, err)
	ctrl, err := browse.NewController(browse.ControllerConfig{Resolver: mb})
	require.NoError(t, err)
	sel, err := selection.NewService(selection.ServiceConfig{Pages: ctrl, Backend: mb, Registry: reg})
	require.NoError(t, err)
	sgl, err := single.NewService(single.ServiceConfig{Backend: mb, Registry: reg})
	require.NoError(t, err)
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	endpoints := &fakeEndpoints{endpoint: "http://localhost:5000"}

	cfg := api.HandlerConfig{
		Browse:    ctrl,
		Selection: sel,
		Single:    sgl,
		Tasks:     reg,
		Endpoints: endpoints,
		Settings:  repo,
	}
	if withHistory {
		cfg.History = repo
	}
	h, err := api.NewHandler(cfg)
	require.NoError(t, err)

	return testAPI{router: h.Router(), backend: mb, registry: reg, repo: repo, endpoints: endpoints}
}

func (a testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var b bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&b).Encode(body))
	}
	req := httptest.NewRequest(method, path, &b)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (a testAPI) mockPages() {
	a.backend.On("Resolve", mock.Anything, mock.Anything).Return(func(_ context.Context, req model.ResolveRequest) *model.ResolveResult {
		p := req.Page
		return &model.ResolveResult{Collection: &model.CollectionPage{
			Kind:    model.CollectionKindChannel,
			Title:   "Someone",
			HasMore: p < 2,
			Items: []model.Item{
				{ID: "a", URL: "https://www.youtube.com/watch?v=a", Title: "A"},
				{ID: "b", URL: "https://www.youtube.com/watch?v=b", Title: "B"},
			},
		}}
	}, nil)
}

func TestHandlerConfig(t *testing.T) {
	_, err := api.NewHandler(api.HandlerConfig{})
	assert.Error(t, err)
}

func TestHealthAndCORS(t *testing.T) {
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = a.do(t, http.MethodOptions, "/api/browse", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBrowse(t *testing.T) {
	a := newTestAPI(t, false)
	a.mockPages()

	page := func(w *httptest.ResponseRecorder) float64 {
		coll := decode(t, w)["collection"].(map[string]any)
		return coll["page"].(float64)
	}

	// Nothing submitted yet.
	w := a.do(t, http.MethodPost, "/api/browse/next", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/browse", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/browse", map[string]string{"url": sourceURL})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "loaded", out["state"])
	coll := out["collection"].(map[string]any)
	assert.Equal(t, sourceURL, coll["source_url"])
	assert.Equal(t, float64(1), coll["page"])
	assert.Len(t, coll["items"], 2)

	w = a.do(t, http.MethodPost, "/api/browse/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), page(w))

	w = a.do(t, http.MethodPost, "/api/browse/next", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/browse/previous", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), page(w))

	w = a.do(t, http.MethodPost, "/api/browse/tab", map[string]string{"tab": "podcasts"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/browse/tab", map[string]string{"tab": "shorts"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shorts", decode(t, w)["collection"].(map[string]any)["tab"])

	w = a.do(t, http.MethodGet, "/api/view", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSelectionDispatch(t *testing.T) {
	a := newTestAPI(t, false)
	a.mockPages()
	a.backend.On("SubmitBatch", mock.Anything, backend.SubmitBatchRequest{
		URLs:       []string{"https://www.youtube.com/watch?v=b"},
		QualityCap: model.QualityCapHeight(720),
	}).Once().Return([]string{"t1"}, nil)

	w := a.do(t, http.MethodPost, "/api/browse", map[string]string{"url": sourceURL})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPost, "/api/selection/toggle", map[string]string{"id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/api/selection/toggle", map[string]string{"id": "b"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["selected"])

	w = a.do(t, http.MethodPost, "/api/selection/dispatch", map[string]string{"quality": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/selection/dispatch", map[string]string{"quality": "720p"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []any{"t1"}, decode(t, w)["taskIds"])

	// Dispatched items leave the selection.
	w = a.do(t, http.MethodPost, "/api/selection/dispatch", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	tasks := out["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, selection.QueuedTitle, tasks[0].(map[string]any)["title"])
	assert.Equal(t, float64(1), out["stats"].(map[string]any)["active"])

	w = a.do(t, http.MethodPost, "/api/selection/all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])

	w = a.do(t, http.MethodDelete, "/api/selection", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = a.do(t, http.MethodGet, "/api/selection", nil)
	assert.Empty(t, decode(t, w)["selected"])
}

func TestDispatchSingle(t *testing.T) {
	tests := map[string]struct {
		body    map[string]string
		mock    func(m *backendmock.MockBackend)
		expCode int
		expTask string
	}{
		"Missing the format should fail.": {
			body:    map[string]string{"url": "https://www.youtube.com/watch?v=x"},
			mock:    func(m *backendmock.MockBackend) {},
			expCode: http.StatusBadRequest,
		},
		"A backend rejection should be a bad request.": {
			body: map[string]string{"url": "https://www.youtube.com/watch?v=x", "format_id": "22"},
			mock: func(m *backendmock.MockBackend) {
				m.On("SubmitSingle", mock.Anything, mock.Anything).Once().Return("", &backend.ValidationError{Message: "bad url"})
			},
			expCode: http.StatusBadRequest,
		},
		"A backend failure should be a bad gateway.": {
			body: map[string]string{"url": "https://www.youtube.com/watch?v=x", "format_id": "22"},
			mock: func(m *backendmock.MockBackend) {
				m.On("SubmitSingle", mock.Anything, mock.Anything).Once().Return("", &backend.TransportError{Op: "download", Err: assert.AnError})
			},
			expCode: http.StatusBadGateway,
		},
		"A download should be dispatched and seeded.": {
			body: map[string]string{"url": "https://www.youtube.com/watch?v=x", "format_id": "22", "title": "X"},
			mock: func(m *backendmock.MockBackend) {
				m.On("SubmitSingle", mock.Anything, backend.SubmitSingleRequest{URL: "https://www.youtube.com/watch?v=x", FormatID: "22"}).Once().Return("s1", nil)
			},
			expCode: http.StatusAccepted,
			expTask: "s1",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			a := newTestAPI(t, false)
			test.mock(a.backend)

			w := a.do(t, http.MethodPost, "/api/download", test.body)
			assert.Equal(t, test.expCode, w.Code)

			if test.expTask != "" {
				assert.Equal(t, test.expTask, decode(t, w)["taskId"])
				task, err := a.registry.Get(test.expTask)
				require.NoError(t, err)
				assert.Equal(t, model.TaskStatusStarting, task.Status)
				assert.Equal(t, "X", task.Title)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodGet, "/api/endpoint", nil)
	assert.Equal(t, "http://localhost:5000", decode(t, w)["endpoint"])

	w = a.do(t, http.MethodPut, "/api/endpoint", map[string]string{"endpoint": "ftp://nas"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPut, "/api/endpoint", map[string]string{"endpoint": "http://10.0.0.2:5000"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://10.0.0.2:5000", a.endpoints.endpoint)

	stored, err := a.repo.GetSetting(context.Background(), "endpoint")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:5000", stored)
}

func TestDownloads(t *testing.T) {
	t.Run("Without history the endpoint is not available.", func(t *testing.T) {
		a := newTestAPI(t, false)
		w := a.do(t, http.MethodGet, "/api/downloads", nil)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("The history should be listed.", func(t *testing.T) {
		a := newTestAPI(t, true)
		err := a.repo.RecordDownload(context.Background(), model.DownloadRecord{
			ID: "d1", TaskID: "t1", Filename: "a.mp4", Location: "/tmp/a.mp4", CreatedAt: time.Now(),
		})
		require.NoError(t, err)

		w := a.do(t, http.MethodGet, "/api/downloads", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var out []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.Len(t, out, 1)
		assert.Equal(t, "/tmp/a.mp4", out[0]["location"])
	})
}

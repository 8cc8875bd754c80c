package selection_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tuberip/tuberip/internal/app/browse"
	"github.com/tuberip/tuberip/internal/app/selection"
	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/backend/backendmock"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/registry"
)

const sourceURL = "https://www.youtube.com/@someone"

type fakePages struct {
	mu        sync.Mutex
	view      model.View
	observers []browse.ViewObserver
}

func (f *fakePages) View() model.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakePages) Subscribe(o browse.ViewObserver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, o)
}

func (f *fakePages) set(v model.View) {
	f.mu.Lock()
	f.view = v
	observers := f.observers
	f.mu.Unlock()
	for _, o := range observers {
		o(v)
	}
}

func pageView(session uint64, source string, page int, ids ...string) model.View {
	items := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, model.Item{ID: id, URL: "https://www.youtube.com/watch?v=" + id})
	}
	return model.View{
		Session: session,
		State:   model.BrowseStateLoaded,
		Page:    model.CollectionPage{SourceURL: source, Tab: model.TabVideos, Page: page, Items: items},
	}
}

func newService(t *testing.T, pages *fakePages, b selection.BatchBackend, reg selection.TaskSeeder) *selection.Service {
	t.Helper()
	svc, err := selection.NewService(selection.ServiceConfig{
		Pages:     pages,
		Backend:   b,
		Registry:  reg,
		SessionID: func() string { return "sid-1" },
		Logger:    log.Noop,
	})
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	reg, _ := registry.New(registry.Config{})

	tests := map[string]struct {
		config selection.ServiceConfig
		expErr bool
	}{
		"Valid config should create the service.": {
			config: selection.ServiceConfig{Pages: &fakePages{}, Backend: &backendmock.MockBackend{}, Registry: reg},
		},
		"Missing pages should fail.": {
			config: selection.ServiceConfig{Backend: &backendmock.MockBackend{}, Registry: reg},
			expErr: true,
		},
		"Missing backend should fail.": {
			config: selection.ServiceConfig{Pages: &fakePages{}, Registry: reg},
			expErr: true,
		},
		"Missing registry should fail.": {
			config: selection.ServiceConfig{Pages: &fakePages{}, Backend: &backendmock.MockBackend{}},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := selection.NewService(test.config)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServiceToggleAndSelectAll(t *testing.T) {
	tests := map[string]struct {
		actions     func(t *testing.T, s *selection.Service, p *fakePages)
		expSelected []string
	}{
		"Toggling items should keep the selection order.": {
			actions: func(t *testing.T, s *selection.Service, p *fakePages) {
				for _, id := range []string{"c", "a"} {
					on, err := s.Toggle(id)
					require.NoError(t, err)
					assert.True(t, on)
				}
			},
			expSelected: []string{"c", "a"},
		},
		"Toggling a selected item should unselect it.": {
			actions: func(t *testing.T, s *selection.Service, p *fakePages) {
				_, _ = s.Toggle("a")
				_, _ = s.Toggle("b")
				on, err := s.Toggle("a")
				require.NoError(t, err)
				assert.False(t, on)
			},
			expSelected: []string{"b"},
		},
		"Toggling an item that is not on the page should fail.": {
			actions: func(t *testing.T, s *selection.Service, p *fakePages) {
				_, err := s.Toggle("zzz")
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
			expSelected: []string{},
		},
		"Select all should select every item of the page.": {
			actions: func(t *testing.T, s *selection.Service, p *fakePages) {
				_, _ = s.Toggle("b")
				assert.Equal(t, 3, s.SelectAll())
			},
			expSelected: []string{"a", "b", "c"},
		},
		"Select all twice should clear the selection.": {
			actions: func(t *testing.T, s *selection.Service, p *fakePages) {
				s.SelectAll()
				assert.Equal(t, 0, s.SelectAll())
			},
			expSelected: []string{},
		},
		"Select all should not be additive across pages.": {
			actions: func(t *testing.T, s *selection.Service, p *fakePages) {
				s.SelectAll()
				p.set(pageView(1, sourceURL, 2, "d", "e"))
				s.SelectAll()
			},
			expSelected: []string{"d", "e"},
		},
		"Pagination should keep the selection.": {
			actions: func(t *testing.T, s *selection.Service, p *fakePages) {
				_, _ = s.Toggle("a")
				p.set(pageView(1, sourceURL, 2, "d", "e"))
				_, _ = s.Toggle("e")
			},
			expSelected: []string{"a", "e"},
		},
		"A new browse session should clear the selection.": {
			actions: func(t *testing.T, s *selection.Service, p *fakePages) {
				s.SelectAll()
				p.set(pageView(2, sourceURL, 1, "a", "b", "c"))
			},
			expSelected: []string{},
		},
		"Another source URL should clear the selection even without notification.": {
			actions: func(t *testing.T, s *selection.Service, p *fakePages) {
				s.SelectAll()
				p.mu.Lock()
				p.view = pageView(1, "https://www.youtube.com/playlist?list=PL1", 1, "a")
				p.mu.Unlock()
			},
			expSelected: []string{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			pages := &fakePages{}
			svc := newService(t, pages, &backendmock.MockBackend{}, newRegistry(t))
			pages.set(pageView(1, sourceURL, 1, "a", "b", "c"))

			test.actions(t, svc, pages)

			assert.Equal(t, test.expSelected, svc.Selected())
		})
	}
}

func TestServiceDispatchBatch(t *testing.T) {
	tests := map[string]struct {
		selectIDs   []string
		quality     model.QualityCap
		mock        func(m *backendmock.MockBackend)
		expTaskIDs  []string
		expErr      error
		expAnyErr   bool
		expSelected []string
		expTasks    []model.Task
	}{
		"Dispatching should seed one queued placeholder per task in order.": {
			selectIDs: []string{"b", "a", "c"},
			quality:   model.QualityCapHeight(720),
			mock: func(m *backendmock.MockBackend) {
				m.On("SubmitBatch", mock.Anything, backend.SubmitBatchRequest{
					URLs: []string{
						"https://www.youtube.com/watch?v=b",
						"https://www.youtube.com/watch?v=a",
						"https://www.youtube.com/watch?v=c",
					},
					QualityCap: model.QualityCapHeight(720),
					SessionID:  "sid-1",
				}).Once().Return([]string{"t1", "t2", "t3"}, nil)
			},
			expTaskIDs:  []string{"t1", "t2", "t3"},
			expSelected: []string{},
			expTasks: []model.Task{
				{ID: "t1", Status: model.TaskStatusQueued, Title: "Queued Video"},
				{ID: "t2", Status: model.TaskStatusQueued, Title: "Queued Video"},
				{ID: "t3", Status: model.TaskStatusQueued, Title: "Queued Video"},
			},
		},
		"Dispatching the max quality should forward it.": {
			selectIDs: []string{"a"},
			quality:   model.QualityCapMax,
			mock: func(m *backendmock.MockBackend) {
				m.On("SubmitBatch", mock.Anything, mock.MatchedBy(func(req backend.SubmitBatchRequest) bool {
					return req.QualityCap.IsMax()
				})).Once().Return([]string{"t1"}, nil)
			},
			expTaskIDs:  []string{"t1"},
			expSelected: []string{},
			expTasks: []model.Task{
				{ID: "t1", Status: model.TaskStatusQueued, Title: "Queued Video"},
			},
		},
		"An empty selection should not submit.": {
			mock:        func(m *backendmock.MockBackend) {},
			expErr:      model.ErrEmptySelection,
			expSelected: []string{},
			expTasks:    []model.Task{},
		},
		"A failed submission should keep the selection.": {
			selectIDs: []string{"a", "b"},
			mock: func(m *backendmock.MockBackend) {
				m.On("SubmitBatch", mock.Anything, mock.Anything).Once().Return(nil, errors.New("backend down"))
			},
			expAnyErr:   true,
			expSelected: []string{"a", "b"},
			expTasks:    []model.Task{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			reg, err := registry.New(registry.Config{})
			require.NoError(err)
			m := &backendmock.MockBackend{}
			test.mock(m)

			pages := &fakePages{}
			svc := newService(t, pages, m, reg)
			pages.set(pageView(1, sourceURL, 1, "a", "b", "c"))
			for _, id := range test.selectIDs {
				_, err := svc.Toggle(id)
				require.NoError(err)
			}

			taskIDs, err := svc.DispatchBatch(context.Background(), test.quality)
			switch {
			case test.expErr != nil:
				require.ErrorIs(err, test.expErr)
			case test.expAnyErr:
				require.Error(err)
			default:
				require.NoError(err)
				require.Equal(test.expTaskIDs, taskIDs)
			}

			m.AssertExpectations(t)
			require.Equal(test.expSelected, svc.Selected())
			require.Equal(test.expTasks, reg.ListAll())
		})
	}
}

func TestServiceDispatchBatchDoesNotOverwriteProgress(t *testing.T) {
	require := require.New(t)

	reg, err := registry.New(registry.Config{})
	require.NoError(err)

	// The first progress event can arrive before the submission returns.
	downloading := model.TaskStatusDownloading
	progress := 10.0
	_, err = reg.Merge("t1", model.TaskUpdate{Status: &downloading, Progress: &progress})
	require.NoError(err)

	m := &backendmock.MockBackend{}
	m.On("SubmitBatch", mock.Anything, mock.Anything).Once().Return([]string{"t1"}, nil)

	pages := &fakePages{}
	svc := newService(t, pages, m, reg)
	pages.set(pageView(1, sourceURL, 1, "a"))
	_, err = svc.Toggle("a")
	require.NoError(err)

	_, err = svc.DispatchBatch(context.Background(), model.QualityCapMax)
	require.NoError(err)

	task, err := reg.Get("t1")
	require.NoError(err)
	require.Equal(model.TaskStatusDownloading, task.Status)
	require.Equal(10.0, task.Progress)
}

func TestServiceProbeSelected(t *testing.T) {
	require := require.New(t)

	m := &backendmock.MockBackend{}
	m.On("ProbeFormats", mock.Anything, []string{"https://www.youtube.com/watch?v=a"}).Once().Return([]model.FormatProbe{
		{URL: "https://www.youtube.com/watch?v=a", MaxHeight: 1080, MaxResolution: "1920x1080"},
	}, nil)

	pages := &fakePages{}
	svc := newService(t, pages, m, newRegistry(t))
	pages.set(pageView(1, sourceURL, 1, "a", "b"))

	_, err := svc.ProbeSelected(context.Background())
	require.ErrorIs(err, model.ErrEmptySelection)

	_, err = svc.Toggle("a")
	require.NoError(err)
	probes, err := svc.ProbeSelected(context.Background())
	require.NoError(err)
	require.Len(probes, 1)
	require.Equal(1080, probes[0].MaxHeight)
	m.AssertExpectations(t)
	require.Equal([]string{"a"}, svc.Selected())
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.Config{Logger: log.Noop})
	require.NoError(t, err)
	return reg
}

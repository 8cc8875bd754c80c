package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tuberip/tuberip/internal/app/reconcile"
	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/backend/backendmock"
	"github.com/tuberip/tuberip/internal/events"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/registry"
)

func ptr[T any](v T) *T { return &v }

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.Config{Logger: log.Noop})
	require.NoError(t, err)

	_, _ = reg.Merge("t1", model.TaskUpdate{Status: ptr(model.TaskStatusDownloading), Progress: ptr(40.0), Speed: ptr("1.0MiB/s")})
	_, _ = reg.Merge("t2", model.TaskUpdate{Status: ptr(model.TaskStatusQueued)})
	_, _ = reg.Merge("t3", model.TaskUpdate{Status: ptr(model.TaskStatusFinished), Filename: ptr("done.mp4")})
	return reg
}

func TestServiceReconcile(t *testing.T) {
	tests := map[string]struct {
		mock      func(m *backendmock.MockBackend)
		expMerged int
		expErr    bool
		expTasks  map[string]model.Task
	}{
		"Active tasks should be merged with the backend state.": {
			mock: func(m *backendmock.MockBackend) {
				m.On("TaskStatus", mock.Anything, []string{"t1", "t2"}).Once().Return(map[string]model.TaskUpdate{
					"t1": {Status: ptr(model.TaskStatusFinished), Progress: ptr(100.0), Filename: ptr("a.mp4")},
					"t2": {Status: ptr(model.TaskStatusDownloading), Progress: ptr(5.0)},
				}, nil)
			},
			expMerged: 2,
			expTasks: map[string]model.Task{
				"t1": {ID: "t1", Status: model.TaskStatusFinished, Progress: 100, Speed: "1.0MiB/s", Filename: "a.mp4"},
				"t2": {ID: "t2", Status: model.TaskStatusDownloading, Progress: 5},
			},
		},
		"Unknown tasks on the backend should be ignored.": {
			mock: func(m *backendmock.MockBackend) {
				m.On("TaskStatus", mock.Anything, []string{"t1", "t2"}).Once().Return(map[string]model.TaskUpdate{
					"t1": {Progress: ptr(60.0)},
					"zz": {Progress: ptr(60.0)},
				}, nil)
			},
			expMerged: 1,
			expTasks: map[string]model.Task{
				"t1": {ID: "t1", Status: model.TaskStatusDownloading, Progress: 60, Speed: "1.0MiB/s"},
				"t2": {ID: "t2", Status: model.TaskStatusQueued},
			},
		},
		"Backend errors should be returned.": {
			mock: func(m *backendmock.MockBackend) {
				m.On("TaskStatus", mock.Anything, mock.Anything).Once().Return(nil, errors.New("boom"))
			},
			expErr: true,
			expTasks: map[string]model.Task{
				"t1": {ID: "t1", Status: model.TaskStatusDownloading, Progress: 40, Speed: "1.0MiB/s"},
				"t2": {ID: "t2", Status: model.TaskStatusQueued},
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			reg := newRegistry(t)
			m := &backendmock.MockBackend{}
			test.mock(m)

			svc, err := reconcile.NewService(reconcile.ServiceConfig{Registry: reg, Backend: m})
			require.NoError(err)

			merged, err := svc.Reconcile(context.Background())
			if test.expErr {
				require.Error(err)
			} else {
				require.NoError(err)
				require.Equal(test.expMerged, merged)
			}

			m.AssertExpectations(t)
			for id, exp := range test.expTasks {
				got, err := reg.Get(id)
				require.NoError(err)
				require.Equal(exp, got)
			}
		})
	}
}

func TestServiceReconcileWithoutActiveTasks(t *testing.T) {
	reg, err := registry.New(registry.Config{})
	require.NoError(t, err)
	m := &backendmock.MockBackend{}

	svc, err := reconcile.NewService(reconcile.ServiceConfig{Registry: reg, Backend: m})
	require.NoError(t, err)

	merged, err := svc.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, merged)
	m.AssertExpectations(t)
}

func TestServiceStateHandler(t *testing.T) {
	tests := map[string]struct {
		states   []events.State
		mock     func(m *backendmock.MockBackend)
		expCalls int
	}{
		"Every new connection should reconcile once.": {
			states: []events.State{
				{Connected: true},
				{Connected: true, SessionID: "sid-1"},
				{Connected: false},
				{Connected: true},
				{Connected: true, SessionID: "sid-2"},
			},
			mock: func(m *backendmock.MockBackend) {
				m.On("TaskStatus", mock.Anything, mock.Anything).Return(map[string]model.TaskUpdate{}, nil)
			},
			expCalls: 2,
		},
		"Disconnections should not reconcile.": {
			states:   []events.State{{Connected: false}, {Connected: false}},
			mock:     func(m *backendmock.MockBackend) {},
			expCalls: 0,
		},
		"A backend without the status endpoint should be tolerated.": {
			states: []events.State{{Connected: true}},
			mock: func(m *backendmock.MockBackend) {
				m.On("TaskStatus", mock.Anything, mock.Anything).Return(nil, backend.ErrNotSupported)
			},
			expCalls: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			m := &backendmock.MockBackend{}
			test.mock(m)
			svc, err := reconcile.NewService(reconcile.ServiceConfig{Registry: newRegistry(t), Backend: m})
			require.NoError(err)

			h := svc.StateHandler(context.Background())
			for _, st := range test.states {
				h(st)
			}
			svc.Wait()

			m.AssertNumberOfCalls(t, "TaskStatus", test.expCalls)
		})
	}
}

func TestServiceReconcileKeepsTasksSettledDuringQuery(t *testing.T) {
	require := require.New(t)

	reg := newRegistry(t)
	m := &backendmock.MockBackend{}
	m.On("TaskStatus", mock.Anything, []string{"t1", "t2"}).Once().Return(func(ctx context.Context, ids []string) map[string]model.TaskUpdate {
		// A live event finishes t1 while the status query is in flight.
		_, err := reg.Merge("t1", model.TaskUpdate{Status: ptr(model.TaskStatusFinished), Progress: ptr(100.0), Filename: ptr("v.mp4")})
		require.NoError(err)

		return map[string]model.TaskUpdate{
			"t1": {Status: ptr(model.TaskStatusDownloading), Progress: ptr(40.0)},
			"t2": {Status: ptr(model.TaskStatusDownloading), Progress: ptr(5.0)},
		}
	}, nil)

	svc, err := reconcile.NewService(reconcile.ServiceConfig{Registry: reg, Backend: m})
	require.NoError(err)

	merged, err := svc.Reconcile(context.Background())
	require.NoError(err)
	assert.Equal(t, 1, merged)
	m.AssertExpectations(t)

	t1, err := reg.Get("t1")
	require.NoError(err)
	assert.Equal(t, model.TaskStatusFinished, t1.Status)
	assert.Equal(t, 100.0, t1.Progress)
	assert.Equal(t, "v.mp4", t1.Filename)

	t2, err := reg.Get("t2")
	require.NoError(err)
	assert.Equal(t, model.TaskStatusDownloading, t2.Status)
}

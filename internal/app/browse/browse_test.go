package browse_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tuberip/tuberip/internal/app/browse"
	"github.com/tuberip/tuberip/internal/backend/backendmock"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

const channelURL = "https://www.youtube.com/@someone"

func collection(tab model.Tab, page int, hasMore bool, ids ...string) *model.ResolveResult {
	items := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, model.Item{ID: id, URL: "https://www.youtube.com/watch?v=" + id, Title: "Video " + id})
	}
	return &model.ResolveResult{Collection: &model.CollectionPage{
		Kind:    model.CollectionKindChannel,
		Title:   "Someone",
		Tab:     tab,
		Page:    page,
		Items:   items,
		HasMore: hasMore,
	}}
}

func newController(t *testing.T, r browse.Resolver) *browse.Controller {
	t.Helper()
	c, err := browse.NewController(browse.ControllerConfig{Resolver: r, Logger: log.Noop})
	require.NoError(t, err)
	return c
}

func TestNewController(t *testing.T) {
	_, err := browse.NewController(browse.ControllerConfig{})
	assert.Error(t, err)

	c, err := browse.NewController(browse.ControllerConfig{Resolver: &backendmock.MockBackend{}})
	require.NoError(t, err)
	assert.Equal(t, model.BrowseStateIdle, c.View().State)
}

func TestControllerSubmitAndAutoLoad(t *testing.T) {
	require := require.New(t)

	m := &backendmock.MockBackend{}
	m.On("Resolve", mock.Anything, model.ResolveRequest{URL: channelURL, Page: 1, Tab: model.TabVideos}).
		Once().Return(collection(model.TabVideos, 1, true, "a", "b"), nil)
	c := newController(t, m)

	require.NoError(c.SubmitURL("  " + channelURL + " "))
	v := c.View()
	require.Equal(model.BrowseStateAwaitingFirstPage, v.State)
	require.Equal(uint64(1), v.Session)
	require.Equal(model.CollectionPage{
		SourceURL: channelURL,
		Kind:      model.CollectionKindChannel,
		Tab:       model.TabVideos,
		Page:      1,
		Items:     []model.Item{},
		IsLoading: true,
	}, v.Page)

	fired, err := c.AutoLoad(context.Background())
	require.NoError(err)
	require.True(fired)

	// Redisplaying the same state doesn't load again.
	for range 3 {
		fired, err = c.AutoLoad(context.Background())
		require.NoError(err)
		require.False(fired)
	}
	m.AssertExpectations(t)

	v = c.View()
	require.Equal(model.BrowseStateLoaded, v.State)
	require.False(v.Page.IsLoading)
	require.Equal(channelURL, v.Page.SourceURL)
	require.Len(v.Page.Items, 2)
	require.True(v.Page.HasMore)
}

func TestControllerSubmitURLValidation(t *testing.T) {
	c := newController(t, &backendmock.MockBackend{})
	err := c.SubmitURL("   ")
	assert.ErrorIs(t, err, model.ErrNotValid)
	assert.Equal(t, model.BrowseStateIdle, c.View().State)
}

func TestControllerAutoLoadWithoutSubmit(t *testing.T) {
	c := newController(t, &backendmock.MockBackend{})
	fired, err := c.AutoLoad(context.Background())
	assert.NoError(t, err)
	assert.False(t, fired)
}

func TestControllerNavigation(t *testing.T) {
	tests := map[string]struct {
		initial  *model.ResolveResult
		initPage int
		mock     func(m *backendmock.MockBackend)
		navigate func(ctx context.Context, c *browse.Controller) error
		expErr   error
		expPage  int
		expTab   model.Tab
	}{
		"Next with more pages should fetch the next page.": {
			initial:  collection(model.TabVideos, 1, true, "a"),
			initPage: 1,
			mock: func(m *backendmock.MockBackend) {
				m.On("Resolve", mock.Anything, model.ResolveRequest{URL: channelURL, Page: 2, Tab: model.TabVideos}).
					Once().Return(collection(model.TabVideos, 2, false, "b"), nil)
			},
			navigate: func(ctx context.Context, c *browse.Controller) error { return c.Next(ctx) },
			expPage:  2,
			expTab:   model.TabVideos,
		},
		"Next on the last page should be rejected without fetching.": {
			initial:  collection(model.TabVideos, 1, false, "a"),
			initPage: 1,
			mock:     func(m *backendmock.MockBackend) {},
			navigate: func(ctx context.Context, c *browse.Controller) error { return c.Next(ctx) },
			expErr:   model.ErrNoNextPage,
			expPage:  1,
			expTab:   model.TabVideos,
		},
		"Previous on the first page should be rejected without fetching.": {
			initial:  collection(model.TabVideos, 1, true, "a"),
			initPage: 1,
			mock:     func(m *backendmock.MockBackend) {},
			navigate: func(ctx context.Context, c *browse.Controller) error { return c.Previous(ctx) },
			expErr:   model.ErrNoPreviousPage,
			expPage:  1,
			expTab:   model.TabVideos,
		},
		"Previous should fetch the previous page.": {
			initial:  collection(model.TabVideos, 3, true, "a"),
			initPage: 3,
			mock: func(m *backendmock.MockBackend) {
				m.On("Resolve", mock.Anything, model.ResolveRequest{URL: channelURL, Page: 2, Tab: model.TabVideos}).
					Once().Return(collection(model.TabVideos, 2, true, "b"), nil)
			},
			navigate: func(ctx context.Context, c *browse.Controller) error { return c.Previous(ctx) },
			expPage:  2,
			expTab:   model.TabVideos,
		},
		"Switching to the current tab should do nothing.": {
			initial:  collection(model.TabVideos, 2, true, "a"),
			initPage: 2,
			mock:     func(m *backendmock.MockBackend) {},
			navigate: func(ctx context.Context, c *browse.Controller) error { return c.SwitchTab(ctx, model.TabVideos) },
			expPage:  2,
			expTab:   model.TabVideos,
		},
		"Switching tab should fetch the first page of the tab.": {
			initial:  collection(model.TabVideos, 2, true, "a"),
			initPage: 2,
			mock: func(m *backendmock.MockBackend) {
				m.On("Resolve", mock.Anything, model.ResolveRequest{URL: channelURL, Page: 1, Tab: model.TabShorts}).
					Once().Return(collection(model.TabShorts, 1, false, "s1"), nil)
			},
			navigate: func(ctx context.Context, c *browse.Controller) error { return c.SwitchTab(ctx, model.TabShorts) },
			expPage:  1,
			expTab:   model.TabShorts,
		},
		"Switching to an unknown tab should fail.": {
			initial:  collection(model.TabVideos, 1, true, "a"),
			initPage: 1,
			mock:     func(m *backendmock.MockBackend) {},
			navigate: func(ctx context.Context, c *browse.Controller) error { return c.SwitchTab(ctx, "live") },
			expErr:   model.ErrNotValid,
			expPage:  1,
			expTab:   model.TabVideos,
		},
		"The server page and tab echo should not be trusted.": {
			initial:  collection(model.TabVideos, 1, true, "a"),
			initPage: 1,
			mock: func(m *backendmock.MockBackend) {
				m.On("Resolve", mock.Anything, model.ResolveRequest{URL: channelURL, Page: 2, Tab: model.TabVideos}).
					Once().Return(collection(model.TabShorts, 7, true, "b"), nil)
			},
			navigate: func(ctx context.Context, c *browse.Controller) error { return c.Next(ctx) },
			expPage:  2,
			expTab:   model.TabVideos,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			m := &backendmock.MockBackend{}
			m.On("Resolve", mock.Anything, model.ResolveRequest{URL: channelURL, Page: test.initPage, Tab: model.TabVideos}).
				Once().Return(test.initial, nil)
			test.mock(m)

			c := newController(t, m)
			require.NoError(c.FetchPage(ctx, channelURL, test.initPage, model.TabVideos))

			err := test.navigate(ctx, c)
			if test.expErr != nil {
				require.ErrorIs(err, test.expErr)
			} else {
				require.NoError(err)
			}

			m.AssertExpectations(t)
			p := c.Page()
			require.Equal(test.expPage, p.Page)
			require.Equal(test.expTab, p.Tab)
			require.False(p.IsLoading)
		})
	}
}

func TestControllerFetchErrorKeepsContent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	m := &backendmock.MockBackend{}
	m.On("Resolve", mock.Anything, model.ResolveRequest{URL: channelURL, Page: 1, Tab: model.TabVideos}).
		Once().Return(collection(model.TabVideos, 1, true, "a", "b"), nil)
	m.On("Resolve", mock.Anything, model.ResolveRequest{URL: channelURL, Page: 2, Tab: model.TabVideos}).
		Once().Return(nil, errors.New("boom"))
	c := newController(t, m)

	require.NoError(c.FetchPage(ctx, channelURL, 1, model.TabVideos))
	err := c.Next(ctx)
	require.Error(err)

	v := c.View()
	require.Equal(model.BrowseStateError, v.State)
	require.False(v.Page.IsLoading)
	require.Equal("boom", v.Page.Err)
	require.Equal(1, v.Page.Page)
	require.Len(v.Page.Items, 2)

	// Re-navigation recovers.
	m.On("Resolve", mock.Anything, model.ResolveRequest{URL: channelURL, Page: 2, Tab: model.TabVideos}).
		Once().Return(collection(model.TabVideos, 2, false, "c"), nil)
	require.NoError(c.Next(ctx))
	v = c.View()
	require.Equal(model.BrowseStateLoaded, v.State)
	require.Empty(v.Page.Err)
	require.Equal(2, v.Page.Page)
}

func TestControllerFirstFetchError(t *testing.T) {
	require := require.New(t)

	m := &backendmock.MockBackend{}
	m.On("Resolve", mock.Anything, mock.Anything).Once().Return(nil, errors.New("unreachable"))
	c := newController(t, m)

	require.NoError(c.SubmitURL(channelURL))
	fired, err := c.AutoLoad(context.Background())
	require.True(fired)
	require.Error(err)

	v := c.View()
	require.Equal(model.BrowseStateError, v.State)
	require.Equal(channelURL, v.Page.SourceURL)
	require.Empty(v.Page.Items)
	require.False(v.Page.IsLoading)
	require.Equal("unreachable", v.Page.Err)
}

func TestControllerSingleItem(t *testing.T) {
	require := require.New(t)
	videoURL := "https://www.youtube.com/watch?v=abc"

	m := &backendmock.MockBackend{}
	m.On("Resolve", mock.Anything, model.ResolveRequest{URL: videoURL, Page: 1, Tab: model.TabVideos}).Once().Return(&model.ResolveResult{
		Single: &model.SingleItem{
			Title:       "A video",
			OriginalURL: videoURL,
			Formats:     []model.Format{{FormatID: "22", Resolution: "720p", Ext: "mp4"}},
		},
	}, nil)
	c := newController(t, m)

	require.NoError(c.SubmitURL(videoURL))
	_, err := c.AutoLoad(context.Background())
	require.NoError(err)

	v := c.View()
	require.True(v.IsSingle())
	require.Equal("A video", v.Single.Title)
	require.Equal(model.BrowseStateLoaded, v.State)
	require.Equal(model.CollectionKindSingleItem, v.Page.Kind)
	require.Equal(videoURL, v.Page.SourceURL)
	require.False(v.Page.IsLoading)
	require.Empty(v.Page.Items)
	require.ErrorIs(c.Next(context.Background()), model.ErrNoNextPage)
}

// blockingResolver lets the test decide when and in which order each response arrives.
type blockingResolver struct {
	calls chan *pendingCall
}

type pendingCall struct {
	req  model.ResolveRequest
	resp chan *model.ResolveResult
	err  chan error
}

func (b *blockingResolver) Resolve(ctx context.Context, req model.ResolveRequest) (*model.ResolveResult, error) {
	call := &pendingCall{req: req, resp: make(chan *model.ResolveResult, 1), err: make(chan error, 1)}
	b.calls <- call
	select {
	case res := <-call.resp:
		return res, nil
	case err := <-call.err:
		return nil, err
	}
}

func TestControllerDiscardsStaleResponses(t *testing.T) {
	tests := map[string]struct {
		staleErr bool
	}{
		"A late page response should not overwrite a newer request.": {},
		"A late error should not overwrite a newer request.":         {staleErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			r := &blockingResolver{calls: make(chan *pendingCall)}
			c := newController(t, r)

			var views []model.View
			var mu sync.Mutex
			c.Subscribe(func(v model.View) {
				mu.Lock()
				defer mu.Unlock()
				views = append(views, v)
			})

			results := make(chan error, 3)
			fetch := func(page int, tab model.Tab) *pendingCall {
				go func() { results <- c.FetchPage(ctx, channelURL, page, tab) }()
				return <-r.calls
			}

			call1 := fetch(1, model.TabVideos)
			call1.resp <- collection(model.TabVideos, 1, true, "v1")
			require.NoError(<-results)

			call2 := fetch(2, model.TabVideos)
			call3 := fetch(1, model.TabShorts)
			require.Equal(model.ResolveRequest{URL: channelURL, Page: 2, Tab: model.TabVideos}, call2.req)
			require.Equal(model.ResolveRequest{URL: channelURL, Page: 1, Tab: model.TabShorts}, call3.req)

			// Optimistic state reflects the latest request.
			p := c.Page()
			require.True(p.IsLoading)
			require.Equal(1, p.Page)
			require.Equal(model.TabShorts, p.Tab)

			call3.resp <- collection(model.TabShorts, 1, false, "s1", "s2")
			require.NoError(<-results)

			if test.staleErr {
				call2.err <- fmt.Errorf("timeout")
			} else {
				call2.resp <- collection(model.TabVideos, 2, true, "v2")
			}
			require.ErrorIs(<-results, browse.ErrSuperseded)

			v := c.View()
			require.Equal(model.BrowseStateLoaded, v.State)
			require.Equal(1, v.Page.Page)
			require.Equal(model.TabShorts, v.Page.Tab)
			require.False(v.Page.IsLoading)
			require.Empty(v.Page.Err)
			require.Equal([]string{"s1", "s2"}, itemIDs(v.Page))

			mu.Lock()
			defer mu.Unlock()
			last := views[len(views)-1]
			require.Equal(model.TabShorts, last.Page.Tab)
			require.Equal([]string{"s1", "s2"}, itemIDs(last.Page))
		})
	}
}

func TestControllerNewSessionDiscardsInFlightFetch(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	r := &blockingResolver{calls: make(chan *pendingCall)}
	c := newController(t, r)

	require.NoError(c.SubmitURL(channelURL))
	results := make(chan error, 1)
	go func() {
		_, err := c.AutoLoad(ctx)
		results <- err
	}()
	call := <-r.calls

	other := "https://www.youtube.com/playlist?list=PL1"
	require.NoError(c.SubmitURL(other))
	call.resp <- collection(model.TabVideos, 1, false, "old")
	require.ErrorIs(<-results, browse.ErrSuperseded)

	v := c.View()
	require.Equal(uint64(2), v.Session)
	require.Equal(model.BrowseStateAwaitingFirstPage, v.State)
	require.Equal(other, v.Page.SourceURL)
	require.Empty(v.Page.Items)
}

func itemIDs(p model.CollectionPage) []string {
	ids := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

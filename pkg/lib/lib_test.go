package lib_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuberip/tuberip/internal/backend/fake"
	"github.com/tuberip/tuberip/pkg/lib"
)

const channelURL = "https://www.youtube.com/@someone"

// newTestClient creates a started client against a fake backend with a temp SQLite DB.
func newTestClient(t *testing.T) (*lib.Client, string) {
	t.Helper()

	fb, err := fake.NewServer(fake.ServerConfig{PageSize: 4, ItemsPerTab: 10, StepDelay: 5 * time.Millisecond})
	require.NoError(t, err)
	srv := httptest.NewServer(fb.Handler())

	outDir := t.TempDir()
	client, err := lib.New(context.Background(), lib.Config{
		Endpoint:  srv.URL,
		DBPath:    filepath.Join(t.TempDir(), "test.db"),
		OutputDir: outDir,
	})
	require.NoError(t, err)
	client.Start(context.Background())

	t.Cleanup(func() {
		_ = client.Close()
		fb.Close()
		srv.Close()
	})

	return client, outDir
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestResolve(t *testing.T) {
	tests := map[string]struct {
		url       string
		expSingle bool
		expErr    bool
	}{
		"A channel should resolve to its first page.": {
			url: channelURL,
		},
		"A video should resolve to a single item.": {
			url:       "https://www.youtube.com/watch?v=abc",
			expSingle: true,
		},
		"A backend failure should fail.": {
			url:    "https://www.youtube.com/@fail",
			expErr: true,
		},
		"An empty URL should fail.": {
			url:    " ",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t)

			res, err := client.Resolve(testContext(t), test.url)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			if test.expSingle {
				require.NotNil(t, res.Single)
				assert.Nil(t, res.Page)
				assert.Len(t, res.Single.Formats, 3)
				return
			}
			require.NotNil(t, res.Page)
			assert.Equal(t, 1, res.Page.Number)
			assert.Equal(t, lib.TabVideos, res.Page.Tab)
			assert.Len(t, res.Page.Items, 4)
			assert.True(t, res.Page.HasMore)
		})
	}
}

func TestDownloadItems(t *testing.T) {
	require := require.New(t)
	client, outDir := newTestClient(t)
	ctx := testContext(t)

	page, err := client.Page(ctx, channelURL, 2, lib.TabVideos)
	require.NoError(err)
	require.Equal(2, page.Number)
	require.Len(page.Items, 4)

	ids, err := client.DownloadItems(ctx, page, []string{page.Items[0].ID, page.Items[2].ID}, "720")
	require.NoError(err)
	require.Len(ids, 2)

	tasks, err := client.Wait(ctx, ids)
	require.NoError(err)
	require.Len(tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, lib.TaskStatusFinished, task.Status)
		assert.True(t, task.Retrieved)
		assert.Empty(t, task.RetrievalError)
		require.NotEmpty(task.Location)
		_, err := os.Stat(task.Location)
		assert.NoError(t, err)
		assert.Equal(t, outDir, filepath.Dir(task.Location))
	}

	require.Eventually(func() bool {
		ds, err := client.History(ctx, 0)
		return err == nil && len(ds) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDownloadItemsErrors(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := testContext(t)

	page, err := client.Page(ctx, channelURL, 1, lib.TabVideos)
	require.NoError(t, err)

	_, err = client.DownloadItems(ctx, page, nil, "max")
	assert.ErrorIs(t, err, lib.ErrEmptySelection)

	_, err = client.DownloadItems(ctx, page, []string{"missing"}, "max")
	assert.ErrorIs(t, err, lib.ErrNotFound)

	_, err = client.DownloadItems(ctx, page, []string{page.Items[0].ID}, "sideways")
	assert.ErrorIs(t, err, lib.ErrNotValid)

	_, err = client.Page(ctx, channelURL, 0, lib.TabVideos)
	assert.ErrorIs(t, err, lib.ErrNotValid)
}

func TestDownloadSingle(t *testing.T) {
	require := require.New(t)
	client, _ := newTestClient(t)
	ctx := testContext(t)

	res, err := client.Resolve(ctx, "https://www.youtube.com/watch?v=abc")
	require.NoError(err)
	require.NotNil(res.Single)

	id, err := client.Download(ctx, res.Single, res.Single.Formats[1].FormatID)
	require.NoError(err)

	tasks, err := client.Wait(ctx, []string{id})
	require.NoError(err)
	require.Len(tasks, 1)
	assert.Equal(t, lib.TaskStatusFinished, tasks[0].Status)
	assert.NotEmpty(t, tasks[0].Location)

	all := client.Tasks()
	require.Len(all, 1)
	assert.Equal(t, id, all[0].ID)
}

func TestProbe(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := testContext(t)

	page, err := client.Page(ctx, channelURL, 1, lib.TabShorts)
	require.NoError(t, err)

	probes, err := client.Probe(ctx, page)
	require.NoError(t, err)
	assert.Len(t, probes, len(page.Items))
}

func TestNotStarted(t *testing.T) {
	client, err := lib.New(context.Background(), lib.Config{
		Endpoint:  "http://localhost:5000",
		DBPath:    filepath.Join(t.TempDir(), "test.db"),
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Wait(context.Background(), []string{"t1"})
	assert.ErrorIs(t, err, lib.ErrNotStarted)

	_, err = client.Download(context.Background(), &lib.SingleItem{URL: "https://www.youtube.com/watch?v=abc"}, "22")
	assert.ErrorIs(t, err, lib.ErrNotStarted)
}

func TestEndpointIsStored(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	client, err := lib.New(ctx, lib.Config{DBPath: dbPath, OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", client.Endpoint())

	assert.ErrorIs(t, client.SetEndpoint(ctx, "ftp://nas"), lib.ErrNotValid)
	require.NoError(t, client.SetEndpoint(ctx, "http://10.0.0.2:5000"))
	require.NoError(t, client.Close())

	client, err = lib.New(ctx, lib.Config{DBPath: dbPath, OutputDir: t.TempDir()})
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "http://10.0.0.2:5000", client.Endpoint())
}

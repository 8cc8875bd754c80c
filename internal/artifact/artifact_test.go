package artifact_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuberip/tuberip/internal/artifact"
	"github.com/tuberip/tuberip/internal/backend"
)

func newArtifact(name, content string) *backend.Artifact {
	return &backend.Artifact{
		Filename:    name,
		Size:        int64(len(content)),
		ContentType: "video/mp4",
		Body:        io.NopCloser(strings.NewReader(content)),
	}
}

func TestLocalSinkStore(t *testing.T) {
	tests := map[string]struct {
		existing []string
		filename string
		expName  string
	}{
		"A new file should be stored with its name.": {
			filename: "video.mp4",
			expName:  "video.mp4",
		},
		"An existing file should not be overwritten.": {
			existing: []string{"video.mp4", "video (1).mp4"},
			filename: "video.mp4",
			expName:  "video (2).mp4",
		},
		"Directories on the filename should be removed.": {
			filename: "../../etc/video.mp4",
			expName:  "video.mp4",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			dir := t.TempDir()
			for _, e := range test.existing {
				require.NoError(os.WriteFile(filepath.Join(dir, e), []byte("old"), 0644))
			}

			var status bytes.Buffer
			s, err := artifact.NewLocalSink(artifact.LocalSinkConfig{Dir: dir, StatusWriter: &status})
			require.NoError(err)

			location, err := s.Store(context.Background(), newArtifact(test.filename, "new-content"))
			require.NoError(err)
			require.Equal(filepath.Join(dir, test.expName), location)

			data, err := os.ReadFile(location)
			require.NoError(err)
			require.Equal("new-content", string(data))
			require.Contains(status.String(), "100%")

			// No temporary files should be left.
			entries, err := os.ReadDir(dir)
			require.NoError(err)
			require.Len(entries, len(test.existing)+1)
		})
	}
}

func TestLocalSinkConcurrentStoresOfTheSameName(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	s, err := artifact.NewLocalSink(artifact.LocalSinkConfig{Dir: dir})
	require.NoError(err)

	const total = 30
	locations := make([]string, total)
	errs := make([]error, total)
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locations[i], errs[i] = s.Store(context.Background(), newArtifact("video.mp4", fmt.Sprintf("content-%d", i)))
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < total; i++ {
		require.NoError(errs[i])
		require.False(seen[locations[i]], "location %s claimed twice", locations[i])
		seen[locations[i]] = true

		data, err := os.ReadFile(locations[i])
		require.NoError(err)
		require.Equal(fmt.Sprintf("content-%d", i), string(data))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(err)
	require.Len(entries, total)
}

func TestLocalSinkRequiresDir(t *testing.T) {
	_, err := artifact.NewLocalSink(artifact.LocalSinkConfig{})
	assert.Error(t, err)
}

type fakeUploader struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.input = input
	data, _ := io.ReadAll(input.Body)
	f.body = string(data)
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{}, nil
}

func TestS3SinkStore(t *testing.T) {
	tests := map[string]struct {
		prefix      string
		uploadErr   error
		expKey      string
		expLocation string
		expErr      bool
	}{
		"Files should be uploaded under the prefix.": {
			prefix:      "/downloads/",
			expKey:      "downloads/video.mp4",
			expLocation: "s3://media/downloads/video.mp4",
		},
		"Files without prefix should be uploaded on the root.": {
			expKey:      "video.mp4",
			expLocation: "s3://media/video.mp4",
		},
		"Upload errors should be returned.": {
			uploadErr: errors.New("access denied"),
			expKey:    "video.mp4",
			expErr:    true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			up := &fakeUploader{err: test.uploadErr}
			s, err := artifact.NewS3Sink(artifact.S3SinkConfig{Bucket: "media", KeyPrefix: test.prefix, Uploader: up})
			require.NoError(err)

			location, err := s.Store(context.Background(), newArtifact("video.mp4", "content"))
			require.Equal(test.expKey, *up.input.Key)
			require.Equal("media", *up.input.Bucket)
			require.Equal("video/mp4", *up.input.ContentType)
			require.Equal("content", up.body)
			if test.expErr {
				require.Error(err)
				return
			}
			require.NoError(err)
			require.Equal(test.expLocation, location)
		})
	}
}

func TestNewS3SinkValidation(t *testing.T) {
	_, err := artifact.NewS3Sink(artifact.S3SinkConfig{Uploader: &fakeUploader{}})
	assert.Error(t, err)

	_, err = artifact.NewS3Sink(artifact.S3SinkConfig{Bucket: "media"})
	assert.Error(t, err)
}

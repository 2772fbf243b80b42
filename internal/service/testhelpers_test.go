package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/bsvdl/internal/config"
	"github.com/iconidentify/bsvdl/internal/metrics"
	"github.com/iconidentify/bsvdl/pkg/bluesky"
)

// testLogger returns a logger that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testVideoHost = "https://video.example"

func testBlueskyConfig() config.BlueskyConfig {
	return config.BlueskyConfig{VideoHost: testVideoHost}
}

// mockHandleResolver resolves from a fixed table.
type mockHandleResolver struct {
	mu    sync.Mutex
	dids  map[string]string
	err   error
	calls []string
}

func (m *mockHandleResolver) ResolveHandle(ctx context.Context, handle string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, handle)
	if m.err != nil {
		return "", m.err
	}
	did, ok := m.dids[handle]
	if !ok {
		return "", errors.New("Unable to resolve handle")
	}
	return did, nil
}

// mockPostFetcher serves posts by at:// URI.
type mockPostFetcher struct {
	mu    sync.Mutex
	posts map[string]*bluesky.PostView
	calls []string
}

func (m *mockPostFetcher) GetPostThread(ctx context.Context, uri string) (*bluesky.PostView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, uri)
	post, ok := m.posts[uri]
	if !ok {
		return nil, fmt.Errorf("post not found: %s", uri)
	}
	return post, nil
}

// mockFetcher serves playlists and segments from memory and records every
// request.
type mockFetcher struct {
	mu       sync.Mutex
	texts    map[string]string
	blobs    map[string][]byte
	fail     map[string]error
	delay    time.Duration
	delays   map[string]time.Duration
	calls    []string
	inFlight int
	maxSeen  int
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		texts:  make(map[string]string),
		blobs:  make(map[string][]byte),
		fail:   make(map[string]error),
		delays: make(map[string]time.Duration),
	}
}

func (m *mockFetcher) FetchText(ctx context.Context, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, url)
	if err := m.fail[url]; err != nil {
		return "", err
	}
	text, ok := m.texts[url]
	if !ok {
		return "", fmt.Errorf("unexpected status code 404 for %s", url)
	}
	return text, nil
}

func (m *mockFetcher) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.inFlight++
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	delay := m.delay
	if d, ok := m.delays[url]; ok {
		delay = d
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[url]; err != nil {
		return nil, 0, err
	}
	data, ok := m.blobs[url]
	if !ok {
		return nil, 0, fmt.Errorf("unexpected status code 404 for %s", url)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// byteConcatenator joins the listed files byte for byte, standing in for
// ffmpeg's stream copy. Relative entries are resolved against the list
// file's directory, as the concat demuxer does.
type byteConcatenator struct {
	mu    sync.Mutex
	lists [][]string
	err   error
}

func (c *byteConcatenator) ConcatCopy(ctx context.Context, listPath, outputPath string) error {
	if c.err != nil {
		return c.err
	}

	data, err := os.ReadFile(listPath)
	if err != nil {
		return err
	}

	var files []string
	var out bytes.Buffer
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if !strings.HasPrefix(line, "file '") || !strings.HasSuffix(line, "'") {
			return fmt.Errorf("malformed concat line %q", line)
		}
		path := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		path = strings.ReplaceAll(path, `'\''`, "'")
		files = append(files, path)

		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(listPath), path)
		}
		part, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out.Write(part)
	}

	c.mu.Lock()
	c.lists = append(c.lists, files)
	c.mu.Unlock()

	return os.WriteFile(outputPath, out.Bytes(), 0644)
}

// assertEmptyDir fails the test if dir has any entries.
func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("scratch dir should be empty, found %v", names)
	}
}

func newTestAssembler(fetcher Fetcher, concat Concatenator, scratch string, concurrency int) *Assembler {
	return NewAssembler(
		fetcher,
		concat,
		config.StorageConfig{ScratchDir: scratch, MaxOutputSize: 1 << 20},
		config.DownloadConfig{Concurrency: concurrency},
		metrics.New(),
		testLogger(),
	)
}

func videoPost(did, cid string) *bluesky.PostView {
	return &bluesky.PostView{
		URI:    "at://" + did + "/app.bsky.feed.post/abc123",
		Author: bluesky.ProfileBasic{DID: did},
		Record: bluesky.PostRecord{
			Type: "app.bsky.feed.post",
			Embed: &bluesky.RecordEmbed{
				Type:  "app.bsky.embed.video",
				Video: &bluesky.Blob{Type: "blob", Ref: bluesky.BlobRef{Link: cid}, MimeType: "video/mp4"},
			},
		},
		Embed: &bluesky.EmbedView{Type: "app.bsky.embed.video#view", CID: cid},
	}
}

func quotePost(did, cid string) *bluesky.PostView {
	return &bluesky.PostView{
		URI:    "at://" + did + "/app.bsky.feed.post/abc123",
		Author: bluesky.ProfileBasic{DID: did},
		Record: bluesky.PostRecord{
			Type: "app.bsky.feed.post",
			Embed: &bluesky.RecordEmbed{
				Type: "app.bsky.embed.recordWithMedia",
				Media: &bluesky.RecordEmbed{
					Type:  "app.bsky.embed.video",
					Video: &bluesky.Blob{Type: "blob", Ref: bluesky.BlobRef{Link: cid}},
				},
			},
		},
		Embed: &bluesky.EmbedView{Type: "app.bsky.embed.recordWithMedia#view"},
	}
}

// imagePost returns a post whose hydrated embed has the given $type and no
// video in its record.
func imagePost(did, embedType string) *bluesky.PostView {
	return &bluesky.PostView{
		URI:    "at://" + did + "/app.bsky.feed.post/abc123",
		Author: bluesky.ProfileBasic{DID: did},
		Record: bluesky.PostRecord{
			Type:  "app.bsky.feed.post",
			Embed: &bluesky.RecordEmbed{Type: "app.bsky.embed.images"},
		},
		Embed: &bluesky.EmbedView{Type: embedType},
	}
}

const testMaster = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=653000,RESOLUTION=640x360
360p/video.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1857000,RESOLUTION=1280x720
720p/video.m3u8
`

func mediaPlaylist(names ...string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:0\n")
	for _, n := range names {
		b.WriteString("#EXTINF:4.000,\n")
		b.WriteString(n)
		b.WriteString("\n")
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/iconidentify/bsvdl/internal/domain"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockVideoProcessor records calls and returns a canned result.
type mockVideoProcessor struct {
	mu       sync.Mutex
	video    *domain.AssembledVideo
	err      error
	panicMsg string
	calls    []processCall
}

type processCall struct {
	postURL string
	quality string
}

func (m *mockVideoProcessor) Process(ctx context.Context, postURL, quality string) (*domain.AssembledVideo, error) {
	m.mu.Lock()
	m.calls = append(m.calls, processCall{postURL: postURL, quality: quality})
	m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.video, nil
}

// mockUpstream is a test implementation of UpstreamChecker.
type mockUpstream struct {
	err error
}

func (m *mockUpstream) CheckUpstream(ctx context.Context) error {
	return m.err
}

var errUpstream = errors.New("resolve bsky.app: connection refused")

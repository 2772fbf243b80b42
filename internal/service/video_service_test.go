package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/iconidentify/bsvdl/internal/domain"
	"github.com/iconidentify/bsvdl/internal/metrics"
	"github.com/iconidentify/bsvdl/pkg/bluesky"
)

type pipelineFixture struct {
	svc     *VideoService
	handles *mockHandleResolver
	posts   *mockPostFetcher
	fetcher *mockFetcher
	concat  *byteConcatenator
	scratch string
}

func newPipelineFixture(t *testing.T, post *bluesky.PostView) *pipelineFixture {
	t.Helper()
	fx := &pipelineFixture{
		handles: &mockHandleResolver{dids: map[string]string{
			"alice.example": testDID,
			"bsky.app":      "did:plc:z72i7hdynmk6r22z27h6tvur",
		}},
		posts:   &mockPostFetcher{posts: map[string]*bluesky.PostView{testURI: post}},
		fetcher: newPlaylistFetcher(),
		concat:  &byteConcatenator{},
		scratch: t.TempDir(),
	}
	for _, tier := range []string{"360p", "720p"} {
		for _, name := range []string{"video0.ts", "video1.ts", "video2.ts"} {
			fx.fetcher.blobs[testBase+"/"+tier+"/"+name] = []byte("[" + tier + " " + name + "]")
		}
	}

	m := metrics.New()
	fx.svc = NewVideoService(
		fx.handles,
		fx.posts,
		NewSelector(fx.fetcher, testBlueskyConfig(), testLogger()),
		newTestAssembler(fx.fetcher, fx.concat, fx.scratch, 4),
		m,
		testLogger(),
	)
	return fx
}

func TestVideoService_Process(t *testing.T) {
	fx := newPipelineFixture(t, videoPost(testDID, testCID))

	video, err := fx.svc.Process(context.Background(), "https://bsky.app/profile/alice.example/post/abc123", "320p")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if video.Filename != "abc123_360p.mp4" {
		t.Errorf("Filename = %q, want abc123_360p.mp4", video.Filename)
	}
	if video.Tier != domain.TierStandard {
		t.Errorf("Tier = %q, want standard", video.Tier)
	}
	if video.SegmentCount != 3 {
		t.Errorf("SegmentCount = %d, want 3", video.SegmentCount)
	}
	want := "[360p video0.ts][360p video1.ts][360p video2.ts]"
	if string(video.Data) != want {
		t.Errorf("Data = %q, want %q", video.Data, want)
	}
	assertEmptyDir(t, fx.scratch)
}

func TestVideoService_Process_QualityTiers(t *testing.T) {
	tests := []struct {
		quality      string
		wantFilename string
	}{
		{"320p", "abc123_360p.mp4"},
		{"360p", "abc123_720p.mp4"},
		{"720p", "abc123_720p.mp4"},
		{"1080p", "abc123_720p.mp4"},
		{"", "abc123_720p.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.quality, func(t *testing.T) {
			fx := newPipelineFixture(t, videoPost(testDID, testCID))

			video, err := fx.svc.Process(context.Background(), "https://bsky.app/profile/alice.example/post/abc123", tt.quality)
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if video.Filename != tt.wantFilename {
				t.Errorf("Filename = %q, want %q", video.Filename, tt.wantFilename)
			}
		})
	}
}

func TestVideoService_Process_RecordWithMedia(t *testing.T) {
	fx := newPipelineFixture(t, quotePost(testDID, testCID))

	video, err := fx.svc.Process(context.Background(), "https://alice.example/post/abc123", "720p")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if video.Filename != "abc123_720p.mp4" {
		t.Errorf("Filename = %q", video.Filename)
	}
	if !strings.HasPrefix(string(video.Data), "[720p video0.ts]") {
		t.Errorf("Data = %q", video.Data)
	}
}

func TestVideoService_Process_ImageEmbed(t *testing.T) {
	for _, embedType := range []string{"app.bsky.embed.image#view", "app.bsky.embed.images#view"} {
		t.Run(embedType, func(t *testing.T) {
			fx := newPipelineFixture(t, imagePost(testDID, embedType))

			_, err := fx.svc.Process(context.Background(), "https://bsky.app/profile/alice.example/post/abc123", "320p")
			if !errors.Is(err, domain.ErrResolution) {
				t.Fatalf("err = %v, want ErrResolution", err)
			}
			if !strings.Contains(err.Error(), "("+embedType+")") {
				t.Errorf("error should name the embed type %q, got %v", embedType, err)
			}
			if n := fx.fetcher.callCount(); n != 0 {
				t.Errorf("video host should not be contacted, got %d calls", n)
			}
			assertEmptyDir(t, fx.scratch)
		})
	}
}

func TestVideoService_Process_Errors(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		setup   func(fx *pipelineFixture)
		wantErr error
		stage   string
	}{
		{
			name:    "empty URL",
			url:     "",
			wantErr: domain.ErrParse,
			stage:   domain.StageParse,
		},
		{
			name:    "profile URL without post",
			url:     "https://bsky.app/profile/alice.example",
			wantErr: domain.ErrParse,
			stage:   domain.StageParse,
		},
		{
			name:    "unknown handle",
			url:     "https://bsky.app/profile/nobody.example/post/abc123",
			wantErr: domain.ErrResolution,
			stage:   domain.StageResolve,
		},
		{
			name: "master playlist missing",
			url:  "https://bsky.app/profile/alice.example/post/abc123",
			setup: func(fx *pipelineFixture) {
				delete(fx.fetcher.texts, testBase+"/playlist.m3u8")
			},
			wantErr: domain.ErrManifest,
			stage:   domain.StageManifest,
		},
		{
			name: "segment missing",
			url:  "https://bsky.app/profile/alice.example/post/abc123",
			setup: func(fx *pipelineFixture) {
				delete(fx.fetcher.blobs, testBase+"/360p/video1.ts")
			},
			wantErr: domain.ErrDownload,
			stage:   domain.StageDownload,
		},
		{
			name: "concat fails",
			url:  "https://bsky.app/profile/alice.example/post/abc123",
			setup: func(fx *pipelineFixture) {
				fx.concat.err = errors.New("exit status 1")
			},
			wantErr: domain.ErrAssembly,
			stage:   domain.StageAssemble,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newPipelineFixture(t, videoPost(testDID, testCID))
			if tt.setup != nil {
				tt.setup(fx)
			}

			video, err := fx.svc.Process(context.Background(), tt.url, "320p")
			if video != nil {
				t.Error("no video expected on failure")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := domain.StageOf(err); got != tt.stage {
				t.Errorf("stage = %q, want %q", got, tt.stage)
			}
			if !strings.HasPrefix(err.Error(), tt.stage+": ") {
				t.Errorf("message should start with the stage, got %q", err.Error())
			}
			assertEmptyDir(t, fx.scratch)
		})
	}
}

func TestVideoService_CheckUpstream(t *testing.T) {
	fx := newPipelineFixture(t, videoPost(testDID, testCID))

	if err := fx.svc.CheckUpstream(context.Background()); err != nil {
		t.Errorf("CheckUpstream failed: %v", err)
	}

	fx.handles.err = errors.New("connection refused")
	err := fx.svc.CheckUpstream(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected upstream error, got %v", err)
	}
}

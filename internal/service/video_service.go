package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/bsvdl/internal/domain"
	"github.com/iconidentify/bsvdl/internal/metrics"
	"github.com/iconidentify/bsvdl/pkg/bluesky"
)

// healthHandle is resolved to check that the directory service answers.
const healthHandle = "bsky.app"

// VideoService runs the post URL to MP4 pipeline.
type VideoService struct {
	handles   HandleResolver
	resolver  *Resolver
	selector  *Selector
	assembler *Assembler
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewVideoService creates a new video service.
func NewVideoService(
	handles HandleResolver,
	posts PostFetcher,
	selector *Selector,
	assembler *Assembler,
	m *metrics.Metrics,
	logger *slog.Logger,
) *VideoService {
	return &VideoService{
		handles:   handles,
		resolver:  NewResolver(handles, posts, logger),
		selector:  selector,
		assembler: assembler,
		metrics:   m,
		logger:    logger,
	}
}

// Process downloads the video embedded in the post at postURL in the requested
// quality. Unrecognized quality values fall back to the high tier.
func (s *VideoService) Process(ctx context.Context, postURL, quality string) (video *domain.AssembledVideo, err error) {
	tier, known := domain.ParseQualityTier(quality)
	if !known {
		s.logger.Warn("unrecognized quality, using high tier", "quality", quality)
	}

	done := s.metrics.RequestStarted()
	start := time.Now()
	defer func() {
		done(string(tier), domain.StageOf(err), err)
	}()

	logger := s.logger.With("post_url", postURL, "tier", tier)

	var ref domain.PostReference
	if err = s.stage(domain.StageParse, func() (serr error) {
		ref, serr = bluesky.ParsePostURL(postURL)
		return serr
	}); err != nil {
		logger.Info("post URL rejected", "error", err)
		return nil, err
	}

	var loc domain.VideoLocator
	if err = s.stage(domain.StageResolve, func() (serr error) {
		loc, serr = s.resolver.Resolve(ctx, ref)
		return serr
	}); err != nil {
		logger.Info("post resolution failed", "error", err)
		return nil, err
	}

	var (
		segments domain.SegmentList
		suffix   string
	)
	if err = s.stage(domain.StageManifest, func() (serr error) {
		segments, suffix, serr = s.selector.SelectSegments(ctx, loc, tier)
		return serr
	}); err != nil {
		logger.Info("rendition selection failed", "error", err)
		return nil, err
	}

	if err = s.stage(domain.StageAssemble, func() (serr error) {
		video, serr = s.assembler.Assemble(ctx, segments)
		return serr
	}); err != nil {
		logger.Error("video assembly failed", "segments", len(segments), "error", err)
		return nil, err
	}

	video.Filename = ref.PostID + suffix
	video.Tier = tier

	logger.Info("video assembled",
		"filename", video.Filename,
		"segments", video.SegmentCount,
		"size_bytes", video.Size(),
		"duration", time.Since(start),
	)

	return video, nil
}

// CheckUpstream resolves a well-known handle to confirm the directory
// service is reachable.
func (s *VideoService) CheckUpstream(ctx context.Context) error {
	if _, err := s.handles.ResolveHandle(ctx, healthHandle); err != nil {
		return fmt.Errorf("resolve %s: %w", healthHandle, err)
	}
	return nil
}

func (s *VideoService) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveStage(name, time.Since(start))
	return err
}

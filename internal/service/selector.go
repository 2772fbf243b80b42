package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iconidentify/bsvdl/internal/config"
	"github.com/iconidentify/bsvdl/internal/domain"
	"github.com/iconidentify/bsvdl/pkg/hls"
)

// segmentPrefix marks media segment lines in a rendition playlist.
const segmentPrefix = "video"

// Selector picks the rendition for a quality tier and lists its segments.
type Selector struct {
	fetcher Fetcher
	cfg     config.BlueskyConfig
	logger  *slog.Logger
}

// NewSelector creates a new selector.
func NewSelector(fetcher Fetcher, cfg config.BlueskyConfig, logger *slog.Logger) *Selector {
	return &Selector{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
	}
}

// SelectSegments returns the absolute segment URLs of the tier's rendition in
// playback order, and the filename suffix for that tier.
func (s *Selector) SelectSegments(ctx context.Context, loc domain.VideoLocator, tier domain.QualityTier) (domain.SegmentList, string, error) {
	if !loc.Valid() {
		return nil, "", domain.NewManifestError("", errors.New("incomplete video locator"))
	}

	base := s.cfg.VideoBaseURL(loc.AuthorID, loc.VideoRef)
	prefix := tier.Prefix()

	masterURL := base + "/playlist.m3u8"
	master, err := s.fetcher.FetchText(ctx, masterURL)
	if err != nil {
		return nil, "", domain.NewManifestError(masterURL, fmt.Errorf("fetch master playlist: %w", err))
	}

	rendition, ok := hls.FirstWithPrefix(hls.RenditionURIs(master), prefix)
	if !ok {
		return nil, "", domain.NewManifestError(prefix, errors.New("no rendition for requested quality"))
	}

	renditionURL := base + "/" + rendition
	media, err := s.fetcher.FetchText(ctx, renditionURL)
	if err != nil {
		return nil, "", domain.NewManifestError(renditionURL, fmt.Errorf("fetch rendition playlist: %w", err))
	}

	names := hls.WithPrefix(hls.SegmentURIs(media), segmentPrefix)
	if len(names) == 0 {
		return nil, "", domain.NewManifestError(renditionURL, errors.New("rendition lists no segments"))
	}

	segments := make(domain.SegmentList, len(names))
	for i, name := range names {
		segments[i] = base + "/" + prefix + "/" + name
	}

	s.logger.Debug("rendition selected",
		"rendition", rendition,
		"segments", len(segments),
	)

	return segments, tier.FilenameSuffix(), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iconidentify/bsvdl/internal/domain"
	"github.com/iconidentify/bsvdl/pkg/bluesky"
)

// Resolver turns a post reference into the locator of its embedded video.
type Resolver struct {
	handles HandleResolver
	posts   PostFetcher
	logger  *slog.Logger
}

// NewResolver creates a new resolver.
func NewResolver(handles HandleResolver, posts PostFetcher, logger *slog.Logger) *Resolver {
	return &Resolver{
		handles: handles,
		posts:   posts,
		logger:  logger,
	}
}

// Resolve looks up the author's DID and the video blob referenced by the post.
func (r *Resolver) Resolve(ctx context.Context, ref domain.PostReference) (domain.VideoLocator, error) {
	if !ref.HasPostID() {
		return domain.VideoLocator{}, domain.NewParseError(ref.Handle, errors.New("no post ID in URL"))
	}

	did, err := r.handles.ResolveHandle(ctx, ref.Handle)
	if err != nil {
		return domain.VideoLocator{}, domain.NewResolutionError(ref.Handle, fmt.Errorf("resolve handle: %w", err))
	}

	uri := bluesky.PostURI(did, ref.PostID)
	post, err := r.posts.GetPostThread(ctx, uri)
	if err != nil {
		return domain.VideoLocator{}, domain.NewResolutionError(uri, fmt.Errorf("fetch post: %w", err))
	}

	videoRef, err := embeddedVideoRef(post)
	if err != nil {
		return domain.VideoLocator{}, err
	}

	r.logger.Debug("post resolved",
		"handle", ref.Handle,
		"did", did,
		"post_id", ref.PostID,
		"video_ref", videoRef,
	)

	return domain.VideoLocator{AuthorID: did, VideoRef: videoRef}, nil
}

// embeddedVideoRef picks the video blob CID out of a post, based on the
// hydrated embed's $type.
func embeddedVideoRef(post *bluesky.PostView) (string, error) {
	embedType := "none"
	if post.Embed != nil && post.Embed.Type != "" {
		embedType = post.Embed.Type
	}

	var blob *bluesky.Blob
	switch {
	case strings.Contains(embedType, "recordWithMedia"):
		if e := post.Record.Embed; e != nil && e.Media != nil {
			blob = e.Media.Video
		}
	case strings.Contains(embedType, "video#view"):
		if e := post.Record.Embed; e != nil {
			blob = e.Video
		}
	default:
		return "", domain.NewResolutionError(embedType, errors.New("unsupported embed type"))
	}

	if blob == nil || blob.Ref.Link == "" {
		return "", domain.NewResolutionError(embedType, errors.New("post record has no video reference"))
	}
	return blob.Ref.Link, nil
}

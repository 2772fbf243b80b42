package service

import (
	"context"
	"io"

	"github.com/iconidentify/bsvdl/pkg/bluesky"
)

// HandleResolver maps a handle to its DID.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
}

// PostFetcher loads a single post by its at:// URI.
type PostFetcher interface {
	GetPostThread(ctx context.Context, uri string) (*bluesky.PostView, error)
}

// Fetcher retrieves playlists and media segments.
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)
	FetchText(ctx context.Context, url string) (string, error)
}

// Concatenator joins the files named in a concat list into one container
// without re-encoding.
type Concatenator interface {
	ConcatCopy(ctx context.Context, listPath, outputPath string) error
}

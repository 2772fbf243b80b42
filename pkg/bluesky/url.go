package bluesky

import (
	"errors"
	"strings"

	"github.com/iconidentify/bsvdl/internal/domain"
)

// PostCollection is the record collection of feed posts.
const PostCollection = "app.bsky.feed.post"

// ParsePostURL extracts the author handle and post ID from a post URL.
//
// Supported formats:
//
//	https://bsky.app/profile/alice.bsky.social/post/3laxj7gxgwk2e
//	https://alice.bsky.social/post/3laxj7gxgwk2e
//
// The post ID is empty when the URL has no post segment. The handle is not
// validated beyond being non-empty; resolution surfaces bad handles.
func ParsePostURL(raw string) (domain.PostReference, error) {
	s := strings.TrimSpace(raw)

	var parts []string
	if _, rest, ok := strings.Cut(s, "/profile/"); ok {
		parts = strings.Split(rest, "/")
	} else {
		s = strings.TrimPrefix(s, "https://")
		s = strings.TrimPrefix(s, "http://")
		parts = strings.Split(s, "/")
	}

	ref := domain.PostReference{Handle: stripQuery(parts[0])}
	if len(parts) > 2 {
		ref.PostID = stripQuery(parts[2])
	}

	if ref.Handle == "" {
		return domain.PostReference{}, domain.NewParseError(raw, errors.New("no handle in post URL"))
	}
	return ref, nil
}

// PostURI builds the at:// URI of a post record.
func PostURI(did, postID string) string {
	return "at://" + did + "/" + PostCollection + "/" + postID
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

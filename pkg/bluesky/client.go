// Package bluesky adapts the indigo XRPC client to the lookups the video
// pipeline needs: handle resolution, post threads, and the authenticated
// session they run under.
package bluesky

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
)

// Config configures a Client.
type Config struct {
	// PDSHost serves the account session and proxies authenticated app.bsky calls.
	PDSHost string
	// AppViewHost serves unauthenticated lookups such as handle resolution.
	AppViewHost string
	Identifier  string
	Password    string
	Timeout     time.Duration
	UserAgent   string
}

// Client talks to a PDS and an app view. It is safe for concurrent use once
// Login has returned.
type Client struct {
	appView *xrpc.Client
	session *Session
	logger  *slog.Logger
}

// NewClient creates a new Bluesky client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc := &http.Client{Timeout: cfg.Timeout}

	return &Client{
		appView: newXRPCClient(hc, cfg.AppViewHost, cfg.UserAgent, nil),
		session: NewSession(hc, cfg.PDSHost, cfg.Identifier, cfg.Password, cfg.UserAgent),
		logger:  logger,
	}
}

func newXRPCClient(hc *http.Client, host, userAgent string, auth *xrpc.AuthInfo) *xrpc.Client {
	c := &xrpc.Client{
		Client: hc,
		Host:   strings.TrimRight(host, "/"),
		Auth:   auth,
	}
	if userAgent != "" {
		c.UserAgent = &userAgent
	}
	return c
}

// Login establishes the session used by authenticated calls.
func (c *Client) Login(ctx context.Context) error {
	if err := c.session.Create(ctx); err != nil {
		return err
	}
	c.logger.Info("logged in to bluesky", "handle", c.session.Handle(), "did", c.session.DID())
	return nil
}

// ResolveHandle returns the DID for a handle. A DID passed as the handle is
// returned unchanged.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if strings.HasPrefix(handle, "did:") {
		return handle, nil
	}

	out, err := comatproto.IdentityResolveHandle(ctx, c.appView, handle)
	if err != nil {
		return "", fmt.Errorf("resolve handle %q: %w", handle, err)
	}
	if out.Did == "" {
		return "", fmt.Errorf("resolve handle %q: empty DID in response", handle)
	}
	return out.Did, nil
}

// GetPostThread fetches a post by its at:// URI without replies or parents.
func (c *Client) GetPostThread(ctx context.Context, uri string) (*PostView, error) {
	var out *appbsky.FeedGetPostThread_Output
	err := c.withSession(ctx, "app.bsky.feed.getPostThread", func(xc *xrpc.Client) error {
		var err error
		out, err = appbsky.FeedGetPostThread(ctx, xc, 0, 0, uri)
		return err
	})
	if err != nil {
		return nil, err
	}

	thread := out.Thread
	switch {
	case thread == nil:
		return nil, fmt.Errorf("empty thread for %s", uri)
	case thread.FeedDefs_NotFoundPost != nil:
		return nil, fmt.Errorf("post not found: %s", uri)
	case thread.FeedDefs_BlockedPost != nil:
		return nil, fmt.Errorf("post is blocked: %s", uri)
	case thread.FeedDefs_ThreadViewPost == nil || thread.FeedDefs_ThreadViewPost.Post == nil:
		return nil, fmt.Errorf("unexpected thread node for %s", uri)
	}
	return postViewFromLex(thread.FeedDefs_ThreadViewPost.Post), nil
}

// withSession runs an authenticated call. A call rejected for an expired
// token refreshes the session once and is retried.
func (c *Client) withSession(ctx context.Context, method string, call func(*xrpc.Client) error) error {
	xc, token, err := c.session.authedClient()
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	err = call(xc)
	if IsExpiredToken(err) {
		c.logger.Info("bluesky access token expired, refreshing session")
		if rerr := c.session.Refresh(ctx, token); rerr != nil {
			return fmt.Errorf("%s: refresh session: %w", method, rerr)
		}
		if xc, _, err = c.session.authedClient(); err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		err = call(xc)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// IsExpiredToken reports whether err is an XRPC rejection of the access token.
func IsExpiredToken(err error) bool {
	var xe *xrpc.Error
	if !errors.As(err, &xe) {
		return false
	}
	if xe.StatusCode == http.StatusUnauthorized {
		return true
	}
	return errorName(err) == "ExpiredToken"
}

// IsRejected reports whether err is a refusal that repeating the call will not
// change: missing credentials or a 4xx XRPC response other than 429.
func IsRejected(err error) bool {
	if errors.Is(err, ErrNoCredentials) {
		return true
	}
	var xe *xrpc.Error
	if !errors.As(err, &xe) {
		return false
	}
	return xe.StatusCode >= 400 && xe.StatusCode < 500 && xe.StatusCode != http.StatusTooManyRequests
}

// errorName returns the XRPC error name carried by err, if any.
func errorName(err error) string {
	var body *xrpc.XRPCError
	if errors.As(err, &body) {
		return body.ErrStr
	}
	return ""
}

package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/xrpc"
)

// ErrNoCredentials is returned by Create when no identifier or password is set.
var ErrNoCredentials = errors.New("identifier and password are required")

// Session holds the authenticated PDS session shared by all requests.
// It is created once at startup; Refresh is the only path that replaces tokens.
type Session struct {
	hc         *http.Client
	host       string
	identifier string
	password   string
	userAgent  string

	// refreshMu serializes Refresh so concurrent callers holding the same
	// expired token trigger a single refresh.
	refreshMu sync.Mutex

	mu   sync.RWMutex
	auth xrpc.AuthInfo
}

// NewSession creates an unauthenticated session. Call Create before use.
func NewSession(hc *http.Client, host, identifier, password, userAgent string) *Session {
	return &Session{
		hc:         hc,
		host:       strings.TrimRight(host, "/"),
		identifier: identifier,
		password:   password,
		userAgent:  userAgent,
	}
}

// Create logs in with the configured identifier and app password.
func (s *Session) Create(ctx context.Context) error {
	if strings.TrimSpace(s.identifier) == "" || s.password == "" {
		return ErrNoCredentials
	}

	out, err := comatproto.ServerCreateSession(ctx, s.xrpcClient(nil), &comatproto.ServerCreateSession_Input{
		Identifier: s.identifier,
		Password:   s.password,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	s.store(xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	})
	return nil
}

// Refresh replaces the access token. stale is the token the caller saw rejected;
// if another caller already replaced it, Refresh returns immediately.
// When the refresh token itself is rejected a fresh login is attempted.
func (s *Session) Refresh(ctx context.Context, stale string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.RLock()
	current := s.auth.AccessJwt
	rt := s.auth.RefreshJwt
	s.mu.RUnlock()

	if current != "" && current != stale {
		return nil
	}

	if rt != "" {
		// refreshSession is authorized by the refresh token.
		out, err := comatproto.ServerRefreshSession(ctx, s.xrpcClient(&xrpc.AuthInfo{AccessJwt: rt, RefreshJwt: rt}))
		if err == nil {
			s.store(xrpc.AuthInfo{
				AccessJwt:  out.AccessJwt,
				RefreshJwt: out.RefreshJwt,
				Handle:     out.Handle,
				Did:        out.Did,
			})
			return nil
		}
	}

	return s.Create(ctx)
}

// DID returns the DID of the logged-in account.
func (s *Session) DID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth.Did
}

// Handle returns the handle of the logged-in account.
func (s *Session) Handle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth.Handle
}

// authedClient returns an XRPC client bound to a snapshot of the current
// tokens, together with the access token it carries.
func (s *Session) authedClient() (*xrpc.Client, string, error) {
	s.mu.RLock()
	auth := s.auth
	s.mu.RUnlock()

	if auth.AccessJwt == "" {
		return nil, "", fmt.Errorf("session not established")
	}
	return s.xrpcClient(&auth), auth.AccessJwt, nil
}

func (s *Session) xrpcClient(auth *xrpc.AuthInfo) *xrpc.Client {
	return newXRPCClient(s.hc, s.host, s.userAgent, auth)
}

func (s *Session) store(auth xrpc.AuthInfo) {
	s.mu.Lock()
	s.auth.AccessJwt = auth.AccessJwt
	if auth.RefreshJwt != "" {
		s.auth.RefreshJwt = auth.RefreshJwt
	}
	if auth.Did != "" {
		s.auth.Did = auth.Did
	}
	if auth.Handle != "" {
		s.auth.Handle = auth.Handle
	}
	s.mu.Unlock()
}

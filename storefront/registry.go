package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/norun9/shopstate/identity"
	"github.com/norun9/shopstate/kvstore"
)

// Registry defaults.
const (
	DefaultMaxSessions = 10000
	DefaultSessionIdle = 30 * time.Minute
)

// registryEntry is a session slot; ready is closed once sess is loaded.
type registryEntry struct {
	ready chan struct{}
	sess  *Session
}

// Registry hands out one Session per browser id, each over its own namespace of a shared
// backend. It holds at most maxSessions sessions and drops any left idle for longer than
// the idle timeout; a dropped session is rebuilt from the backend on its next request.
type Registry struct {
	backend kvstore.IKVStore
	log     logrus.FieldLogger
	ident   identity.IdentityContext

	mu       sync.Mutex
	sessions *expirable.LRU[string, *registryEntry]
}

// NewRegistry constructor. ident supplies the clock and token source for every session;
// its UserID is ignored.
func NewRegistry(backend kvstore.IKVStore, ident identity.IdentityContext, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ident.UserID = ""
	return &Registry{
		backend:  backend,
		log:      log,
		ident:    ident,
		sessions: expirable.NewLRU[string, *registryEntry](DefaultMaxSessions, nil, DefaultSessionIdle),
	}
}

// WithLimits replaces the session bounds. idle <= 0 disables idle eviction. Call it before
// the registry serves requests; live sessions are dropped.
func (r *Registry) WithLimits(maxSessions int, idle time.Duration) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = expirable.NewLRU[string, *registryEntry](maxSessions, nil, idle)
	return r
}

// Session returns the session for browserID, creating and loading it on first use.
// Loading happens outside the registry lock; concurrent callers for the same browser
// wait for the one load.
func (r *Registry) Session(ctx context.Context, browserID string) *Session {
	r.mu.Lock()
	if e, ok := r.sessions.Get(browserID); ok {
		// re-adding refreshes the idle deadline
		r.sessions.Add(browserID, e)
		r.mu.Unlock()
		<-e.ready
		return e.sess
	}
	e := &registryEntry{ready: make(chan struct{})}
	r.sessions.Add(browserID, e)
	r.mu.Unlock()

	e.sess = NewSession(context.WithoutCancel(ctx), kvstore.NewNamespace(r.backend, browserID), r.ident, r.log.WithField("browser_id", browserID))
	close(e.ready)
	return e.sess
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Len()
}

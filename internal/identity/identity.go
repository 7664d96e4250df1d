// Package identity carries the tenant/user/token triple required to
// address and authorize a gateway connection.
package identity

import "sync"

// Context is the identity a connection attempt is made with. All three
// fields are required; connection attempts are refused when any is absent.
type Context struct {
	TenantID string
	UserID   string
	Token    string
}

// Valid reports whether the context is complete enough to connect.
func (c Context) Valid() bool {
	return c.TenantID != "" && c.UserID != "" && c.Token != ""
}

// Provider supplies the current identity and exposes the credential
// store's logout operation. The realtime client reads the identity fresh
// before every connection attempt, so a token refresh takes effect on the
// next connect.
type Provider interface {
	Identity() Context
	Logout()
}

// Static is a Provider backed by an in-memory context. Logout clears the
// stored identity, which also aborts any pending reconnection attempts.
type Static struct {
	mu  sync.RWMutex
	ctx Context
}

// NewStatic returns a Static provider holding ctx.
func NewStatic(ctx Context) *Static {
	return &Static{ctx: ctx}
}

// Identity returns the current context.
func (s *Static) Identity() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// Update replaces the stored context, e.g. after a token refresh. The
// caller is expected to reconnect; an identity change never patches a
// live connection.
func (s *Static) Update(ctx Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
}

// Logout clears the stored identity.
func (s *Static) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = Context{}
}

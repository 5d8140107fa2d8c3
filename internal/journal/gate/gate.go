// Package gate decides whether the journal may talk to the remote store.
//
// The gate is open when the device is online and the user is signed in.
// Both inputs are asked on every call; nothing is cached here.
package gate

import "sync/atomic"

// Connectivity reports network reachability. Implementations must answer
// without blocking.
type Connectivity interface {
	IsOnline() bool
}

// Session reports whether the user is signed in, and as whom.
type Session interface {
	IsAuthenticated() bool
	UserID() string
}

// Gate combines connectivity and session state.
type Gate struct {
	conn Connectivity
	sess Session
}

// New returns a gate over the two collaborators. Nil collaborators keep
// the gate closed.
func New(conn Connectivity, sess Session) *Gate {
	return &Gate{conn: conn, sess: sess}
}

// MayDirectlySync reports whether remote calls may be attempted now.
func (g *Gate) MayDirectlySync() bool {
	if g == nil || g.conn == nil || g.sess == nil {
		return false
	}
	return g.conn.IsOnline() && g.sess.IsAuthenticated()
}

// UserID returns the signed-in user, or "".
func (g *Gate) UserID() string {
	if g == nil || g.sess == nil {
		return ""
	}
	return g.sess.UserID()
}

// Static is a fixed connectivity answer.
type Static bool

// IsOnline implements Connectivity.
func (s Static) IsOnline() bool { return bool(s) }

// OnlineFunc adapts a function to Connectivity.
type OnlineFunc func() bool

// IsOnline implements Connectivity.
func (f OnlineFunc) IsOnline() bool { return f() }

// Switch is connectivity that can be flipped at runtime.
type Switch struct {
	on atomic.Bool
}

// NewSwitch returns a switch in the given position.
func NewSwitch(on bool) *Switch {
	s := &Switch{}
	s.on.Store(on)
	return s
}

// Set flips the switch.
func (s *Switch) Set(on bool) { s.on.Store(on) }

// IsOnline implements Connectivity.
func (s *Switch) IsOnline() bool { return s.on.Load() }

// FixedSession is a Session with a settable answer, for callers that
// authenticate out of band.
type FixedSession struct {
	authenticated atomic.Bool
	user          atomic.Value
}

// NewFixedSession returns a session signed in as user, or signed out when
// user is "".
func NewFixedSession(user string) *FixedSession {
	s := &FixedSession{}
	s.SignIn(user)
	return s
}

// SignIn sets the user. An empty user signs out.
func (s *FixedSession) SignIn(user string) {
	s.user.Store(user)
	s.authenticated.Store(user != "")
}

// SignOut clears the authenticated flag but keeps the user id.
func (s *FixedSession) SignOut() { s.authenticated.Store(false) }

// IsAuthenticated implements Session.
func (s *FixedSession) IsAuthenticated() bool { return s.authenticated.Load() }

// UserID implements Session.
func (s *FixedSession) UserID() string {
	u, _ := s.user.Load().(string)
	return u
}

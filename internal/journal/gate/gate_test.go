package gate

import (
	"context"
	"log"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSession struct {
	calls atomic.Int32
	auth  bool
}

func (s *countingSession) IsAuthenticated() bool {
	s.calls.Add(1)
	return s.auth
}

func (s *countingSession) UserID() string { return "u1" }

func TestGate_MayDirectlySync(t *testing.T) {
	tests := []struct {
		name   string
		online bool
		user   string
		want   bool
	}{
		{"online and signed in", true, "u1", true},
		{"offline", false, "u1", false},
		{"signed out", true, "", false},
		{"offline and signed out", false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Static(tt.online), NewFixedSession(tt.user))
			assert.Equal(t, tt.want, g.MayDirectlySync())
		})
	}
}

func TestGate_EvaluatedOnEveryCall(t *testing.T) {
	sw := NewSwitch(true)
	sess := &countingSession{auth: true}
	g := New(sw, sess)

	assert.True(t, g.MayDirectlySync())
	sw.Set(false)
	assert.False(t, g.MayDirectlySync())
	sw.Set(true)
	assert.True(t, g.MayDirectlySync())
	assert.Equal(t, int32(2), sess.calls.Load(), "session is asked whenever connectivity is up")
}

func TestGate_NilCollaboratorsStayClosed(t *testing.T) {
	var g *Gate
	assert.False(t, g.MayDirectlySync())
	assert.Empty(t, g.UserID())
	assert.False(t, New(nil, NewFixedSession("u1")).MayDirectlySync())
	assert.False(t, New(OnlineFunc(func() bool { return true }), nil).MayDirectlySync())
}

func TestFixedSession_SignOutKeepsUser(t *testing.T) {
	s := NewFixedSession("u1")
	s.SignOut()
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, "u1", s.UserID())
}

func TestProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	p := NewProber(ln.Addr().String(), time.Hour, log.New(log.Writer(), "[test] ", 0))
	var flips []bool
	p.OnChange(func(online bool) { flips = append(flips, online) })

	assert.False(t, p.IsOnline())
	assert.True(t, p.Probe(context.Background()))
	assert.True(t, p.IsOnline())

	require.NoError(t, ln.Close())
	assert.False(t, p.Probe(context.Background()))
	assert.False(t, p.IsOnline())
	assert.Equal(t, []bool{true, false}, flips)
}

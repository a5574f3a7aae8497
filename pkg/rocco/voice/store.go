// Package voice implements Rocco's per-room music playback: a keyed store of
// playback sessions, the manager that starts, loops and stops playlists, and
// the Discord audio transport that streams tracks into a voice channel.
package voice

import (
	"context"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Session is the live playback state of one room.
type Session struct {
	RoomID      string
	ChannelID   string
	PlaylistDir string
	Requester   string

	conn   Connection
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	current string
}

func newSession(roomID, channelID, dir, requester string, conn Connection, cancel context.CancelFunc) *Session {
	return &Session{
		RoomID:      roomID,
		ChannelID:   channelID,
		PlaylistDir: dir,
		Requester:   requester,
		conn:        conn,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// CurrentTrack returns the path of the track being played, or "" when the
// playback loop has not started or has given up.
func (s *Session) CurrentTrack() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Session) setCurrent(path string) {
	s.mu.Lock()
	s.current = path
	s.mu.Unlock()
}

// finished reports whether the playback loop has exited.
func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// SessionStore maps room identifiers to their playback session. At most one
// session exists per room. Mutations for the same room are serialized by the
// caller through Lock.
//
// Room locks are never removed, so a lock handed out by Lock stays the only
// lock for its room. There is one per guild the bot ever played in.
type SessionStore struct {
	sessions cmap.ConcurrentMap[string, *Session]
	locks    cmap.ConcurrentMap[string, *sync.Mutex]
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: cmap.New[*Session](),
		locks:    cmap.New[*sync.Mutex](),
	}
}

// Lock acquires the per-room operation lock and returns its release func.
func (s *SessionStore) Lock(roomID string) func() {
	mu := s.locks.Upsert(roomID, nil, func(exist bool, inMap, _ *sync.Mutex) *sync.Mutex {
		if exist {
			return inMap
		}
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}

// Get returns the session for a room.
func (s *SessionStore) Get(roomID string) (*Session, bool) {
	return s.sessions.Get(roomID)
}

// Create stores sess unless its room already has a session.
func (s *SessionStore) Create(sess *Session) bool {
	return s.sessions.SetIfAbsent(sess.RoomID, sess)
}

// Remove deletes and returns the session for a room.
func (s *SessionStore) Remove(roomID string) (*Session, bool) {
	return s.sessions.Pop(roomID)
}

// Rooms lists the rooms that currently have a session.
func (s *SessionStore) Rooms() []string {
	return s.sessions.Keys()
}

// Len returns the number of active sessions.
func (s *SessionStore) Len() int {
	return s.sessions.Count()
}

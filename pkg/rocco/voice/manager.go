package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Errors.
var (
	ErrNoVoiceChannel = errors.New("requester is not in a voice channel")
	ErrEmptyPlaylist  = errors.New("playlist has no playable tracks")
	ErrNotPlaying     = errors.New("nothing is playing in this room")
)

// teardownTimeout bounds how long a stop waits for the playback loop to exit.
const teardownTimeout = 5 * time.Second

// disconnectGrace is how long after a voice disconnect event the session is
// checked again. The gateway event can arrive before the voice websocket
// closes.
const disconnectGrace = 3 * time.Second

// Config configures music playback.
type Config struct {
	// PlaylistDir is the directory whose tracks are looped.
	PlaylistDir string `yaml:"playlist_dir"`

	// Bitrate is the Opus bitrate in bits per second (0 = encoder default).
	Bitrate int `yaml:"bitrate"`

	// ReconcileEvery is the cron spec of the stale-session sweep.
	ReconcileEvery string `yaml:"reconcile_every"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PlaylistDir:    "assets/playlist",
		Bitrate:        96000,
		ReconcileEvery: "@every 1m",
	}
}

// Manager owns every room's playback session. Operations on the same room
// are serialized; different rooms never wait on each other.
type Manager struct {
	cfg       Config
	store     *SessionStore
	transport Transport
	playlist  PlaylistReader
	tags      TagReader
	logger    *slog.Logger

	disconnectGrace time.Duration
}

// NewManager creates a playback manager that reads playlists from disk and
// tags with FileTagReader.
func NewManager(cfg Config, transport Transport, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		store:     NewSessionStore(),
		transport: transport,
		playlist:  DirPlaylist{},
		tags:      FileTagReader{},
		logger:    logger.With("component", "voice"),

		disconnectGrace: disconnectGrace,
	}
}

// SetPlaylistReader replaces the playlist enumerator.
func (m *Manager) SetPlaylistReader(r PlaylistReader) { m.playlist = r }

// SetTagReader replaces the tag reader.
func (m *Manager) SetTagReader(r TagReader) { m.tags = r }

// Store exposes the session store.
func (m *Manager) Store() *SessionStore { return m.store }

// Play joins channelID in roomID and loops the playlist until stopped. An
// existing session for the room is torn down first.
func (m *Manager) Play(ctx context.Context, roomID, channelID, requester string) error {
	if channelID == "" {
		return ErrNoVoiceChannel
	}

	unlock := m.store.Lock(roomID)
	defer unlock()

	if old, ok := m.store.Remove(roomID); ok {
		m.logger.Info("replacing playback session", "room", roomID, "old_channel", old.ChannelID, "channel", channelID)
		m.teardown(old)
	}

	tracks, err := m.playlist.List(m.cfg.PlaylistDir)
	if err != nil {
		return fmt.Errorf("listing playlist %s: %w", m.cfg.PlaylistDir, err)
	}
	if len(tracks) == 0 {
		return fmt.Errorf("%s: %w", m.cfg.PlaylistDir, ErrEmptyPlaylist)
	}

	conn, err := m.transport.Connect(ctx, roomID, channelID)
	if err != nil {
		return fmt.Errorf("connecting to voice channel: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sess := newSession(roomID, channelID, m.cfg.PlaylistDir, requester, conn, cancel)
	if !m.store.Create(sess) {
		// Unreachable while the room lock is held.
		cancel()
		_ = conn.Destroy()
		return fmt.Errorf("room %s already has a playback session", roomID)
	}

	m.logger.Info("playback started",
		"room", roomID,
		"channel", channelID,
		"requester", requester,
		"tracks", len(tracks),
	)

	go m.loop(loopCtx, sess, tracks)
	return nil
}

// Stop ends playback in a room. Returns ErrNotPlaying when the room has no
// session.
func (m *Manager) Stop(roomID string) error {
	unlock := m.store.Lock(roomID)
	defer unlock()

	sess, ok := m.store.Remove(roomID)
	if !ok {
		return ErrNotPlaying
	}
	m.teardown(sess)
	m.logger.Info("playback stopped", "room", roomID)
	return nil
}

// WhatSong returns the metadata of the track currently playing in a room.
// Unreadable tags yield empty metadata.
func (m *Manager) WhatSong(roomID string) (TrackMetadata, error) {
	sess, ok := m.store.Get(roomID)
	if !ok {
		return TrackMetadata{}, ErrNotPlaying
	}
	track := sess.CurrentTrack()
	if track == "" {
		return TrackMetadata{}, ErrNotPlaying
	}

	meta, err := m.tags.Read(track)
	if err != nil {
		m.logger.Warn("could not read track tags", "track", track, "error", err)
		return TrackMetadata{}, nil
	}
	return meta, nil
}

// HandleDisconnect is called when the platform reports that the bot left a
// room's voice channel. A session whose connection is already dead is dropped
// at once. Otherwise the same session is checked again after a short grace
// period; a session that replaced it in the meantime is left alone.
func (m *Manager) HandleDisconnect(roomID string) {
	sess, dropped := m.dropIfStale(roomID, nil)
	if dropped {
		m.logger.Info("playback session dropped after voice disconnect", "room", roomID)
		return
	}
	if sess == nil {
		return
	}
	time.AfterFunc(m.disconnectGrace, func() {
		if _, dropped := m.dropIfStale(roomID, sess); dropped {
			m.logger.Info("playback session dropped after voice disconnect", "room", roomID)
		}
	})
}

// Reconcile drops sessions whose connection died or whose loop gave up.
func (m *Manager) Reconcile() int {
	dropped := 0
	for _, roomID := range m.store.Rooms() {
		if _, ok := m.dropIfStale(roomID, nil); ok {
			dropped++
			m.logger.Info("stale playback session dropped", "room", roomID)
		}
	}
	return dropped
}

// dropIfStale removes the room's session when its connection is dead or its
// loop has exited. When want is set, only that exact session is considered.
// It returns the session it looked at and whether it was dropped.
func (m *Manager) dropIfStale(roomID string, want *Session) (*Session, bool) {
	unlock := m.store.Lock(roomID)
	defer unlock()

	sess, ok := m.store.Get(roomID)
	if !ok || (want != nil && sess != want) {
		return nil, false
	}
	if !sess.finished() && sess.conn.Alive() {
		return sess, false
	}
	m.store.Remove(roomID)
	m.teardown(sess)
	return sess, true
}

// StopAll ends playback in every room.
func (m *Manager) StopAll() {
	for _, roomID := range m.store.Rooms() {
		if err := m.Stop(roomID); err != nil && !errors.Is(err, ErrNotPlaying) {
			m.logger.Warn("failed to stop playback", "room", roomID, "error", err)
		}
	}
}

// loop plays tracks in order and starts over after the last one. It exits
// when ctx is cancelled or when a full pass played nothing.
func (m *Manager) loop(ctx context.Context, sess *Session, tracks []string) {
	defer close(sess.done)
	defer sess.setCurrent("")

	for {
		played := 0
		for _, track := range tracks {
			if ctx.Err() != nil {
				return
			}
			sess.setCurrent(track)
			m.logger.Debug("playing track", "room", sess.RoomID, "track", track)

			if err := sess.conn.Play(ctx, track); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn("track failed", "room", sess.RoomID, "track", track, "error", err)
				continue
			}
			played++
		}
		if played == 0 {
			m.logger.Error("no track of the playlist could be played, giving up", "room", sess.RoomID)
			return
		}
	}
}

// teardown stops the playback loop and closes the connection.
func (m *Manager) teardown(sess *Session) {
	sess.cancel()
	select {
	case <-sess.done:
	case <-time.After(teardownTimeout):
		m.logger.Warn("playback loop did not exit in time", "room", sess.RoomID)
	}
	if err := sess.conn.Destroy(); err != nil {
		m.logger.Warn("failed to close voice connection", "room", sess.RoomID, "error", err)
	}
}

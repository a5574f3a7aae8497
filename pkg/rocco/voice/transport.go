package voice

import "context"

// Transport opens real-time audio connections to voice channels.
type Transport interface {
	// Connect joins channelID in roomID.
	Connect(ctx context.Context, roomID, channelID string) (Connection, error)
}

// Connection is one open voice connection.
type Connection interface {
	// Play streams the track at path and returns when it has finished, when
	// ctx is cancelled, or on error.
	Play(ctx context.Context, path string) error

	// Destroy leaves the voice channel.
	Destroy() error

	// Alive reports whether the connection is still usable.
	Alive() bool
}

package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"gopkg.in/hraban/opus.v2"
)

// Discord voice expects 48 kHz stereo Opus in 20 ms frames.
const (
	discordSampleRate = 48000
	discordChannels   = 2
	frameSamples      = discordSampleRate / 50
	maxOpusFrameBytes = 4000
	resampleQuality   = 4
)

// VoiceJoiner is the part of *discordgo.Session the transport needs.
type VoiceJoiner interface {
	ChannelVoiceJoin(gID, cID string, mute, deaf bool) (*discordgo.VoiceConnection, error)
}

// DiscordTransport streams MP3 tracks into Discord voice channels.
type DiscordTransport struct {
	joiner  VoiceJoiner
	bitrate int
	logger  *slog.Logger
}

// NewDiscordTransport creates a transport on top of a gateway session.
func NewDiscordTransport(joiner VoiceJoiner, bitrate int, logger *slog.Logger) *DiscordTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordTransport{
		joiner:  joiner,
		bitrate: bitrate,
		logger:  logger.With("component", "voice_transport"),
	}
}

// Connect joins the voice channel deafened; the bot only sends audio.
func (t *DiscordTransport) Connect(_ context.Context, roomID, channelID string) (Connection, error) {
	vc, err := t.joiner.ChannelVoiceJoin(roomID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("discord: joining voice channel: %w", err)
	}
	t.logger.Info("joined voice channel", "room", roomID, "channel", channelID)
	return &discordConnection{vc: vc, bitrate: t.bitrate, logger: t.logger}, nil
}

type discordConnection struct {
	vc      *discordgo.VoiceConnection
	bitrate int
	logger  *slog.Logger
}

// Play decodes the MP3 at path, resamples it to 48 kHz, encodes it to Opus
// and feeds frames to the voice connection.
func (c *discordConnection) Play(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening track: %w", err)
	}

	// The decoder owns f and closes it.
	decoder, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	defer decoder.Close()

	var stream beep.Streamer = decoder
	if format.SampleRate != discordSampleRate {
		stream = beep.Resample(resampleQuality, format.SampleRate, discordSampleRate, decoder)
	}

	enc, err := opus.NewEncoder(discordSampleRate, discordChannels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("creating opus encoder: %w", err)
	}
	if c.bitrate > 0 {
		if err := enc.SetBitrate(c.bitrate); err != nil {
			return fmt.Errorf("setting opus bitrate: %w", err)
		}
	}

	if err := c.vc.Speaking(true); err != nil {
		c.logger.Debug("could not set speaking state", "error", err)
	}
	defer func() { _ = c.vc.Speaking(false) }()

	samples := make([][2]float64, frameSamples)
	pcm := make([]int16, frameSamples*discordChannels)
	out := make([]byte, maxOpusFrameBytes)

	for {
		n, ok := stream.Stream(samples)
		if n == 0 && !ok {
			return stream.Err()
		}

		for i := range samples {
			if i >= n {
				pcm[2*i], pcm[2*i+1] = 0, 0
				continue
			}
			pcm[2*i] = toInt16(samples[i][0])
			pcm[2*i+1] = toInt16(samples[i][1])
		}

		size, err := enc.Encode(pcm, out)
		if err != nil {
			return fmt.Errorf("encoding opus frame: %w", err)
		}
		frame := make([]byte, size)
		copy(frame, out[:size])

		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.vc.OpusSend <- frame:
		}

		if !ok || n < frameSamples {
			return stream.Err()
		}
	}
}

// Destroy leaves the voice channel.
func (c *discordConnection) Destroy() error {
	return c.vc.Disconnect()
}

// Alive reports whether the voice websocket is ready.
func (c *discordConnection) Alive() bool {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

// toInt16 clamps a [-1, 1] float sample to 16-bit PCM.
func toInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

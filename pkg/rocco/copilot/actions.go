package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"
	"github.com/jholhewres/rocco/pkg/rocco/voice"
)

// SelfImagePlaceholder is returned by the myself action. The chat layer
// swaps it for an actual picture.
const SelfImagePlaceholder = "{{MYSELF}}"

// Action names as exposed to the model.
const (
	ActionMyself      = "myself"
	ActionSendMessage = "sendMessage"
	ActionPlayMusic   = "playMusic"
	ActionStopPlaying = "stopPlaying"
	ActionWhatSong    = "whatSong"
)

// Canned action replies.
const (
	msgNoVoiceChannel = "I don't know where to sing!"
	msgNowSinging     = "I'm now singing music!"
	msgCouldNotStart  = "I couldn't start the music!"
	msgStoppedSinging = "I'm no longer singing!"
	msgNotSinging     = "I'm not singing!"
	msgNowPlayingFmt  = "I'm currently playing %s by %s"
)

// ActionResult is what every action hands back.
type ActionResult struct {
	Message string `json:"message"`
}

// ActionHandlerFunc runs an action with its validated JSON input.
type ActionHandlerFunc func(ctx context.Context, input json.RawMessage) (*ActionResult, error)

// RoomContext is what the actions of one turn are bound to.
type RoomContext struct {
	// RoomID is the guild the turn happens in; empty for direct messages.
	RoomID string

	// ChatID is the text channel of the triggering message.
	ChatID string

	RequesterID   string
	RequesterName string

	// VoiceChannelID is the voice channel the requester is in, if any.
	VoiceChannelID string
}

// Playback is the part of the voice manager the music actions use.
type Playback interface {
	Play(ctx context.Context, roomID, channelID, requester string) error
	Stop(roomID string) error
	WhatSong(roomID string) (voice.TrackMetadata, error)
}

// ---------- Inputs ----------

type myselfInput struct{}

type sendMessageInput struct {
	Message string `json:"message" jsonschema:"description=The message contents"`
}

type playMusicInput struct{}

type stopPlayingInput struct{}

type whatSongInput struct{}

// actionSpec describes one action independently of any room.
type actionSpec struct {
	name        string
	description string
	input       any
}

// actionSpecs is the fixed, ordered action set.
var actionSpecs = []actionSpec{
	{
		name: ActionMyself,
		description: "Used to send a picture of yourself to the chat. Only use this when the most recent output is " +
			`asking for your appearance (e.g. "what do you look like?" or "send me a picture of yourself").`,
		input: &myselfInput{},
	},
	{
		name: ActionSendMessage,
		description: "Sends a message to the chat. Use this tool during conversations. Use this tool if you don't " +
			"have any other tools available. ONLY include the message contents!",
		input: &sendMessageInput{},
	},
	{
		name:        ActionPlayMusic,
		description: "Plays music. Use this tool when asked to play music or sing.",
		input:       &playMusicInput{},
	},
	{
		name: ActionStopPlaying,
		description: "Stops playing music from the 24h stream. Use this tool when asked to stop playing music " +
			"or sing.",
		input: &stopPlayingInput{},
	},
	{
		name: ActionWhatSong,
		description: "Tells you what song Rocco is currently playing. Use this tool when asked to tell you what " +
			"song Rocco is playing.",
		input: &whatSongInput{},
	},
}

// reflectParameters produces the JSON schema of an action input struct.
func reflectParameters(input any) (json.RawMessage, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(input)
	schema.Version = ""
	schema.ID = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	return data, nil
}

// ---------- Handlers ----------

// BindActions returns the handlers of every action bound to one room.
func BindActions(room RoomContext, playback Playback, logger *slog.Logger) map[string]ActionHandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("room", room.RoomID, "requester", room.RequesterID)

	return map[string]ActionHandlerFunc{
		ActionMyself: func(context.Context, json.RawMessage) (*ActionResult, error) {
			return &ActionResult{Message: SelfImagePlaceholder}, nil
		},

		ActionSendMessage: func(_ context.Context, input json.RawMessage) (*ActionResult, error) {
			var in sendMessageInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidActionInput, err)
			}
			return &ActionResult{Message: in.Message}, nil
		},

		ActionPlayMusic: func(ctx context.Context, _ json.RawMessage) (*ActionResult, error) {
			if room.VoiceChannelID == "" || room.RoomID == "" || playback == nil {
				return &ActionResult{Message: msgNoVoiceChannel}, nil
			}
			err := playback.Play(ctx, room.RoomID, room.VoiceChannelID, room.RequesterID)
			switch {
			case err == nil:
				return &ActionResult{Message: msgNowSinging}, nil
			case errors.Is(err, voice.ErrNoVoiceChannel):
				return &ActionResult{Message: msgNoVoiceChannel}, nil
			default:
				logger.Error("could not start music", "error", err)
				return &ActionResult{Message: msgCouldNotStart}, nil
			}
		},

		ActionStopPlaying: func(context.Context, json.RawMessage) (*ActionResult, error) {
			if playback == nil {
				return &ActionResult{Message: msgNotSinging}, nil
			}
			if err := playback.Stop(room.RoomID); err != nil {
				if !errors.Is(err, voice.ErrNotPlaying) {
					logger.Warn("stop failed", "error", err)
				}
				return &ActionResult{Message: msgNotSinging}, nil
			}
			return &ActionResult{Message: msgStoppedSinging}, nil
		},

		ActionWhatSong: func(context.Context, json.RawMessage) (*ActionResult, error) {
			if playback == nil {
				return &ActionResult{Message: msgNotSinging}, nil
			}
			meta, err := playback.WhatSong(room.RoomID)
			if err != nil {
				return &ActionResult{Message: msgNotSinging}, nil
			}
			return &ActionResult{
				Message: fmt.Sprintf(msgNowPlayingFmt, meta.TitleOrUnknown(), meta.ArtistOrUnknown()),
			}, nil
		},
	}
}

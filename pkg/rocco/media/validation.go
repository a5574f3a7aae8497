// Package media fetches and validates the media Rocco sends or plays: the
// self-portrait image and the audio files of the playlist.
package media

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// MediaType categorizes a file by its MIME type.
type MediaType string

const (
	MediaTypeImage   MediaType = "image"
	MediaTypeAudio   MediaType = "audio"
	MediaTypeUnknown MediaType = "unknown"
)

// AllowedMimeTypes defines permitted MIME types for each media category.
var AllowedMimeTypes = map[MediaType][]string{
	MediaTypeImage: {
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
	},
	MediaTypeAudio: {
		"audio/mpeg",
		"audio/mp3",
	},
}

// audioExtensions maps playlist file extensions to their MIME type.
var audioExtensions = map[string]string{
	".mp3": "audio/mpeg",
}

// imageExtensions maps MIME types to the filename extension used on upload.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Config contains validation limits.
type Config struct {
	// SelfImageURL is where pictures of Rocco are fetched from.
	SelfImageURL string `yaml:"self_image_url"`

	// MaxImageSize caps a fetched image, in bytes.
	MaxImageSize int64 `yaml:"max_image_size"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		SelfImageURL: "https://rocco-vercel.vercel.app/cat",
		MaxImageSize: 8 * 1024 * 1024, // Discord's upload limit for bots.
	}
}

// ValidationResult contains validation output.
type ValidationResult struct {
	MimeType string
	Type     MediaType
	Size     int64
}

// Validator checks fetched media against the configured limits.
type Validator struct {
	config Config
}

// NewValidator creates a new validator.
func NewValidator(config Config) *Validator {
	return &Validator{config: config}
}

// ValidateImage checks that data is an allowed image within the size limit.
func (v *Validator) ValidateImage(data []byte, mimeType string) (*ValidationResult, error) {
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DetectMimeType(data, "")
	}
	mimeType = baseMime(mimeType)

	result := &ValidationResult{
		MimeType: mimeType,
		Type:     CategorizeType(mimeType),
		Size:     int64(len(data)),
	}

	if len(data) == 0 {
		return result, errors.New("empty image")
	}
	if result.Type != MediaTypeImage || !isAllowed(MediaTypeImage, mimeType) {
		return result, fmt.Errorf("MIME type %s is not an allowed image", mimeType)
	}
	if v.config.MaxImageSize > 0 && result.Size > v.config.MaxImageSize {
		return result, fmt.Errorf("image size %d exceeds maximum %d", result.Size, v.config.MaxImageSize)
	}
	return result, nil
}

// IsAudioFile reports whether a playlist entry looks like a playable track.
func IsAudioFile(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ImageFilename returns a filename with an extension matching mimeType.
func ImageFilename(base, mimeType string) string {
	if ext, ok := imageExtensions[baseMime(mimeType)]; ok {
		return base + ext
	}
	return base
}

// DetectMimeType uses http.DetectContentType and extension heuristics.
func DetectMimeType(data []byte, filename string) string {
	detected := http.DetectContentType(data)
	if detected == "application/octet-stream" {
		if mt, ok := audioExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
			return mt
		}
	}
	return detected
}

// CategorizeType maps MIME type to MediaType.
func CategorizeType(mimeType string) MediaType {
	mimeType = baseMime(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaTypeImage
	case strings.HasPrefix(mimeType, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeUnknown
	}
}

// baseMime strips parameters (e.g. "image/jpeg; charset=utf-8").
func baseMime(mimeType string) string {
	return strings.TrimSpace(strings.Split(mimeType, ";")[0])
}

func isAllowed(t MediaType, mimeType string) bool {
	for _, m := range AllowedMimeTypes[t] {
		if m == mimeType {
			return true
		}
	}
	return false
}

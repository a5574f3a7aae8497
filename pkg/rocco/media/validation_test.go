package media

import (
	"testing"
)

func TestValidator_ValidImage(t *testing.T) {
	validator := NewValidator(DefaultConfig())

	// PNG signature
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

	result, err := validator.ValidateImage(png, "image/png; charset=binary")
	if err != nil {
		t.Errorf("ValidateImage() error = %v", err)
		return
	}
	if result.Type != MediaTypeImage {
		t.Errorf("ValidateImage() type = %v, want %v", result.Type, MediaTypeImage)
	}
	if result.MimeType != "image/png" {
		t.Errorf("ValidateImage() mimeType = %v, want image/png", result.MimeType)
	}
}

func TestValidator_DetectsJPEG(t *testing.T) {
	validator := NewValidator(DefaultConfig())

	// JPEG SOI marker
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	result, err := validator.ValidateImage(jpeg, "")
	if err != nil {
		t.Errorf("ValidateImage() error = %v", err)
		return
	}
	if result.MimeType != "image/jpeg" {
		t.Errorf("ValidateImage() mimeType = %v, want image/jpeg", result.MimeType)
	}
}

func TestValidator_RejectsAudio(t *testing.T) {
	validator := NewValidator(DefaultConfig())

	if _, err := validator.ValidateImage([]byte("ID3"), "audio/mpeg"); err == nil {
		t.Error("ValidateImage() accepted audio")
	}
}

func TestValidator_SizeLimit(t *testing.T) {
	validator := NewValidator(Config{MaxImageSize: 4})

	if _, err := validator.ValidateImage([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "image/jpeg"); err == nil {
		t.Error("ValidateImage() accepted an oversized image")
	}
}

func TestImageFilename(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/jpeg", "rocco.jpg"},
		{"image/png", "rocco.png"},
		{"image/webp", "rocco.webp"},
		{"application/pdf", "rocco"},
	}
	for _, tt := range tests {
		if got := ImageFilename("rocco", tt.mime); got != tt.want {
			t.Errorf("ImageFilename(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}

func TestCategorizeType(t *testing.T) {
	tests := map[string]MediaType{
		"image/gif":        MediaTypeImage,
		"audio/mpeg":       MediaTypeAudio,
		"text/html; utf-8": MediaTypeUnknown,
	}
	for mime, want := range tests {
		if got := CategorizeType(mime); got != want {
			t.Errorf("CategorizeType(%q) = %v, want %v", mime, got, want)
		}
	}
}

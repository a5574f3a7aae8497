package media

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetcher_SelfImage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	f := NewFetcher(Config{SelfImageURL: srv.URL + "/cat", MaxImageSize: 1024}, testLogger())
	img, err := f.SelfImage(context.Background())
	if err != nil {
		t.Fatalf("SelfImage: %v", err)
	}
	if img.MimeType != "image/png" || img.Filename != "rocco.png" || len(img.Data) != len(pngHeader) {
		t.Errorf("image = %s %s %d bytes", img.MimeType, img.Filename, len(img.Data))
	}
}

func TestFetcher_DetectsMissingContentType(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	img, err := NewFetcher(DefaultConfig(), testLogger()).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if img.MimeType != "image/png" {
		t.Errorf("mime = %q", img.MimeType)
	}
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	if _, err := NewFetcher(DefaultConfig(), testLogger()).Fetch(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestFetcher_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		maxSize int64
		wantErr string
	}{
		{
			name:    "not found is not retried",
			handler: func(w http.ResponseWriter, _ *http.Request) { http.NotFound(w, nil) },
			wantErr: "404",
		},
		{
			name: "not an image",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html>cat</html>"))
			},
			wantErr: "not an allowed image",
		},
		{
			name: "too large",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write(append(append([]byte(nil), pngHeader...), make([]byte, 64)...))
			},
			maxSize: 16,
			wantErr: "exceeds maximum",
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "image/png")
			},
			wantErr: "empty image",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cfg := DefaultConfig()
			if tt.maxSize > 0 {
				cfg.MaxImageSize = tt.maxSize
			}
			_, err := NewFetcher(cfg, testLogger()).Fetch(context.Background(), srv.URL)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestFetcher_NoURL(t *testing.T) {
	t.Parallel()

	if _, err := NewFetcher(Config{}, testLogger()).SelfImage(context.Background()); err == nil {
		t.Error("expected an error without a self image URL")
	}
}

func TestIsAudioFile(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]bool{
		"purr.mp3":  true,
		"PURR.MP3":  true,
		"cover.jpg": false,
		"notes":     false,
	} {
		if got := IsAudioFile(name); got != want {
			t.Errorf("IsAudioFile(%q) = %v, want %v", name, got, want)
		}
	}
}

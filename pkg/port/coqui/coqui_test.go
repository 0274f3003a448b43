package coqui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sycalabs/ava/pkg/audio"
	"github.com/sycalabs/ava/pkg/port"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()
	wantSamples := []float32{0.1, -0.1, 0.2, -0.2}

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			t.Errorf("path = %q, want /api/tts", r.URL.Path)
		}
		gotQuery = map[string]string{
			"text":        r.URL.Query().Get("text"),
			"speaker_id":  r.URL.Query().Get("speaker_id"),
			"language_id": r.URL.Query().Get("language_id"),
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(wantSamples, 22050))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithSpeaker("p225"), WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := c.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 22050 {
		t.Errorf("rate = %d, want the server's native 22050", clip.SampleRate)
	}
	if len(clip.Samples) != len(wantSamples) {
		t.Errorf("len = %d, want %d", len(clip.Samples), len(wantSamples))
	}
	if gotQuery["text"] != "Hello there." || gotQuery["speaker_id"] != "p225" || gotQuery["language_id"] != "en" {
		t.Errorf("query = %v", gotQuery)
	}
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(audio.EncodeWAV(nil, 22050))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	if _, err := c.Synthesize(context.Background(), "hi"); !errors.Is(err, port.ErrEmptyResult) {
		t.Errorf("err = %v, want ErrEmptyResult", err)
	}
}

func TestSynthesize_BlankText(t *testing.T) {
	t.Parallel()
	c, _ := New("http://localhost:1")
	if _, err := c.Synthesize(context.Background(), "   "); !errors.Is(err, port.ErrEmptyResult) {
		t.Errorf("err = %v, want ErrEmptyResult", err)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no model", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	if _, err := c.Synthesize(context.Background(), "hi"); err == nil {
		t.Error("expected error for HTTP 503")
	}
}

func TestSynthesize_NotWAV(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>login required</html>"))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	if _, err := c.Synthesize(context.Background(), "hi"); !errors.Is(err, audio.ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}

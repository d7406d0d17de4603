package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsRemote(t *testing.T) {
	cases := []struct {
		source string
		want   bool
	}{
		{"https://example.com/audio.mp3", true},
		{"http://example.com/audio.mp3", true},
		{"ftp://example.com/audio.mp3", false},
		{"/tmp/audio.mp3", false},
		{"audio.mp3", false},
		{"https://", false},
	}
	for _, c := range cases {
		if got := isRemote(c.source); got != c.want {
			t.Errorf("isRemote(%q) = %v, want %v", c.source, got, c.want)
		}
	}
}

func TestCheckSource(t *testing.T) {
	t.Run("existing file", func(t *testing.T) {
		path := writeAudioFile(t, "in.wav")
		if err := checkSource(path); err != nil {
			t.Errorf("checkSource = %v, want nil", err)
		}
	})

	t.Run("remote url", func(t *testing.T) {
		if err := checkSource("https://example.com/a.mp3"); err != nil {
			t.Errorf("checkSource = %v, want nil", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		err := checkSource("/nonexistent/audio.wav")
		var nf *FileNotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("checkSource = %v, want FileNotFoundError", err)
		}
		if nf.Path != "/nonexistent/audio.wav" {
			t.Errorf("Path = %q", nf.Path)
		}
	})
}

func TestSleepCtx(t *testing.T) {
	t.Run("elapses", func(t *testing.T) {
		if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
			t.Errorf("sleepCtx = %v, want nil", err)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := sleepCtx(ctx, time.Minute); !errors.Is(err, context.Canceled) {
			t.Errorf("sleepCtx = %v, want context.Canceled", err)
		}
	})
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&MissingCredentialError{Provider: "google", Key: "key_file"}, `google: missing credential "key_file"`},
		{&InvalidCredentialError{Provider: "google", Key: "key_file", Reason: "key file does not exist"}, `google: invalid credential "key_file": key file does not exist`},
		{&FileNotFoundError{Path: "/tmp/a.wav"}, "audio file not found: /tmp/a.wav"},
		{&UnsupportedProviderError{Name: "deepgram"}, `unsupported provider: "deepgram"`},
		{&ProviderError{Provider: "assemblyai", Message: "transcription failed"}, "assemblyai: transcription failed"},
		{&ProviderError{Provider: "assemblyai", Message: "transcription failed", ID: "tr_1"}, "assemblyai: transcription failed (id tr_1)"},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Errorf("Error() = %q, want %q", got, c.want)
		}
	}
}

package transcribe

import (
	"context"
	"net/url"
	"os"
	"time"

	"github.com/snarg/polyscribe/internal/metrics"
)

// Provider names accepted by New.
const (
	ProviderGoogle     = "google"
	ProviderAssemblyAI = "assemblyai"
	ProviderWhisper    = "whisper"
)

// Provider is the interface for speech-to-text backends.
//
// Credentials and configuration are supplied once per instance; Transcribe
// may then be called concurrently, each call keeping its own scratch state.
type Provider interface {
	// SetCredentials stores provider credentials. Keys are checked at
	// Transcribe time, except values an adapter can reject immediately
	// (Google verifies that key_file points at an existing file).
	SetCredentials(creds map[string]string) error

	// SetConfig stores transcription options verbatim. Unknown keys are
	// tolerated here and dropped when the request body is built.
	SetConfig(cfg map[string]any)

	// Transcribe runs the full provider protocol for one local file or
	// remote URL and returns the normalized result.
	Transcribe(ctx context.Context, source string) (*Result, error)
}

// Result is the normalized transcription from any provider.
type Result struct {
	Config  map[string]any // echoed configuration, stamped with "service"
	Raw     any            // provider response as decoded JSON, unmodified
	RawText string         // plain concatenated transcript, no markup
	Text    string         // formatted transcript, optional speaker/time markers
}

// Word is a timestamped unit consumed by the per-adapter formatters.
// An empty Speaker means the provider attributed no speaker to the word.
type Word struct {
	Text    string
	Start   float64 // seconds
	End     float64 // seconds
	Speaker string
}

// isRemote reports whether source is a well-formed http(s) URL.
func isRemote(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// checkSource validates that source is a remote URL or an existing local file.
func checkSource(source string) error {
	if isRemote(source) {
		return nil
	}
	if _, err := os.Stat(source); err != nil {
		return &FileNotFoundError{Path: source}
	}
	return nil
}

// echoConfig copies cfg and stamps the provenance tag onto the copy.
func echoConfig(cfg map[string]any, service string) map[string]any {
	out := make(map[string]any, len(cfg)+1)
	for k, v := range cfg {
		out[k] = v
	}
	out["service"] = service
	return out
}

// observe records the outcome metrics for one Transcribe call.
func observe(provider string, start time.Time, err error) {
	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
	}
	metrics.TranscriptionsTotal.WithLabelValues(provider, status).Inc()
	metrics.TranscriptionDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

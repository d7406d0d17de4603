package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/polyscribe/internal/metrics"
	"github.com/snarg/polyscribe/internal/transport"
)

const (
	assemblyAIBaseURL = "https://api.assemblyai.com/v2"

	assemblyAIInitialDelay = 5 * time.Second
	assemblyAIMaxDelay     = 30 * time.Second

	pcrWindowSize = 10
)

// AssemblyAI transcribes audio through the AssemblyAI v2 REST API with the
// submit/poll/delete protocol. Local files are uploaded first to obtain an
// ephemeral URL; remote URLs are handed to the provider as-is.
type AssemblyAI struct {
	transport *transport.Client
	log       zerolog.Logger
	opts      optionTable

	apiURL string
	sleep  func(ctx context.Context, d time.Duration) error

	creds map[string]string
	cfg   map[string]any
}

// NewAssemblyAI builds the AssemblyAI adapter on the shared transport.
func NewAssemblyAI(tc *transport.Client, log zerolog.Logger) *AssemblyAI {
	return &AssemblyAI{
		transport: tc,
		log:       log.With().Str("component", "assemblyai").Logger(),
		opts:      assemblyAIOptions(),
		apiURL:    assemblyAIBaseURL,
		sleep:     sleepCtx,
	}
}

func assemblyAIOptions() optionTable {
	return optionTable{
		"language":          {wire: "language_code", parse: parseAssemblyAILanguage},
		"speaker_labels":    {parse: parseBool},
		"speakers_expected": {parse: parseInt},
		"word_boost":        {parse: parseStringList},
		"punctuate":         {parse: parseBool},
		"format_text":       {parse: parseBool},
		"filter_profanity":  {parse: parseBool},
	}
}

// parseAssemblyAILanguage lowercases locales into the provider's underscore
// form ("en-US" -> "en_us").
func parseAssemblyAILanguage(v any) (any, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, false
	}
	return strings.ToLower(strings.ReplaceAll(s, "-", "_")), true
}

// SetCredentials stores the credential map; api_key is checked at Transcribe.
func (p *AssemblyAI) SetCredentials(creds map[string]string) error {
	p.creds = creds
	return nil
}

// SetConfig stores transcription options verbatim.
func (p *AssemblyAI) SetConfig(cfg map[string]any) { p.cfg = cfg }

// Transcribe uploads the source when local, submits the transcript job,
// polls it to a terminal status, and deletes the server-side transcript.
func (p *AssemblyAI) Transcribe(ctx context.Context, source string) (res *Result, err error) {
	start := time.Now()
	defer func() { observe(ProviderAssemblyAI, start, err) }()

	key := p.creds["api_key"]
	if key == "" {
		return nil, &MissingCredentialError{Provider: ProviderAssemblyAI, Key: "api_key"}
	}
	if err := checkSource(source); err != nil {
		return nil, err
	}

	audioURL := source
	if !isRemote(source) {
		audioURL, err = p.upload(ctx, key, source)
		if err != nil {
			return nil, err
		}
	}

	id, err := p.submit(ctx, key, audioURL)
	if err != nil {
		return nil, err
	}

	final, raw, pollErr := p.poll(ctx, key, id)
	p.deleteTranscript(context.WithoutCancel(ctx), key, id)
	if pollErr != nil {
		return nil, pollErr
	}

	rawText, text := p.format(final)
	return &Result{
		Config:  echoConfig(p.cfg, ProviderAssemblyAI),
		Raw:     raw,
		RawText: rawText,
		Text:    text,
	}, nil
}

// upload pushes a local file to the provider and returns the ephemeral URL
// the transcript request should reference.
func (p *AssemblyAI) upload(ctx context.Context, key, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	headers := map[string]string{
		"authorization": key,
		"content-type":  "application/octet-stream",
	}
	data, err := p.transport.Post(ctx, p.apiURL+"/upload", headers, f)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}

	var resp struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if resp.UploadURL == "" {
		return "", &ProviderError{Provider: ProviderAssemblyAI, Message: "upload returned no URL"}
	}
	p.log.Debug().Str("path", path).Msg("uploaded audio file")
	return resp.UploadURL, nil
}

// submit queues the transcript job and returns its id. The request always
// carries a language_code; projected options override the default.
func (p *AssemblyAI) submit(ctx context.Context, key, audioURL string) (string, error) {
	body := map[string]any{
		"audio_url":     audioURL,
		"language_code": "en_us",
	}
	for k, v := range p.opts.project(p.cfg) {
		body[k] = v
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode transcript request: %w", err)
	}
	headers := map[string]string{
		"authorization": key,
		"content-type":  "application/json",
	}
	respBody, err := p.transport.Post(ctx, p.apiURL+"/transcript", headers, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("submit transcript: %w", err)
	}

	var resp assemblyAITranscript
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode transcript response: %w", err)
	}
	if resp.Error != "" {
		return "", &ProviderError{Provider: ProviderAssemblyAI, Message: resp.Error, ID: resp.ID}
	}
	if resp.ID == "" {
		return "", &ProviderError{Provider: ProviderAssemblyAI, Message: "submission returned no transcript id"}
	}
	return resp.ID, nil
}

// poll waits for the transcript to reach a terminal status, growing the
// delay by half again each round, capped, with no overall timeout.
func (p *AssemblyAI) poll(ctx context.Context, key, id string) (*assemblyAITranscript, any, error) {
	headers := map[string]string{"authorization": key}
	delay := assemblyAIInitialDelay

	for {
		data, err := p.transport.Get(ctx, p.apiURL+"/transcript/"+id, headers)
		if err != nil {
			return nil, nil, fmt.Errorf("poll transcript: %w", err)
		}
		metrics.ProviderPollsTotal.WithLabelValues(ProviderAssemblyAI).Inc()

		var resp assemblyAITranscript
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, nil, fmt.Errorf("decode transcript: %w", err)
		}

		switch resp.Status {
		case "completed":
			var raw any
			if err := json.Unmarshal(data, &raw); err != nil {
				return nil, nil, fmt.Errorf("decode transcript: %w", err)
			}
			return &resp, raw, nil
		case "error":
			msg := resp.Error
			if msg == "" {
				msg = "transcription failed"
			}
			return nil, nil, &ProviderError{Provider: ProviderAssemblyAI, Message: msg, ID: id}
		}

		p.log.Debug().Str("id", id).Str("status", resp.Status).Dur("delay", delay).Msg("transcript pending")
		if err := p.sleep(ctx, delay); err != nil {
			return nil, nil, fmt.Errorf("poll transcript: %w", err)
		}
		delay = nextDelay(delay)
	}
}

// nextDelay grows a polling delay by half again, rounded up to a whole
// second and capped at the maximum.
func nextDelay(d time.Duration) time.Duration {
	next := time.Duration(math.Ceil(d.Seconds()*1.5)) * time.Second
	if next > assemblyAIMaxDelay {
		next = assemblyAIMaxDelay
	}
	return next
}

// deleteTranscript removes the server-side transcript once the call is
// settled; failures are logged, never surfaced.
func (p *AssemblyAI) deleteTranscript(ctx context.Context, key, id string) {
	headers := map[string]string{"authorization": key}
	if _, err := p.transport.Delete(ctx, p.apiURL+"/transcript/"+id, headers); err != nil {
		p.log.Warn().Err(err).Str("id", id).Msg("failed to delete transcript")
	}
}

// format renders raw and display text from a completed transcript.
func (p *AssemblyAI) format(t *assemblyAITranscript) (string, string) {
	rawText := strings.TrimSpace(t.Text)

	words := make([]Word, 0, len(t.Words))
	for _, w := range t.Words {
		words = append(words, Word{
			Text:    w.Text,
			Start:   float64(w.Start) / 1000,
			End:     float64(w.End) / 1000,
			Speaker: w.Speaker,
		})
	}

	wordTime := boolOption(p.cfg, "word_time")
	switch {
	case boolOption(p.cfg, "pcr_timestamp") && len(words) > 0:
		return rawText, formatPCRWindows(words, wordTime)
	case boolOption(p.cfg, "speaker_labels") && len(words) > 0:
		return rawText, formatTurns(words, true, wordTime)
	}
	return rawText, rawText
}

// formatPCRWindows emits the transcript in fixed ten-word windows bracketed
// by #start/#end markers. With wordTime set, a $<clock> stamp follows #start
// (window start time) and another precedes #end (window end time).
func formatPCRWindows(words []Word, wordTime bool) string {
	var b strings.Builder
	for i := 0; i < len(words); i += pcrWindowSize {
		end := i + pcrWindowSize
		if end > len(words) {
			end = len(words)
		}
		window := words[i:end]

		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("#start")
		if wordTime {
			b.WriteString(" $" + clock(window[0].Start))
		}
		for _, w := range window {
			b.WriteByte(' ')
			b.WriteString(w.Text)
		}
		if wordTime {
			b.WriteString(" $" + clock(window[len(window)-1].End))
		}
		b.WriteString(" #end")
	}
	return b.String()
}

// assemblyAITranscript is the v2 transcript resource reduced to the fields
// the adapter reads; the undecoded form rides along on Result.Raw.
type assemblyAITranscript struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Text   string           `json:"text"`
	Error  string           `json:"error"`
	Words  []assemblyAIWord `json:"words"`
}

// assemblyAIWord carries millisecond timestamps and a letter speaker label.
type assemblyAIWord struct {
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Speaker string `json:"speaker"`
}

package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/polyscribe/internal/audio"
	"github.com/snarg/polyscribe/internal/transport"
)

const (
	whisperBaseURL = "https://api.openai.com/v1"

	// Upload ceiling. Files above it are transcoded and, when still too
	// large, split into chunks that fit under it.
	whisperMaxFileKB    = 23552
	whisperMaxFileBytes = int64(whisperMaxFileKB) << 10

	whisperDefaultModel = "whisper-1"
)

// whisperFormats is the container allowlist the audio endpoints accept.
var whisperFormats = map[string]bool{
	"flac": true, "m4a": true, "mp3": true, "mp4": true, "mpeg": true,
	"mpga": true, "oga": true, "ogg": true, "wav": true, "webm": true,
}

// Whisper transcribes audio through the OpenAI audio API. Unsupported or
// oversized sources are transcoded to MP3 and split into chunks, each
// uploaded in sequence; clock markers stay continuous across chunks.
type Whisper struct {
	transport *transport.Client
	tools     *audio.Toolchain
	log       zerolog.Logger
	opts      optionTable

	apiURL string

	creds map[string]string
	cfg   map[string]any
}

// NewWhisper builds the Whisper adapter on the shared transport and toolchain.
func NewWhisper(tc *transport.Client, tools *audio.Toolchain, log zerolog.Logger) *Whisper {
	return &Whisper{
		transport: tc,
		tools:     tools,
		log:       log.With().Str("component", "whisper").Logger(),
		opts:      whisperOptions(),
		apiURL:    whisperBaseURL,
	}
}

func whisperOptions() optionTable {
	return optionTable{
		"language":    {parse: parseWhisperLanguage},
		"model":       {},
		"temperature": {parse: parseFloat},
	}
}

// parseWhisperLanguage strips locale regions down to the bare ISO-639 tag
// ("en-US" -> "en").
func parseWhisperLanguage(v any) (any, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, false
	}
	tag, _, _ := strings.Cut(s, "-")
	tag, _, _ = strings.Cut(tag, "_")
	return strings.ToLower(tag), true
}

// SetCredentials stores the credential map; api_key is checked at Transcribe.
func (w *Whisper) SetCredentials(creds map[string]string) error {
	w.creds = creds
	return nil
}

// SetConfig stores transcription options verbatim.
func (w *Whisper) SetConfig(cfg map[string]any) { w.cfg = cfg }

// Transcribe prepares the upload set for the source and runs each chunk
// through the transcription or translation endpoint.
func (w *Whisper) Transcribe(ctx context.Context, source string) (res *Result, err error) {
	start := time.Now()
	defer func() { observe(ProviderWhisper, start, err) }()

	key := w.creds["api_key"]
	if key == "" {
		return nil, &MissingCredentialError{Provider: ProviderWhisper, Key: "api_key"}
	}
	if err := checkSource(source); err != nil {
		return nil, err
	}
	if isRemote(source) {
		return nil, fmt.Errorf("whisper: remote sources are not supported, provide a local file")
	}

	call := &whisperCall{}
	defer call.cleanup(w.log)

	chunks, err := w.prepare(ctx, source, call)
	if err != nil {
		return nil, err
	}

	endpoint := w.apiURL + "/audio/transcriptions"
	if boolOption(w.cfg, "translate") {
		endpoint = w.apiURL + "/audio/translations"
	}
	fields := w.formFields()
	wordTime := boolOption(w.cfg, "word_time")

	var (
		raws     []any
		rawParts []string
		txtParts []string
		offset   float64
	)
	for _, chunk := range chunks {
		resp, raw, err := w.uploadChunk(ctx, endpoint, key, chunk, fields)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
		if t := strings.TrimSpace(resp.Text); t != "" {
			rawParts = append(rawParts, t)
		}
		txtParts = append(txtParts, formatWhisperSegments(resp.Segments, offset, wordTime)...)
		offset += resp.Duration
	}

	rawText := strings.Join(rawParts, " ")
	sep := " "
	if wordTime {
		sep = "\n"
	}
	text := strings.Join(txtParts, sep)
	if text == "" {
		text = rawText
	}

	return &Result{
		Config:  echoConfig(w.cfg, ProviderWhisper),
		Raw:     raws,
		RawText: rawText,
		Text:    text,
	}, nil
}

// whisperCall tracks the temp files one Transcribe call creates, keeping the
// adapter instance free of per-call state.
type whisperCall struct {
	tempFiles []string
}

func (c *whisperCall) add(paths ...string) {
	c.tempFiles = append(c.tempFiles, paths...)
}

// cleanup removes every tracked file; failures are logged, never surfaced.
func (c *whisperCall) cleanup(log zerolog.Logger) {
	for _, p := range c.tempFiles {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p).Msg("failed to remove temp file")
		}
	}
}

// prepare resolves the upload set for the source: transcode when the
// container is unsupported or the file oversized, then split when still
// oversized. Derived files are registered on the call for cleanup.
func (w *Whisper) prepare(ctx context.Context, source string, call *whisperCall) ([]string, error) {
	info, err := w.tools.Inspect(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("inspect source: %w", err)
	}

	path := source
	if !whisperFormats[strings.ToLower(info.Extension)] || info.Size > whisperMaxFileBytes {
		converted := filepath.Join(os.TempDir(), fmt.Sprintf("polyscribe_%d.mp3", time.Now().UnixNano()))
		if err := w.tools.Convert(ctx, source, converted, "mp3", 0); err != nil {
			return nil, fmt.Errorf("convert to mp3: %w", err)
		}
		call.add(converted)
		path = converted

		if info, err = w.tools.Inspect(ctx, converted); err != nil {
			return nil, fmt.Errorf("inspect converted file: %w", err)
		}
	}

	if info.Size <= whisperMaxFileBytes {
		return []string{path}, nil
	}

	chunks, err := w.tools.Split(ctx, path, os.TempDir()+string(os.PathSeparator), whisperMaxFileKB)
	if err != nil {
		return nil, fmt.Errorf("split audio: %w", err)
	}
	call.add(chunks...)
	w.log.Debug().Int("chunks", len(chunks)).Int64("size", info.Size).Msg("split oversized audio")
	return chunks, nil
}

// formFields projects the config onto multipart form fields, defaulting the
// model when unset.
func (w *Whisper) formFields() map[string]string {
	fields := map[string]string{"model": whisperDefaultModel}
	for k, v := range w.opts.project(w.cfg) {
		fields[k] = fmt.Sprint(v)
	}
	return fields
}

// uploadChunk sends one multipart request and decodes the verbose_json
// response, surfacing provider-reported errors.
func (w *Whisper) uploadChunk(ctx context.Context, endpoint, key, path string, fields map[string]string) (*whisperResponse, any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, nil, fmt.Errorf("copy audio data: %w", err)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.WriteField("response_format", "verbose_json")
	mw.Close()

	headers := map[string]string{
		"Authorization": "Bearer " + key,
		"Content-Type":  mw.FormDataContentType(),
	}
	data, err := w.transport.Post(ctx, endpoint, headers, &buf)
	if err != nil {
		return nil, nil, fmt.Errorf("upload chunk: %w", err)
	}

	var resp whisperResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, nil, &ProviderError{Provider: ProviderWhisper, Message: resp.Error.Message}
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, raw, nil
}

// formatWhisperSegments renders one chunk's segments, offsetting each clock
// marker by the cumulative duration of the chunks before it.
func formatWhisperSegments(segments []whisperSegment, offset float64, wordTime bool) []string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if wordTime {
			text = "[" + clock(offset+seg.Start) + "] " + text
		}
		parts = append(parts, text)
	}
	return parts
}

// whisperResponse is the verbose_json payload from the audio endpoints.
type whisperResponse struct {
	Task     string           `json:"task"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Error    *whisperAPIError `json:"error"`
}

type whisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

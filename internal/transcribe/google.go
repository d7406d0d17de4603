package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/polyscribe/internal/audio"
	"github.com/snarg/polyscribe/internal/metrics"
	"github.com/snarg/polyscribe/internal/transport"
)

const (
	googleSpeechURL  = "https://speech.googleapis.com/v1"
	googleStorageURL = "https://storage.googleapis.com"

	// Audio at or past this duration must go through the asynchronous
	// long-running operation; the sync endpoint rejects it.
	googleLongAudioSeconds = 60

	googlePollInterval = 5 * time.Second
)

// Google transcribes audio through the Cloud Speech-to-Text REST API.
// Sources under a minute go through one synchronous recognize call; longer
// ones are staged in a Cloud Storage bucket and tracked as a long-running
// operation polled to completion.
type Google struct {
	transport *transport.Client
	tools     *audio.Toolchain
	auth      *googleAuth
	log       zerolog.Logger
	opts      optionTable

	speechURL  string
	storageURL string
	sleep      func(ctx context.Context, d time.Duration) error

	creds map[string]string
	cfg   map[string]any
}

// NewGoogle builds the Google adapter on the shared transport and toolchain.
func NewGoogle(tc *transport.Client, tools *audio.Toolchain, log zerolog.Logger) *Google {
	return &Google{
		transport:  tc,
		tools:      tools,
		auth:       newGoogleAuth(tc),
		log:        log.With().Str("component", "google").Logger(),
		opts:       googleOptions(),
		speechURL:  googleSpeechURL,
		storageURL: googleStorageURL,
		sleep:      sleepCtx,
	}
}

// googleOptions builds the dispatch table projecting shared option names
// onto RecognitionConfig fields.
func googleOptions() optionTable {
	return optionTable{
		"language":          {wire: "languageCode", parse: parseGoogleLanguage},
		"speaker_labels":    {wire: "enableSpeakerDiarization", parse: parseBool},
		"speakers_expected": {wire: "diarizationSpeakerCount", parse: parseInt},
		"word_time":         {wire: "enableWordTimeOffsets", parse: parseBool},
		"word_confidence":   {wire: "enableWordConfidence", parse: parseBool},
		"punctuate":         {wire: "enableAutomaticPunctuation", parse: parseBool},
		"word_boost":        {wire: "speechContexts", parse: parseSpeechContexts},
		"model":             {},
		"metadata":          {},
	}
}

// googleLocales maps bare ISO-639 primary tags onto the canonical regional
// codes the Speech API expects.
var googleLocales = map[string]string{
	"de": "de-DE",
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"hi": "hi-IN",
	"it": "it-IT",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"nl": "nl-NL",
	"pt": "pt-BR",
}

func parseGoogleLanguage(v any) (any, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, false
	}
	if full, ok := googleLocales[strings.ToLower(s)]; ok {
		return full, true
	}
	return s, true
}

// parseSpeechContexts wraps boost phrases in the speechContexts shape.
func parseSpeechContexts(v any) (any, bool) {
	list, ok := parseStringList(v)
	if !ok {
		return nil, false
	}
	return []map[string]any{{"phrases": list}}, true
}

// SetCredentials stores the credential map. A key_file value is verified to
// exist on disk immediately; a missing bucket only matters for long audio
// and is checked then.
func (g *Google) SetCredentials(creds map[string]string) error {
	if path := creds["key_file"]; path != "" {
		if _, err := os.Stat(path); err != nil {
			return &InvalidCredentialError{
				Provider: ProviderGoogle,
				Key:      "key_file",
				Reason:   "key file does not exist",
			}
		}
		g.auth.setKeyFile(path)
	}
	g.creds = creds
	return nil
}

// SetConfig stores transcription options verbatim.
func (g *Google) SetConfig(cfg map[string]any) { g.cfg = cfg }

// Transcribe converts the source to mono FLAC, picks the sync or
// long-running protocol by duration, and normalizes the response.
func (g *Google) Transcribe(ctx context.Context, source string) (res *Result, err error) {
	start := time.Now()
	defer func() { observe(ProviderGoogle, start, err) }()

	if g.creds["key_file"] == "" {
		return nil, &MissingCredentialError{Provider: ProviderGoogle, Key: "key_file"}
	}
	if err := checkSource(source); err != nil {
		return nil, err
	}
	if isRemote(source) {
		return nil, fmt.Errorf("google: remote sources are not supported, provide a local file")
	}

	info, err := g.tools.Inspect(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("inspect source: %w", err)
	}

	call := &googleCall{}
	defer g.cleanupCall(ctx, call)

	flacPath, err := g.prepareFLAC(ctx, source, call)
	if err != nil {
		return nil, err
	}
	flacInfo, err := g.tools.Inspect(ctx, flacPath)
	if err != nil {
		return nil, fmt.Errorf("inspect converted file: %w", err)
	}
	recCfg := g.recognitionConfig(flacInfo.SampleRate)

	var (
		resp *googleRecognizeResponse
		raw  any
	)
	if info.Duration < googleLongAudioSeconds {
		g.log.Debug().Float64("duration", info.Duration).Msg("using synchronous recognition")
		resp, raw, err = g.recognizeSync(ctx, flacPath, recCfg)
	} else {
		g.log.Debug().Float64("duration", info.Duration).Msg("using long-running recognition")
		resp, raw, err = g.recognizeLong(ctx, flacPath, recCfg, call)
	}
	if err != nil {
		return nil, err
	}

	rawText, text := g.formatResponse(resp)
	return &Result{
		Config:  echoConfig(g.cfg, ProviderGoogle),
		Raw:     raw,
		RawText: rawText,
		Text:    text,
	}, nil
}

// googleCall holds the artifacts one Transcribe call must release.
type googleCall struct {
	tempFiles []string
	bucket    string
	object    string
}

// prepareFLAC converts the source to mono FLAC in the temp dir and registers
// the file on the call for cleanup.
func (g *Google) prepareFLAC(ctx context.Context, source string, call *googleCall) (string, error) {
	out := filepath.Join(os.TempDir(), fmt.Sprintf("polyscribe_%d.flac", time.Now().UnixNano()))
	if err := g.tools.Convert(ctx, source, out, "flac", 1); err != nil {
		return "", fmt.Errorf("convert to flac: %w", err)
	}
	call.tempFiles = append(call.tempFiles, out)
	return out, nil
}

// recognitionConfig assembles the RecognitionConfig for a mono FLAC upload.
// Projected options override the defaults.
func (g *Google) recognitionConfig(sampleRate int) map[string]any {
	cfg := map[string]any{
		"encoding":          "FLAC",
		"sampleRateHertz":   sampleRate,
		"audioChannelCount": 1,
		"languageCode":      "en-US",
	}
	for k, v := range g.opts.project(g.cfg) {
		cfg[k] = v
	}
	return cfg
}

// recognizeSync submits base64 audio to the synchronous endpoint.
func (g *Google) recognizeSync(ctx context.Context, flacPath string, recCfg map[string]any) (*googleRecognizeResponse, any, error) {
	data, err := os.ReadFile(flacPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read converted file: %w", err)
	}

	body := map[string]any{
		"config": recCfg,
		"audio":  map[string]any{"content": base64.StdEncoding.EncodeToString(data)},
	}
	respBody, err := g.post(ctx, g.speechURL+"/speech:recognize", body)
	if err != nil {
		return nil, nil, err
	}
	return decodeRecognizeResponse(respBody)
}

// recognizeLong stages the FLAC in Cloud Storage, submits a long-running
// recognition referencing it, and polls the operation to completion.
func (g *Google) recognizeLong(ctx context.Context, flacPath string, recCfg map[string]any, call *googleCall) (*googleRecognizeResponse, any, error) {
	bucket := g.creds["bucket"]
	if bucket == "" {
		return nil, nil, &MissingCredentialError{Provider: ProviderGoogle, Key: "bucket"}
	}

	object := fmt.Sprintf("%d_%s", time.Now().Unix(), filepath.Base(flacPath))
	if err := g.uploadObject(ctx, bucket, object, flacPath); err != nil {
		return nil, nil, err
	}
	call.bucket, call.object = bucket, object

	body := map[string]any{
		"config": recCfg,
		"audio":  map[string]any{"uri": fmt.Sprintf("gs://%s/%s", bucket, object)},
	}
	respBody, err := g.post(ctx, g.speechURL+"/speech:longrunningrecognize", body)
	if err != nil {
		return nil, nil, err
	}

	var op googleOperation
	if err := json.Unmarshal(respBody, &op); err != nil {
		return nil, nil, fmt.Errorf("decode operation: %w", err)
	}
	if op.Name == "" {
		return nil, nil, &ProviderError{Provider: ProviderGoogle, Message: "operation submission returned no name"}
	}
	return g.pollOperation(ctx, op.Name)
}

// pollOperation blocks until the operation reports done, polling at a fixed
// cadence with no overall timeout. A ctx deadline still aborts the wait.
func (g *Google) pollOperation(ctx context.Context, name string) (*googleRecognizeResponse, any, error) {
	for {
		data, err := g.get(ctx, g.speechURL+"/operations/"+name)
		if err != nil {
			return nil, nil, fmt.Errorf("poll operation: %w", err)
		}
		metrics.ProviderPollsTotal.WithLabelValues(ProviderGoogle).Inc()

		var op googleOperation
		if err := json.Unmarshal(data, &op); err != nil {
			return nil, nil, fmt.Errorf("decode operation: %w", err)
		}
		if op.Error != nil {
			return nil, nil, &ProviderError{
				Provider: ProviderGoogle,
				Message:  fmt.Sprintf("operation failed: code %d: %s", op.Error.Code, op.Error.Message),
				ID:       name,
			}
		}
		if op.Done {
			if len(op.Response) == 0 {
				return nil, nil, &ProviderError{
					Provider: ProviderGoogle,
					Message:  "Unable to complete transcription",
					ID:       name,
				}
			}
			return decodeRecognizeResponse(op.Response)
		}

		g.log.Debug().Str("operation", name).Msg("operation pending")
		if err := g.sleep(ctx, googlePollInterval); err != nil {
			return nil, nil, fmt.Errorf("poll operation: %w", err)
		}
	}
}

// uploadObject stages the FLAC bytes in the Cloud Storage bucket.
func (g *Google) uploadObject(ctx context.Context, bucket, object, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open converted file: %w", err)
	}
	defer f.Close()

	token, err := g.auth.bearer(ctx)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		g.storageURL, bucket, url.QueryEscape(object))
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "audio/flac",
	}
	if _, err := g.transport.Post(ctx, endpoint, headers, f); err != nil {
		return fmt.Errorf("upload audio object: %w", err)
	}
	g.log.Debug().Str("bucket", bucket).Str("object", object).Msg("uploaded audio object")
	return nil
}

// cleanupCall removes call-scoped artifacts on every exit path. Failures are
// logged, never surfaced, so they cannot mask the primary error.
func (g *Google) cleanupCall(ctx context.Context, call *googleCall) {
	for _, p := range call.tempFiles {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			g.log.Warn().Err(err).Str("path", p).Msg("failed to remove temp file")
		}
	}
	if call.object == "" {
		return
	}

	ctx = context.WithoutCancel(ctx)
	token, err := g.auth.bearer(ctx)
	if err != nil {
		g.log.Warn().Err(err).Str("object", call.object).Msg("skipping remote object cleanup")
		return
	}
	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o/%s",
		g.storageURL, call.bucket, url.QueryEscape(call.object))
	headers := map[string]string{"Authorization": "Bearer " + token}
	if _, err := g.transport.Delete(ctx, endpoint, headers); err != nil {
		g.log.Warn().Err(err).Str("object", call.object).Msg("failed to delete audio object")
	}
}

// post sends one authenticated JSON request to a Google endpoint.
func (g *Google) post(ctx context.Context, endpoint string, body any) ([]byte, error) {
	token, err := g.auth.bearer(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}
	return g.transport.Post(ctx, endpoint, headers, bytes.NewReader(data))
}

func (g *Google) get(ctx context.Context, endpoint string) ([]byte, error) {
	token, err := g.auth.bearer(ctx)
	if err != nil {
		return nil, err
	}
	return g.transport.Get(ctx, endpoint, map[string]string{"Authorization": "Bearer " + token})
}

// formatResponse flattens the recognize results into raw and display text.
// With diarization off the two are identical.
func (g *Google) formatResponse(resp *googleRecognizeResponse) (string, string) {
	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	rawText := strings.Join(parts, " ")

	if !boolOption(g.cfg, "speaker_labels") {
		return rawText, rawText
	}
	words := diarizedWords(resp)
	if len(words) == 0 {
		return rawText, rawText
	}
	return rawText, formatTurns(words, true, boolOption(g.cfg, "word_time"))
}

// diarizedWords extracts the cumulative word list the API appends as the
// final result when diarization is on.
func diarizedWords(resp *googleRecognizeResponse) []Word {
	if len(resp.Results) == 0 {
		return nil
	}
	last := resp.Results[len(resp.Results)-1]
	if len(last.Alternatives) == 0 {
		return nil
	}
	gw := last.Alternatives[0].Words
	words := make([]Word, 0, len(gw))
	for _, w := range gw {
		speaker := ""
		if w.SpeakerTag > 0 {
			speaker = strconv.Itoa(w.SpeakerTag)
		}
		words = append(words, Word{
			Text:    w.Word,
			Start:   parseGoogleDuration(w.StartTime),
			End:     parseGoogleDuration(w.EndTime),
			Speaker: speaker,
		})
	}
	return words
}

// parseGoogleDuration reads the API's "3.500s" duration strings.
func parseGoogleDuration(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
	if err != nil {
		return 0
	}
	return v
}

func decodeRecognizeResponse(data []byte) (*googleRecognizeResponse, any, error) {
	var resp googleRecognizeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil, fmt.Errorf("decode recognize response: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode recognize response: %w", err)
	}
	return &resp, raw, nil
}

// googleRecognizeResponse is the recognize payload reduced to the fields the
// adapter reads; the undecoded form rides along on Result.Raw.
type googleRecognizeResponse struct {
	Results []googleResult `json:"results"`
}

type googleResult struct {
	Alternatives []googleAlternative `json:"alternatives"`
}

type googleAlternative struct {
	Transcript string       `json:"transcript"`
	Confidence float64      `json:"confidence"`
	Words      []googleWord `json:"words"`
}

type googleWord struct {
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Word       string `json:"word"`
	SpeakerTag int    `json:"speakerTag"`
}

// googleOperation is the long-running operation envelope.
type googleOperation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *googleOpError  `json:"error"`
	Response json.RawMessage `json:"response"`
}

type googleOpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

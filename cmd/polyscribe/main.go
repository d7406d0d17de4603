package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/snarg/polyscribe/internal/audio"
	"github.com/snarg/polyscribe/internal/config"
	"github.com/snarg/polyscribe/internal/transcribe"
	"github.com/snarg/polyscribe/internal/transport"
)

var version = "dev"

const batchWorkers = 4

func main() {
	var (
		envFile   = flag.String("env-file", "", "path to a .env file (default .env when present)")
		provider  = flag.String("provider", "", "transcription provider: google, assemblyai, or whisper")
		logLevel  = flag.String("log-level", "", "log level (trace, debug, info, warn, error)")
		language  = flag.String("language", "", "spoken language hint (ISO locale, e.g. en-US)")
		model     = flag.String("model", "", "provider model override")
		speakers  = flag.Bool("speaker-labels", false, "annotate speaker turns")
		expected  = flag.Int("speakers-expected", 0, "expected number of speakers")
		wordTime  = flag.Bool("word-time", false, "prefix turns and segments with clock markers")
		punctuate = flag.Bool("punctuate", false, "request automatic punctuation")
		translate = flag.Bool("translate", false, "translate to English (whisper only)")
		boost     = flag.String("word-boost", "", "comma-separated vocabulary phrases to bias recognition")
		rawOut    = flag.Bool("raw", false, "print the plain transcript without markers")
		reference = flag.String("reference", "", "reference transcript file to score against (word error rate)")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: polyscribe [flags] <audio file or URL> [more sources...]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	sources := flag.Args()

	cfg, err := config.Load(config.Overrides{
		EnvFile:  *envFile,
		Provider: *provider,
		LogLevel: *logLevel,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	// Logs go to stderr; stdout carries only the transcript.
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
	log.Debug().Str("version", version).Str("provider", cfg.Provider).Msg("polyscribe starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tc := transport.NewClient(cfg.HTTPTimeout, log)
	tools := audio.NewToolchain(audio.Commands{
		Inspect:   cfg.InspectCmd,
		Convert:   cfg.ConvertCmd,
		Split:     cfg.SplitCmd,
		ErrorRate: cfg.ErrorRateCmd,
	}, log)

	// AssemblyAI is the only provider that works without the local tools;
	// scoring against a reference needs them regardless.
	if cfg.Provider != transcribe.ProviderAssemblyAI || *reference != "" {
		if err := tools.Check(); err != nil {
			log.Fatal().Err(err).Msg("audio toolchain unavailable")
		}
	}

	p, err := transcribe.New(cfg.Provider, tc, tools, log)
	if err != nil {
		log.Fatal().Err(err).Msg("unknown provider")
	}
	if err := p.SetCredentials(credentials(cfg)); err != nil {
		log.Fatal().Err(err).Msg("invalid credentials")
	}

	opts := map[string]any{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "language":
			opts["language"] = *language
		case "model":
			opts["model"] = *model
		case "speaker-labels":
			opts["speaker_labels"] = *speakers
		case "speakers-expected":
			opts["speakers_expected"] = *expected
		case "word-time":
			opts["word_time"] = *wordTime
		case "punctuate":
			opts["punctuate"] = *punctuate
		case "translate":
			opts["translate"] = *translate
		case "word-boost":
			opts["word_boost"] = splitList(*boost)
		}
	})
	p.SetConfig(opts)

	if len(sources) > 1 {
		if *reference != "" {
			log.Warn().Msg("-reference scores a single source, ignoring it for batch runs")
		}
		if code := runBatch(p, sources, *rawOut, log); code != 0 {
			os.Exit(code)
		}
		return
	}

	res, err := p.Transcribe(ctx, sources[0])
	if err != nil {
		log.Fatal().Err(err).Str("source", sources[0]).Msg("transcription failed")
	}

	text := res.Text
	if *rawOut {
		text = res.RawText
	}
	fmt.Println(text)

	if *reference != "" {
		data, err := os.ReadFile(*reference)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read reference transcript")
		}
		rate, err := tools.ErrorRate(ctx, strings.TrimSpace(string(data)), res.RawText)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to score transcript")
		}
		fmt.Fprintf(os.Stderr, "word error rate: %.2f%%\n", rate)
	}
}

// runBatch fans the sources out over a worker pool sharing one provider and
// prints each transcript under a source header.
func runBatch(p transcribe.Provider, sources []string, raw bool, log zerolog.Logger) int {
	pool := transcribe.NewPool(p, batchWorkers, len(sources), log)
	pool.Start()
	for _, src := range sources {
		if !pool.Enqueue(transcribe.Job{Source: src}) {
			log.Error().Str("source", src).Msg("queue full, skipping source")
		}
	}
	pool.Stop()

	failed := 0
	for r := range pool.Results() {
		if r.Err != nil {
			failed++
			log.Error().Err(r.Err).Str("source", r.Source).Msg("transcription failed")
			continue
		}
		text := r.Result.Text
		if raw {
			text = r.Result.RawText
		}
		fmt.Printf("==> %s\n%s\n\n", r.Source, text)
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// credentials projects the env config onto the selected provider's
// credential keys.
func credentials(cfg *config.Config) map[string]string {
	switch cfg.Provider {
	case transcribe.ProviderGoogle:
		return map[string]string{
			"key_file": cfg.GoogleKeyFile,
			"bucket":   cfg.GoogleBucket,
		}
	case transcribe.ProviderAssemblyAI:
		return map[string]string{"api_key": cfg.AssemblyAIAPIKey}
	case transcribe.ProviderWhisper:
		return map[string]string{"api_key": cfg.OpenAIAPIKey}
	}
	return map[string]string{}
}

// splitList turns a comma-separated flag value into trimmed phrases.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

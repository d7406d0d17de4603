package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/polyscribe/internal/metrics"
)

// Default argv prefixes for the external tool binaries.
var (
	defaultInspectCmd   = []string{"audio-details"}
	defaultConvertCmd   = []string{"audio-convert"}
	defaultSplitCmd     = []string{"audio-split"}
	defaultErrorRateCmd = []string{"stt-wer"}
)

// ToolError reports a tool subprocess that exited non-zero.
type ToolError struct {
	Tool     string
	ExitCode int
	Output   string
}

func (e *ToolError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("audio: %s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("audio: %s exited with code %d: %s", e.Tool, e.ExitCode, out)
}

// FileInfo holds the attributes reported by the inspect tool.
type FileInfo struct {
	Path       string
	Dir        string
	Basename   string
	Name       string
	Extension  string // without leading dot
	MIMEType   string
	Size       int64   // bytes
	Duration   float64 // seconds
	BitRate    int
	SampleRate int
	Channels   int
}

// Commands overrides the argv prefix used to launch each tool.
// Nil fields keep the default bare binary names.
type Commands struct {
	Inspect   []string
	Convert   []string
	Split     []string
	ErrorRate []string
}

// Toolchain runs the external audio tools as subprocesses.
type Toolchain struct {
	inspectCmd   []string
	convertCmd   []string
	splitCmd     []string
	errorRateCmd []string
	log          zerolog.Logger
}

// NewToolchain builds a Toolchain with the given command overrides.
func NewToolchain(cmds Commands, logger zerolog.Logger) *Toolchain {
	t := &Toolchain{
		inspectCmd:   defaultInspectCmd,
		convertCmd:   defaultConvertCmd,
		splitCmd:     defaultSplitCmd,
		errorRateCmd: defaultErrorRateCmd,
		log:          logger.With().Str("component", "audio").Logger(),
	}
	if len(cmds.Inspect) > 0 {
		t.inspectCmd = cmds.Inspect
	}
	if len(cmds.Convert) > 0 {
		t.convertCmd = cmds.Convert
	}
	if len(cmds.Split) > 0 {
		t.splitCmd = cmds.Split
	}
	if len(cmds.ErrorRate) > 0 {
		t.errorRateCmd = cmds.ErrorRate
	}
	return t
}

// Check verifies every configured tool binary is reachable in PATH.
// Call once at startup; tools are not probed again per run.
func (t *Toolchain) Check() error {
	for _, argv := range [][]string{t.inspectCmd, t.convertCmd, t.splitCmd, t.errorRateCmd} {
		if _, err := exec.LookPath(argv[0]); err != nil {
			return fmt.Errorf("audio tool not found: %s", argv[0])
		}
	}
	return nil
}

// Inspect reports the attributes of a local audio file.
func (t *Toolchain) Inspect(ctx context.Context, path string) (*FileInfo, error) {
	out, err := t.run(ctx, "inspect", t.inspectCmd, "--infile", path)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{}
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "filepath":
			info.Path = value
		case "dirpath":
			info.Dir = value
		case "basename":
			info.Basename = value
		case "filename":
			info.Name = value
		case "extension":
			info.Extension = strings.TrimPrefix(value, ".")
		case "mime_type":
			if value != "None" {
				info.MIMEType = value
			}
		case "filesize":
			info.Size = int64(parseNumber(value))
		case "duration":
			info.Duration = parseNumber(value)
		case "bit_rate":
			info.BitRate = int(parseNumber(value))
		case "sample_rate":
			info.SampleRate = int(parseNumber(value))
		case "channels":
			info.Channels = int(parseNumber(value))
		}
	}
	return info, nil
}

// Convert transcodes infile into outfile with the given container format.
// channels <= 0 keeps the source channel count. The caller owns outfile.
func (t *Toolchain) Convert(ctx context.Context, infile, outfile, format string, channels int) error {
	args := []string{"--infile", infile, "--outfile", outfile, "--outfile_format", format}
	if channels > 0 {
		args = append(args, "--channels", strconv.Itoa(channels))
	}
	_, err := t.run(ctx, "convert", t.convertCmd, args...)
	return err
}

// Split cuts infile into chunks of at most chunkSizeKB kilobytes, written
// under tmpDir. Returns the chunk paths in playback order; the caller owns
// and must remove them.
func (t *Toolchain) Split(ctx context.Context, infile, tmpDir string, chunkSizeKB int) ([]string, error) {
	out, err := t.run(ctx, "split", t.splitCmd,
		"--infile", infile, "--tmp_dir", tmpDir, "--chunk_size", strconv.Itoa(chunkSizeKB))
	if err != nil {
		return nil, err
	}

	var chunks []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			chunks = append(chunks, line)
		}
	}
	t.log.Debug().Str("infile", infile).Int("chunks", len(chunks)).Msg("split audio file")
	return chunks, nil
}

// ErrorRate scores hypothesis against reference and returns the word error
// rate as a percentage. Unparsable tool output counts as 100.
func (t *Toolchain) ErrorRate(ctx context.Context, reference, hypothesis string) (float64, error) {
	out, err := t.run(ctx, "wer", t.errorRateCmd,
		"--reference", reference, "--hypothesis", hypothesis)
	if err != nil {
		return 0, err
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 100, nil
	}
	return rate, nil
}

// run executes one tool subprocess and returns its combined output.
func (t *Toolchain) run(ctx context.Context, tool string, argv []string, args ...string) (string, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		metrics.AudioToolRunsTotal.WithLabelValues(tool, metrics.StatusError).Inc()
		if ctx.Err() != nil {
			return "", fmt.Errorf("audio: %s: %w", tool, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ToolError{Tool: tool, ExitCode: exitErr.ExitCode(), Output: string(out)}
		}
		return "", fmt.Errorf("audio: %s: %w", tool, err)
	}

	metrics.AudioToolRunsTotal.WithLabelValues(tool, metrics.StatusOK).Inc()
	t.log.Debug().
		Str("tool", tool).
		Dur("elapsed", time.Since(start)).
		Msg("tool run complete")
	return string(out), nil
}

// parseNumber reads a decimal value, returning 0 when it does not parse.
func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

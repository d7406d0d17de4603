package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeTool writes a shell script into a temp dir and returns its path.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func TestInspect(t *testing.T) {
	script := `cat <<'EOF'
filepath:/tmp/in/call.mp3
dirpath:/tmp/in
basename:call.mp3
filename:call
extension:mp3
mime_type:audio/mpeg
filesize:1048576
duration:72.35
bit_rate:256000
sample_rate:44100
channels:2
EOF`
	tc := NewToolchain(Commands{Inspect: []string{fakeTool(t, script)}}, zerolog.Nop())

	info, err := tc.Inspect(context.Background(), "/tmp/in/call.mp3")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	want := FileInfo{
		Path:       "/tmp/in/call.mp3",
		Dir:        "/tmp/in",
		Basename:   "call.mp3",
		Name:       "call",
		Extension:  "mp3",
		MIMEType:   "audio/mpeg",
		Size:       1048576,
		Duration:   72.35,
		BitRate:    256000,
		SampleRate: 44100,
		Channels:   2,
	}
	if *info != want {
		t.Errorf("Inspect = %+v, want %+v", *info, want)
	}
}

func TestInspect_UnknownMIMEAndMissingKeys(t *testing.T) {
	script := `cat <<'EOF'
basename:call.raw
extension:.raw
mime_type:None
duration:3.5
EOF`
	tc := NewToolchain(Commands{Inspect: []string{fakeTool(t, script)}}, zerolog.Nop())

	info, err := tc.Inspect(context.Background(), "call.raw")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.MIMEType != "" {
		t.Errorf("MIMEType = %q, want empty for None", info.MIMEType)
	}
	if info.Extension != "raw" {
		t.Errorf("Extension = %q, want dot stripped", info.Extension)
	}
	if info.SampleRate != 0 || info.Size != 0 {
		t.Errorf("missing keys should stay zero, got %+v", *info)
	}
}

func TestInspect_ToolFailure(t *testing.T) {
	script := `echo "could not decode file"
exit 1`
	tc := NewToolchain(Commands{Inspect: []string{fakeTool(t, script)}}, zerolog.Nop())

	_, err := tc.Inspect(context.Background(), "broken.mp3")
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected *ToolError, got %v", err)
	}
	if toolErr.Tool != "inspect" || toolErr.ExitCode != 1 {
		t.Errorf("ToolError = %+v, want tool=inspect exit=1", toolErr)
	}
	if !strings.Contains(toolErr.Output, "could not decode file") {
		t.Errorf("Output = %q, want tool output preserved", toolErr.Output)
	}
}

func TestConvert(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	script := fmt.Sprintf(`printf '%%s\n' "$@" > %s`, argsFile)
	tc := NewToolchain(Commands{Convert: []string{fakeTool(t, script)}}, zerolog.Nop())

	t.Run("with channels", func(t *testing.T) {
		if err := tc.Convert(context.Background(), "in.wav", "out.flac", "flac", 1); err != nil {
			t.Fatalf("Convert: %v", err)
		}
		got := readArgs(t, argsFile)
		want := []string{"--infile", "in.wav", "--outfile", "out.flac", "--outfile_format", "flac", "--channels", "1"}
		assertArgs(t, got, want)
	})

	t.Run("without channels", func(t *testing.T) {
		if err := tc.Convert(context.Background(), "in.wav", "out.mp3", "mp3", 0); err != nil {
			t.Fatalf("Convert: %v", err)
		}
		got := readArgs(t, argsFile)
		want := []string{"--infile", "in.wav", "--outfile", "out.mp3", "--outfile_format", "mp3"}
		assertArgs(t, got, want)
	})
}

func TestSplit(t *testing.T) {
	script := `cat <<'EOF'
/tmp/s/1724630000_call_chunk_1.mp3
/tmp/s/1724630000_call_chunk_2.mp3
/tmp/s/1724630000_call_chunk_3.mp3
EOF`
	tc := NewToolchain(Commands{Split: []string{fakeTool(t, script)}}, zerolog.Nop())

	chunks, err := tc.Split(context.Background(), "call.mp3", "/tmp/s/", 1024)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{
		"/tmp/s/1724630000_call_chunk_1.mp3",
		"/tmp/s/1724630000_call_chunk_2.mp3",
		"/tmp/s/1724630000_call_chunk_3.mp3",
	}
	assertArgs(t, chunks, want)
}

func TestErrorRate(t *testing.T) {
	t.Run("numeric output", func(t *testing.T) {
		tc := NewToolchain(Commands{ErrorRate: []string{fakeTool(t, `echo 12.5`)}}, zerolog.Nop())
		rate, err := tc.ErrorRate(context.Background(), "ref text", "hyp text")
		if err != nil {
			t.Fatalf("ErrorRate: %v", err)
		}
		if rate != 12.5 {
			t.Errorf("rate = %v, want 12.5", rate)
		}
	})

	t.Run("unparsable output counts as 100", func(t *testing.T) {
		tc := NewToolchain(Commands{ErrorRate: []string{fakeTool(t, `echo not-a-number`)}}, zerolog.Nop())
		rate, err := tc.ErrorRate(context.Background(), "ref", "hyp")
		if err != nil {
			t.Fatalf("ErrorRate: %v", err)
		}
		if rate != 100 {
			t.Errorf("rate = %v, want 100", rate)
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		tc := NewToolchain(Commands{ErrorRate: []string{fakeTool(t, "echo boom\nexit 3")}}, zerolog.Nop())
		_, err := tc.ErrorRate(context.Background(), "ref", "hyp")
		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			t.Fatalf("expected *ToolError, got %v", err)
		}
		if toolErr.ExitCode != 3 {
			t.Errorf("ExitCode = %d, want 3", toolErr.ExitCode)
		}
	})
}

func TestRun_ContextCanceled(t *testing.T) {
	tc := NewToolchain(Commands{Inspect: []string{fakeTool(t, `sleep 2`)}}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tc.Inspect(ctx, "slow.mp3")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	tool := fakeTool(t, `exit 0`)

	t.Run("all present", func(t *testing.T) {
		tc := NewToolchain(Commands{
			Inspect:   []string{tool},
			Convert:   []string{tool},
			Split:     []string{tool},
			ErrorRate: []string{tool},
		}, zerolog.Nop())
		if err := tc.Check(); err != nil {
			t.Fatalf("Check: %v", err)
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		tc := NewToolchain(Commands{
			Inspect:   []string{tool},
			Convert:   []string{filepath.Join(t.TempDir(), "nope")},
			Split:     []string{tool},
			ErrorRate: []string{tool},
		}, zerolog.Nop())
		if err := tc.Check(); err == nil {
			t.Fatal("expected error for missing binary")
		}
	})
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func assertArgs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d values %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %q, want %q", i, got[i], want[i])
		}
	}
}

package transcribe

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/polyscribe/internal/audio"
	"github.com/snarg/polyscribe/internal/transport"
)

func newTestTransport() *transport.Client {
	return transport.NewClient(0, zerolog.Nop())
}

// writeScript drops an executable shell script into dir and returns its path.
func writeScript(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// newTestTools builds a Toolchain from shell script bodies. Empty bodies get
// a script that fails loudly, so unexpected tool calls surface as errors.
func newTestTools(t *testing.T, inspect, convert, split string) *audio.Toolchain {
	t.Helper()
	fail := `echo "unexpected tool call" >&2
exit 9`
	if inspect == "" {
		inspect = fail
	}
	if convert == "" {
		convert = fail
	}
	if split == "" {
		split = fail
	}
	dir := t.TempDir()
	return audio.NewToolchain(audio.Commands{
		Inspect:   []string{writeScript(t, dir, "inspect", inspect)},
		Convert:   []string{writeScript(t, dir, "convert", convert)},
		Split:     []string{writeScript(t, dir, "split", split)},
		ErrorRate: []string{writeScript(t, dir, "wer", fail)},
	}, zerolog.Nop())
}

// writeServiceAccountKey writes a syntactically valid service-account key
// file with a freshly generated RSA key and returns its path.
func writeServiceAccountKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	data, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "speech@test-project.iam.gserviceaccount.com",
		"private_key":  string(pemBytes),
	})
	if err != nil {
		t.Fatalf("marshal service account: %v", err)
	}

	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

// writeAudioFile drops a small placeholder audio file and returns its path.
func writeAudioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write audio file: %v", err)
	}
	return path
}

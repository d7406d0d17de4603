package transcribe

import (
	"github.com/rs/zerolog"

	"github.com/snarg/polyscribe/internal/audio"
	"github.com/snarg/polyscribe/internal/transport"
)

// New builds the adapter registered under name, wiring in the shared
// transport client, audio toolchain, and logger. Names match exactly.
func New(name string, tc *transport.Client, tools *audio.Toolchain, log zerolog.Logger) (Provider, error) {
	switch name {
	case ProviderGoogle:
		return NewGoogle(tc, tools, log), nil
	case ProviderAssemblyAI:
		return NewAssemblyAI(tc, log), nil
	case ProviderWhisper:
		return NewWhisper(tc, tools, log), nil
	}
	return nil, &UnsupportedProviderError{Name: name}
}

package transcribe

import "fmt"

// MissingCredentialError reports a credential key a provider requires but
// was never given.
type MissingCredentialError struct {
	Provider string
	Key      string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s: missing credential %q", e.Provider, e.Key)
}

// InvalidCredentialError reports a credential value rejected up front.
type InvalidCredentialError struct {
	Provider string
	Key      string
	Reason   string
}

func (e *InvalidCredentialError) Error() string {
	return fmt.Sprintf("%s: invalid credential %q: %s", e.Provider, e.Key, e.Reason)
}

// FileNotFoundError reports a source path that is neither a remote URL nor
// an existing local file.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("audio file not found: %s", e.Path)
}

// UnsupportedProviderError reports a provider name with no adapter.
type UnsupportedProviderError struct {
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider: %q", e.Name)
}

// ProviderError reports a failure signaled by the provider itself, as
// opposed to a transport or tool failure. ID carries the provider-side job
// or transcript id when one exists.
type ProviderError struct {
	Provider string
	Message  string
	ID       string
}

func (e *ProviderError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (id %s)", e.Provider, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

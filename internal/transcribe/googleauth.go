package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/snarg/polyscribe/internal/transport"
)

const (
	googleTokenURL   = "https://oauth2.googleapis.com/token"
	googleAuthScope  = "https://www.googleapis.com/auth/cloud-platform"
	googleGrantType  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	googleTokenSlack = 60 * time.Second
)

// googleAuth mints OAuth2 bearer tokens from a service-account key file and
// caches them until shortly before expiry.
type googleAuth struct {
	transport *transport.Client
	tokenURL  string

	mu      sync.Mutex
	keyFile string
	token   string
	expiry  time.Time
}

func newGoogleAuth(tc *transport.Client) *googleAuth {
	return &googleAuth{transport: tc, tokenURL: googleTokenURL}
}

// setKeyFile points the auth at a new key and drops any cached token.
func (a *googleAuth) setKeyFile(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keyFile = path
	a.token = ""
	a.expiry = time.Time{}
}

// bearer returns a valid access token, minting a fresh one when the cache is
// empty or within the expiry slack.
func (a *googleAuth) bearer(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiry.Add(-googleTokenSlack)) {
		return a.token, nil
	}

	assertion, err := a.signAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {googleGrantType},
		"assertion":  {assertion},
	}
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	data, err := a.transport.Post(ctx, a.tokenURL, headers, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("exchange token: %w", err)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access_token")
	}

	a.token = resp.AccessToken
	a.expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return a.token, nil
}

// signAssertion builds the RS256 service-account JWT for the token exchange.
func (a *googleAuth) signAssertion() (string, error) {
	data, err := os.ReadFile(a.keyFile)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}

	var key struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return "", fmt.Errorf("parse key file: %w", err)
	}

	rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   key.ClientEmail,
		"scope": googleAuthScope,
		"aud":   a.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(rsaKey)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return assertion, nil
}

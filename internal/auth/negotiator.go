// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package auth

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/herdmode/herdmode/core/session"
)

var logger = loggo.GetLogger("herdmode.auth")

const (
	// Application identifies this client to the identity provider.
	Application = "VmsFarm"

	// TokenTTL is the lifetime requested for the bearer token.
	TokenTTL = 999999

	loginLogMessage = "Automated Login"

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 1 << 20
)

// ErrLoginRejected is returned when the identity provider refuses the
// hashed credentials.
const ErrLoginRejected = errors.ConstError("login rejected")

// Config holds the dependencies of a Negotiator.
type Config struct {
	SaltURL    string
	LoginURL   string
	HTTPClient *http.Client
	Hasher     Hasher
}

// Validate ensures the config is usable.
func (c Config) Validate() error {
	if c.SaltURL == "" {
		return errors.NotValidf("empty SaltURL")
	}
	if c.LoginURL == "" {
		return errors.NotValidf("empty LoginURL")
	}
	if c.HTTPClient == nil {
		return errors.NotValidf("nil HTTPClient")
	}
	if c.Hasher == nil {
		return errors.NotValidf("nil Hasher")
	}
	return nil
}

// Negotiator obtains bearer tokens from the identity provider using the
// salt, hash, login exchange.
type Negotiator struct {
	config Config
}

// NewNegotiator returns a Negotiator for the given config.
func NewNegotiator(config Config) (*Negotiator, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Negotiator{config: config}, nil
}

// NewHTTPClient returns the client used to talk to the identity
// provider. Its certificate is not publicly trusted, so verification is
// skipped when insecureSkipVerify is set.
func NewHTTPClient(insecureSkipVerify bool, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: insecureSkipVerify,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Login performs the whole exchange and returns the bearer token.
func (n *Negotiator) Login(ctx context.Context, username, password string) (string, error) {
	entries, err := n.fetchSalt(ctx, username)
	if err != nil {
		return "", errors.Annotate(err, "fetching salt")
	}
	if len(entries) < 2 {
		return "", errors.NotValidf("salt response with %d parameter sets", len(entries))
	}

	hashed := make([]string, len(entries))
	for i, entry := range entries {
		if hashed[i], err = hashEntry(n.config.Hasher, password, entry); err != nil {
			return "", errors.Annotatef(err, "parameter set %d", i)
		}
	}

	token, err := n.login(ctx, username, hashed)
	if err != nil {
		return "", errors.Trace(err)
	}
	logger.Infof("login successful for %q", username)
	logger.Debugf("token %s", redact(token))
	return token, nil
}

func (n *Negotiator) fetchSalt(ctx context.Context, username string) ([]SaltEntry, error) {
	logger.Debugf("asking for salt for %q", username)
	body, status, err := n.post(ctx, n.config.SaltURL, map[string]string{
		"username":    username,
		"application": Application,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !isSuccess(status) {
		return nil, errors.Errorf("salt request returned %d: %s", status, body)
	}
	var entries []SaltEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, errors.NewNotValid(err, "decoding salt response")
	}
	return entries, nil
}

type loginRequest struct {
	Username    string `json:"username"`
	Password1   string `json:"password1"`
	Password2   string `json:"password2"`
	Password4   string `json:"password4"`
	TTL         int    `json:"ttl"`
	Application string `json:"application"`
	Log         string `json:"log"`
}

func (n *Negotiator) login(ctx context.Context, username string, hashed []string) (string, error) {
	body, status, err := n.post(ctx, n.config.LoginURL, loginRequest{
		Username:    username,
		Password1:   hashed[0],
		Password2:   hashed[1],
		Password4:   "",
		TTL:         TokenTTL,
		Application: Application,
		Log:         loginLogMessage,
	})
	if err != nil {
		return "", errors.Trace(err)
	}
	if !isSuccess(status) {
		return "", errors.Annotatef(ErrLoginRejected, "login request returned %d: %s", status, body)
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", errors.Annotate(ErrLoginRejected, "empty token")
	}
	return token, nil
}

// post sends payload as JSON and returns the trimmed response body and
// status code. Only transport failures are returned as errors.
func (n *Negotiator) post(ctx context.Context, url string, payload interface{}) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.config.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, errors.Annotatef(err, "POST %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, errors.Annotatef(err, "reading response from %s", url)
	}
	return bytes.TrimSpace(body), resp.StatusCode, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return fmt.Sprintf("%s****", token[:4])
}

// TokenSource obtains a bearer token.
type TokenSource interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Authenticate logs in and, only on success, stores the new token in
// the session. On failure the session is left untouched.
func Authenticate(ctx context.Context, source TokenSource, sess *session.Session, username, password string) error {
	token, err := source.Login(ctx, username, password)
	if err != nil {
		return errors.Trace(err)
	}
	sess.ReplaceToken(token)
	return nil
}

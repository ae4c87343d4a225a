package authflow

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/juju/webbrowser"

	"vbt-go/internal/vbt"
)

// State is the progress of a token exchange attempt.
type State int

const (
	// StateIdle means no exchange has been started.
	StateIdle State = iota
	// StateAuthorizationRequested means an authorize URL has been composed
	// and is about to be opened in the browser.
	StateAuthorizationRequested
	// StateAwaitingCallback means the browser is open and the flow is
	// waiting for the portal's completion POST.
	StateAwaitingCallback
	// StateVerified means the callback state matched the pending nonce and
	// the bearer token has been accepted.
	StateVerified
	// StateAccountResolved means an account was selected for the bearer.
	StateAccountResolved
	// StateKeysIssued is the terminal success state: scoped storage keys
	// are persisted and ready for use.
	StateKeysIssued
	// StateFailed is the terminal failure state for the attempt.
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthorizationRequested:
		return "authorization requested"
	case StateAwaitingCallback:
		return "awaiting callback"
	case StateVerified:
		return "verified"
	case StateAccountResolved:
		return "account resolved"
	case StateKeysIssued:
		return "keys issued"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config holds the parameters of the token exchange.
type Config struct {
	ClientID     string
	AuthorizeURL string
	RedirectURI  string
	Scope        string
	// TrustedOrigin is the only web origin whose callbacks are honored.
	// Empty derives it from the authorize URL.
	TrustedOrigin string
}

// Store is the narrow persistence contract the flow writes its progress
// through. Each save lands in settings (and the credential store where it
// affects the storage client) immediately, so partial progress survives a
// later step's failure.
type Store interface {
	SavePendingState(nonce string) error
	SaveBearerToken(token string) error
	SaveAccountID(id string) error
	SaveKeys(accessKeyID, secretAccessKey string) error
}

// OriginOf extracts the web origin (scheme://host) of a URL.
func OriginOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q has no origin", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Flow is the token exchange state machine. One attempt is pending at a
// time; beginning a new attempt abandons the previous one, and the pending
// nonce is consumed by the first matching-origin callback in every outcome.
type Flow struct {
	cfg     Config
	api     *APIClient
	store   Store
	logger  vbt.Logger
	openURL func(*url.URL) error

	mu    sync.Mutex
	state State
	nonce string
	err   error
	done  chan struct{}
}

// NewFlow creates a Flow. The trusted origin defaults to the authorize
// URL's origin.
func NewFlow(cfg Config, api *APIClient, store Store, logger vbt.Logger) (*Flow, error) {
	if cfg.ClientID == "" {
		return nil, &vbt.ConfigurationError{Field: "auth.client_id"}
	}
	if cfg.AuthorizeURL == "" {
		return nil, &vbt.ConfigurationError{Field: "auth.authorize_url"}
	}
	if cfg.TrustedOrigin == "" {
		origin, err := OriginOf(cfg.AuthorizeURL)
		if err != nil {
			return nil, fmt.Errorf("deriving trusted origin: %w", err)
		}
		cfg.TrustedOrigin = origin
	}
	if logger == nil {
		logger = vbt.NewNopLogger()
	}

	// The done channel starts closed: with no attempt pending there is
	// nothing to wait for.
	done := make(chan struct{})
	close(done)

	return &Flow{
		cfg:     cfg,
		api:     api,
		store:   store,
		logger:  logger,
		openURL: webbrowser.Open,
		state:   StateIdle,
		done:    done,
	}, nil
}

// TrustedOrigin returns the only origin whose callbacks are honored.
func (f *Flow) TrustedOrigin() string {
	return f.cfg.TrustedOrigin
}

// State returns the current state of the attempt.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err returns the failure of the current attempt, nil unless State is
// StateFailed.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Done returns a channel closed when the current attempt reaches a terminal
// state. It is already closed while no attempt is pending.
func (f *Flow) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Resume restores a pending attempt from a previously persisted nonce, so a
// callback can still be honored after a restart mid-flow.
func (f *Flow) Resume(nonce string) {
	if nonce == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateIdle {
		return
	}
	f.nonce = nonce
	f.state = StateAwaitingCallback
	f.done = make(chan struct{})
}

// Begin starts a new exchange attempt: generate and persist a fresh state
// nonce, compose the authorize URL and open it in the browser. When no
// browser is available the URL is logged for the user to open manually, and
// the returned URL lets callers print it as well.
func (f *Flow) Begin(ctx context.Context) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	// Abandon a pending attempt whose nonce was never consumed. Attempts
	// past the consume point own their channel and close it themselves.
	if f.state == StateAuthorizationRequested || f.state == StateAwaitingCallback {
		close(f.done)
	}
	f.state = StateAuthorizationRequested
	f.nonce = nonce
	f.err = nil
	f.done = make(chan struct{})
	f.mu.Unlock()

	if err := f.store.SavePendingState(nonce); err != nil {
		return "", fmt.Errorf("persisting pending auth state: %w", err)
	}

	u, err := f.authorizeURL(nonce)
	if err != nil {
		return "", err
	}

	if err := f.openURL(u); err != nil {
		if errors.Is(err, webbrowser.ErrNoBrowser) {
			f.logger.Info("no browser found, open the authorization URL manually", "url", u.String())
		} else {
			f.logger.Warn("opening browser", "error", err)
		}
	}

	f.mu.Lock()
	if f.nonce == nonce {
		f.state = StateAwaitingCallback
	}
	f.mu.Unlock()
	f.logger.Info("authorization requested", "url", u.String())
	return u.String(), nil
}

func (f *Flow) authorizeURL(nonce string) (*url.URL, error) {
	u, err := url.Parse(f.cfg.AuthorizeURL)
	if err != nil {
		return nil, fmt.Errorf("parsing authorize URL: %w", err)
	}
	q := u.Query()
	q.Set("client_id", f.cfg.ClientID)
	q.Set("redirect_uri", f.cfg.RedirectURI)
	q.Set("response_type", "token")
	if f.cfg.Scope != "" {
		q.Set("scope", f.cfg.Scope)
	}
	q.Set("state", nonce)
	u.RawQuery = q.Encode()
	return u, nil
}

// HandleCallback processes a completion POST relayed by the callback
// server. Callbacks from any origin other than the trusted one, or arriving
// while no attempt is pending, are ignored. A matching callback consumes
// the nonce whatever the outcome: on state mismatch the attempt fails with
// a CSRF error and the bearer token is discarded; on match the bearer is
// persisted and the account and storage keys are resolved through the API.
// The return value reports whether the callback was accepted.
func (f *Flow) HandleCallback(ctx context.Context, origin, token, state string) bool {
	if origin != f.cfg.TrustedOrigin {
		f.logger.Debug("callback from untrusted origin ignored", "origin", origin)
		return false
	}

	f.mu.Lock()
	if f.state != StateAwaitingCallback || f.nonce == "" {
		f.mu.Unlock()
		f.logger.Debug("callback with no pending attempt ignored")
		return false
	}
	nonce := f.nonce
	f.nonce = ""
	f.state = StateVerified
	done := f.done
	f.mu.Unlock()

	if err := f.store.SavePendingState(""); err != nil {
		f.logger.Warn("clearing pending auth state", "error", err)
	}

	if state != nonce {
		f.fail(done, &vbt.CsrfMismatchError{})
		return true
	}

	if err := f.store.SaveBearerToken(token); err != nil {
		f.fail(done, fmt.Errorf("persisting bearer token: %w", err))
		return true
	}

	if err := f.resolve(ctx, token); err != nil {
		f.fail(done, err)
		return true
	}
	f.finish(done)
	return true
}

// resolve walks the post-verification steps: select an account for the
// bearer, then issue scoped storage keys for it.
func (f *Flow) resolve(ctx context.Context, bearer string) error {
	accounts, err := f.api.Accounts(ctx, bearer)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return &vbt.NoAccountError{}
	}
	// Deterministic: always the first account the API reports.
	account := accounts[0]
	if err := f.store.SaveAccountID(account.ID); err != nil {
		return fmt.Errorf("persisting account id: %w", err)
	}
	f.transition(StateAccountResolved)
	f.logger.Info("account resolved", "account", account.ID, "name", account.Name)

	tok, err := f.api.IssueStorageToken(ctx, bearer, account.ID)
	if err != nil {
		return err
	}
	// The S3 secret for an API token is the hex SHA-256 of the token value.
	secret := sha256.Sum256([]byte(tok.Value))
	if err := f.store.SaveKeys(tok.ID, hex.EncodeToString(secret[:])); err != nil {
		return fmt.Errorf("persisting access keys: %w", err)
	}
	return nil
}

func (f *Flow) transition(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.logger.Debug("auth flow state changed", "state", s)
}

func (f *Flow) fail(done chan struct{}, err error) {
	f.mu.Lock()
	if f.done == done {
		f.state = StateFailed
		f.err = err
	}
	f.mu.Unlock()
	close(done)
	f.logger.Error("auth flow failed", "error", err)
}

func (f *Flow) finish(done chan struct{}) {
	f.mu.Lock()
	if f.done == done {
		f.state = StateKeysIssued
	}
	f.mu.Unlock()
	close(done)
	f.logger.Info("storage keys issued")
}

func newNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

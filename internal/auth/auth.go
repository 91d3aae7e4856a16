package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// authorizationTimeout bounds how long the interactive flow waits for the
// browser redirect.
const authorizationTimeout = 5 * time.Minute

// Credential is the access grant for one sync run. Calendar clients either
// present Token as a bearer token or, for CalDAV servers using app-specific
// passwords, Username and Password as basic auth.
type Credential struct {
	Token    *oauth2.Token
	Username string
	Password string
}

// Apply sets the Authorization header for the credential on req.
func (c *Credential) Apply(req *http.Request) {
	switch {
	case c == nil:
	case c.Username != "":
		req.SetBasicAuth(c.Username, c.Password)
	case c.Token != nil:
		c.Token.SetAuthHeader(req)
	}
}

// HTTPClient returns a client presenting the credential's bearer token on
// every request. The token is never refreshed.
func (c *Credential) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(c.Token))
}

// AuthError reports that no credential could be acquired, including the
// user declining the authorization prompt.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// GoogleProvider acquires Google Calendar bearer credentials. A stored
// refresh token is used when present; otherwise the user is walked through
// the OAuth consent flow in their browser.
type GoogleProvider struct {
	config      *oauth2.Config
	tokenStore  TokenStore
	interactive bool
}

// NewGoogleProvider creates a GoogleProvider. With interactive disabled a
// missing token is an error instead of a browser prompt.
func NewGoogleProvider(oauthConfig *oauth2.Config, tokenStore TokenStore, interactive bool) *GoogleProvider {
	return &GoogleProvider{
		config:      oauthConfig,
		tokenStore:  tokenStore,
		interactive: interactive,
	}
}

// Acquire returns a fresh credential for one sync run. It is called once per
// run and the result is not cached here.
func (p *GoogleProvider) Acquire(ctx context.Context) (*Credential, error) {
	// Attempt to load an existing token
	token, err := p.tokenStore.LoadToken()
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("failed to load token: %w", err)}
	}

	// If token is nil (first run), perform interactive OAuth flow
	if token == nil {
		if !p.interactive {
			return nil, &AuthError{Err: errors.New("no stored token and interactive authorization is disabled")}
		}
		token, err = p.authorize(ctx)
		if err != nil {
			return nil, &AuthError{Err: err}
		}
		if err := p.tokenStore.SaveToken(token); err != nil {
			return nil, &AuthError{Err: fmt.Errorf("failed to save token: %w", err)}
		}
	}

	// Returns the stored access token while it is valid, refreshes it otherwise.
	fresh, err := p.config.TokenSource(ctx, token).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if !errors.As(err, &retrieveErr) || retrieveErr.ErrorCode != "invalid_grant" {
			return nil, &AuthError{Err: fmt.Errorf("failed to obtain access token: %w", err)}
		}

		// Refresh token expired or revoked: forget it so the next attempt prompts.
		log.Printf("Warning: stored token was rejected (%s), discarding it", retrieveErr.ErrorDescription)
		if delErr := p.tokenStore.DeleteToken(); delErr != nil {
			log.Printf("Warning: %v", delErr)
		}
		if !p.interactive {
			return nil, &AuthError{Err: fmt.Errorf("stored token was rejected and interactive authorization is disabled: %w", err)}
		}
		if fresh, err = p.authorize(ctx); err != nil {
			return nil, &AuthError{Err: err}
		}
		if err := p.tokenStore.SaveToken(fresh); err != nil {
			return nil, &AuthError{Err: fmt.Errorf("failed to save token: %w", err)}
		}
		return &Credential{Token: fresh}, nil
	}

	if fresh.AccessToken != token.AccessToken {
		if err := p.tokenStore.SaveToken(fresh); err != nil {
			log.Printf("Warning: failed to save refreshed token: %v", err)
		}
	}

	return &Credential{Token: fresh}, nil
}

// authorize runs the authorization-code flow with a local redirect listener.
func (p *GoogleProvider) authorize(ctx context.Context) (*oauth2.Token, error) {
	state := uuid.NewString()

	redirectURL, codeChan, errorChan, shutdown, err := startLocalServer(state)
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}
	defer shutdown()

	// Work on a copy so the shared config keeps its configured redirect.
	cfg := *p.config
	cfg.RedirectURL = redirectURL

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Printf("Starting local server on %s\n", redirectURL)
	if redirectURL != "http://127.0.0.1:8080" {
		fmt.Printf("Note: Port 8080 was unavailable. Make sure to add %s to your authorized redirect URIs in Google Cloud Console.\n", redirectURL)
	}
	fmt.Println("\nPlease visit the following URL to authorize the application:")
	fmt.Println(authURL)
	fmt.Println("\nWaiting for authorization...")

	var code string
	select {
	case code = <-codeChan:
	case err := <-errorChan:
		return nil, fmt.Errorf("failed to receive authorization code: %w", err)
	case <-time.After(authorizationTimeout):
		return nil, fmt.Errorf("authorization timeout: no response received within %s", authorizationTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	fmt.Println("Authorization successful!")
	return token, nil
}

// startLocalServer starts a local HTTP server to receive the OAuth callback.
// Returns the redirect URL, a channel for the authorization code, a channel
// for errors and a function stopping the server.
// Uses port 8080 by default, or a random port if 8080 is unavailable.
func startLocalServer(state string) (string, <-chan string, <-chan error, func(), error) {
	listener, err := net.Listen("tcp", "127.0.0.1:8080")
	if err != nil {
		// Fall back to random port if 8080 is in use
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", nil, nil, nil, fmt.Errorf("failed to start local server: %w", err)
		}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("error") != "":
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>Error: %s</p></body></html>", query.Get("error"))
			sendErr(errorChan, fmt.Errorf("authorization error: %s", query.Get("error")))
		case query.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			sendErr(errorChan, errors.New("authorization state mismatch"))
		case query.Get("code") == "":
			fmt.Fprintf(w, "<html><body><h1>No authorization code received</h1></body></html>")
			sendErr(errorChan, errors.New("no authorization code received"))
		default:
			fmt.Fprintf(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
			select {
			case codeChan <- query.Get("code"):
			default:
			}
		}
	})

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			sendErr(errorChan, fmt.Errorf("server error: %w", err))
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}

	return redirectURL, codeChan, errorChan, shutdown, nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// StaticProvider hands out the same fixed credential on every run. It backs
// destinations that authenticate with an app-specific password, or none.
type StaticProvider struct {
	credential Credential
}

// NewBasicProvider returns a provider for username/password credentials.
func NewBasicProvider(username, password string) *StaticProvider {
	return &StaticProvider{credential: Credential{Username: username, Password: password}}
}

// NewAnonymousProvider returns a provider for destinations that need no
// credential, such as a local file.
func NewAnonymousProvider() *StaticProvider {
	return &StaticProvider{}
}

// Acquire implements the sync credential provider contract.
func (p *StaticProvider) Acquire(ctx context.Context) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, &AuthError{Err: err}
	}
	if p.credential.Username != "" && p.credential.Password == "" {
		return nil, &AuthError{Err: fmt.Errorf("no password configured for %s", p.credential.Username)}
	}
	cred := p.credential
	return &cred, nil
}

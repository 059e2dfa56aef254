package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/bz888/champs/internal/logger"
)

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

const callbackPage = `<!doctype html><html><body style="font-family:sans-serif">
<p>%s</p><p>You can close this window and return to the terminal.</p></body></html>`

// GoogleProvider signs in with Google using the OAuth 2.0 authorization code
// flow with PKCE. The consent page opens in the system browser and redirects
// back to a one-shot listener on the loopback interface.
type GoogleProvider struct {
	config     oauth2.Config
	revokeURL  string
	openURL    func(string) error
	httpClient *http.Client
	log        *logger.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

func NewGoogleProvider(clientID, clientSecret string) *GoogleProvider {
	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		revokeURL:  googleRevokeURL,
		openURL:    openBrowser,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logger.NewLogger("Auth"),
	}
}

func (p *GoogleProvider) Name() string {
	return "google"
}

type callbackResult struct {
	code string
	err  error
}

// SignIn blocks until the browser flow finishes or ctx ends.
func (p *GoogleProvider) SignIn(ctx context.Context) (*User, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}

	cfg := p.config
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr())

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		result := readCallback(r.URL.Query(), state)
		select {
		case results <- result:
		default:
		}
		if result.err != nil {
			fmt.Fprintf(w, callbackPage, "Sign-in failed.")
			return
		}
		fmt.Fprintf(w, callbackPage, "Signed in.")
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	if err := p.openURL(authURL); err != nil {
		p.log.Warn("Could not open a browser, visit this URL to sign in: ", authURL)
	}

	var result callbackResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result = <-results:
	}
	if result.err != nil {
		return nil, result.err
	}

	token, err := cfg.Exchange(ctx, result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, errors.New("token response carries no id_token")
	}
	user, err := userFromIDToken(idToken)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()

	p.log.Infow("Signed in", "user", user.ID)
	return user, nil
}

func readCallback(query url.Values, state string) callbackResult {
	if query.Get("state") != state {
		return callbackResult{err: ErrStateMismatch}
	}
	if reason := query.Get("error"); reason != "" {
		return callbackResult{err: fmt.Errorf("%w: %s", ErrSignInDenied, reason)}
	}
	code := query.Get("code")
	if code == "" {
		return callbackResult{err: errors.New("callback carries no authorization code")}
	}
	return callbackResult{code: code}
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// userFromIDToken reads the profile claims. The token came straight from the
// token endpoint over TLS, so its signature is not checked again.
func userFromIDToken(raw string) (*User, error) {
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("parse id_token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("id_token has no subject")
	}
	return &User{
		ID:      claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Picture: claims.Picture,
	}, nil
}

// SignOut forgets the token and asks Google to revoke it. A failed revoke is
// logged, not returned: the local session ends either way.
func (p *GoogleProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.token = nil
	p.mu.Unlock()

	if token == nil {
		return nil
	}

	form := url.Values{"token": {token.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		p.log.Warn("Build revoke request: ", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Warn("Revoke token: ", err)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.log.Warn("Revoke token: ", resp.Status)
	}
	return nil
}

func openBrowser(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}

var _ Provider = (*GoogleProvider)(nil)

package login

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/meshstack/coregate/internal/auth"
	"github.com/meshstack/coregate/internal/pipeline"
	"github.com/meshstack/coregate/internal/telemetry"
)

const stateCookieName = "oauth_state"

// UserInfo is the identity returned by the OAuth provider.
type UserInfo struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Config holds the OAuth provider settings.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	// AuthURL, TokenURL and UserInfoURL override the GitHub defaults,
	// for other providers and for tests.
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	Scopes []string
}

// Handler drives the OAuth login flow: redirect out, exchange the code,
// fetch the identity, run the auth pipeline and mint credentials.
type Handler struct {
	config      *oauth2.Config
	userInfoURL string
	backend     pipeline.Backend
	runner      *pipeline.Runner
	jwts        *auth.JWTIssuer
	sessions    *auth.SessionManager
	clientIP    func(ctx context.Context) string
}

// NewHandler creates a login handler. clientIP extracts the caller
// address from the request context for session audit fields; it may be
// nil.
func NewHandler(cfg Config, backend pipeline.Backend, runner *pipeline.Runner,
	jwts *auth.JWTIssuer, sessions *auth.SessionManager, clientIP func(ctx context.Context) string) (*Handler, error) {

	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.CallbackURL == "" {
		return nil, fmt.Errorf("client ID, client secret, and callback URL are required")
	}

	endpoint := github.Endpoint
	if cfg.AuthURL != "" && cfg.TokenURL != "" {
		endpoint = oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	}

	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = "https://api.github.com/user"
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email"}
	}

	if clientIP == nil {
		clientIP = func(ctx context.Context) string { return "" }
	}

	return &Handler{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		backend:     backend,
		runner:      runner,
		jwts:        jwts,
		sessions:    sessions,
		clientIP:    clientIP,
	}, nil
}

func (h *Handler) saveState(w http.ResponseWriter) string {
	state := rand.Text()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	return state
}

// LoginHandler redirects the caller to the OAuth provider.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("Initiating OAuth flow")

	state := h.saveState(w)

	http.Redirect(w, r, h.config.AuthCodeURL(state), http.StatusFound)
}

// tokenResponse is the JSON body of a successful login.
type tokenResponse struct {
	AccessToken    string `json:"access_token"`
	AccessTokenJWT string `json:"access_token_jwt"`
	ExpiresIn      int    `json:"expires_in"`
}

// CallbackHandler completes the OAuth flow. On pipeline approval it
// creates a session and an access JWT; on denial it renders an
// explanatory page with a 403.
func (h *Handler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	telemetry.GetMetrics().LoginAttemptsTotal.Add(ctx, 1)

	state := r.FormValue("state")
	code := r.FormValue("code")

	if state == "" || code == "" {
		log.Warn().Msg("OAuth callback missing state or code")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || state != cookie.Value {
		log.Warn().Msg("OAuth callback state mismatch")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	token, err := h.config.Exchange(ctx, code)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to exchange OAuth code for token")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	userInfo, err := h.getUserInfo(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch user info from provider")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	if userInfo.Email == "" {
		log.Warn().Msg("Provider user info missing email address")
		http.Error(w, "Email address required", http.StatusBadRequest)
		return
	}

	firstName, lastName := splitName(userInfo)

	state2 := &pipeline.State{
		Backend: h.backend,
		Details: pipeline.Details{
			Email:     userInfo.Email,
			FirstName: firstName,
			LastName:  lastName,
		},
	}

	result, err := h.runner.Run(ctx, state2)
	if err != nil {
		log.Error().Err(err).Str("email", userInfo.Email).Msg("Login pipeline failed")
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	switch result.Kind {
	case pipeline.KindDeny:
		telemetry.GetMetrics().LoginDeniedTotal.Add(ctx, 1)
		log.Info().Str("email", userInfo.Email).Msg("Login denied by pipeline")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintf(w, "<html><body><h1>Access denied</h1><p>%s</p></body></html>", result.Message)
		return

	case pipeline.KindRedirect:
		http.Redirect(w, r, result.Location, http.StatusFound)
		return
	}

	session, err := h.sessions.Create(ctx, state2.CoreUser, r.UserAgent(), h.clientIP(ctx))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	accessJWT, err := h.jwts.Issue(state2.CoreUser)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue access token")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("email", userInfo.Email).
		Bool("is_new_core_user", state2.IsNewCoreUser).
		Msg("User authenticated successfully")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{
		AccessToken:    session.Token,
		AccessTokenJWT: accessJWT,
		ExpiresIn:      int(h.jwts.TTL().Seconds()),
	})
}

func (h *Handler) getUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := h.config.Client(ctx, token)
	resp, err := client.Get(h.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned HTTP %d", resp.StatusCode)
	}

	var userInfo UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &userInfo, nil
}

func splitName(info *UserInfo) (string, string) {
	if info.GivenName != "" || info.FamilyName != "" {
		return info.GivenName, info.FamilyName
	}

	first, last, ok := strings.Cut(info.Name, " ")
	if !ok {
		return info.Name, ""
	}
	return first, last
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"

	"github.com/meshstack/coregate/internal/auth"
	"github.com/meshstack/coregate/internal/datamesh"
	"github.com/meshstack/coregate/internal/gateway"
	httpmiddleware "github.com/meshstack/coregate/internal/http"
	"github.com/meshstack/coregate/internal/invite"
	"github.com/meshstack/coregate/internal/logger"
	"github.com/meshstack/coregate/internal/login"
	"github.com/meshstack/coregate/internal/password"
	"github.com/meshstack/coregate/internal/pipeline"
	"github.com/meshstack/coregate/internal/registry"
	"github.com/meshstack/coregate/internal/server"
	"github.com/meshstack/coregate/internal/store"
	memorystore "github.com/meshstack/coregate/internal/store/memory"
	postgresstore "github.com/meshstack/coregate/internal/store/postgres"
	"github.com/meshstack/coregate/internal/telemetry"
	"github.com/meshstack/coregate/internal/token"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"COREGATE_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"COREGATE_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"COREGATE_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"COREGATE_CORS_ORIGINS"`

	// Signing configuration
	SecretKey string `help:"secret key for signing access, invitation and reset tokens" env:"COREGATE_SECRET_KEY"`

	// OAuth configuration
	ClientID     string        `help:"OAuth client ID" default:"" env:"COREGATE_OAUTH_CLIENT_ID"`
	ClientSecret string        `help:"OAuth client secret" default:"" env:"COREGATE_OAUTH_CLIENT_SECRET"`
	CallbackURL  string        `help:"OAuth callback URL" default:"" env:"COREGATE_OAUTH_CALLBACK_URL"`
	SessionTTL   time.Duration `help:"session TTL" default:"24h" env:"COREGATE_SESSION_TTL"`

	// Authentication pipeline configuration
	DefaultOrgName     string   `help:"organization all approved logins without an org land in" default:"" env:"COREGATE_DEFAULT_ORG"`
	WhitelistedEmails  []string `help:"email addresses always allowed to log in" env:"COREGATE_WHITELISTED_EMAILS"`
	WhitelistedDomains []string `help:"email domains always allowed to log in" env:"COREGATE_WHITELISTED_DOMAINS"`

	// Frontend links in invitation and reset mail
	FrontendURL string `help:"base URL of the registration frontend" default:"http://localhost:3000" env:"COREGATE_FRONTEND_URL"`

	// Mail configuration. Without an SMTP host outbound mail is logged.
	SMTPHost     string `help:"SMTP relay host" default:"" env:"COREGATE_SMTP_HOST"`
	SMTPPort     int    `help:"SMTP relay port" default:"587" env:"COREGATE_SMTP_PORT"`
	SMTPUsername string `help:"SMTP username" default:"" env:"COREGATE_SMTP_USERNAME"`
	SMTPPassword string `help:"SMTP password" default:"" env:"COREGATE_SMTP_PASSWORD"`
	SMTPFrom     string `help:"From address for outbound mail" default:"" env:"COREGATE_SMTP_FROM"`

	// Gateway configuration
	GatewayMaxTries        uint          `help:"connection attempts per proxied request" default:"3" env:"COREGATE_GATEWAY_MAX_TRIES"`
	GatewayUpstreamTimeout time.Duration `help:"timeout per upstream attempt" default:"30s" env:"COREGATE_GATEWAY_UPSTREAM_TIMEOUT"`
	RegistrySeed           string        `help:"path to a YAML logic module seed file" default:"" env:"COREGATE_REGISTRY_SEED"`

	// Operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"COREGATE_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"COREGATE_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"COREGATE_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.SecretKey == "" {
		return errors.New("secret key is required (--secret-key or COREGATE_SECRET_KEY)")
	}
	if len(c.SecretKey) < 32 {
		return errors.New("secret key must be at least 32 bytes for HMAC-SHA256")
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "coregate-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Create stores based on store type
	var (
		userStore    store.CoreUserStore
		orgStore     store.OrganizationStore
		groupStore   store.CoreGroupStore
		moduleStore  store.LogicModuleStore
		sessionStore store.SessionStore
	)

	switch c.StoreType {
	case "postgres":
		poolCfg := &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: time.Duration(c.PostgresStore.MaxConnLifetime) * time.Second,
			MaxConnIdleTime: time.Duration(c.PostgresStore.MaxConnIdleTime) * time.Second,
			AutoMigrate:     c.PostgresStore.AutoMigrate,
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create store pool: %w", err)
		}
		defer pool.Close()

		userStore = postgresstore.NewCoreUserStore(pool)
		orgStore = postgresstore.NewOrganizationStore(pool)
		groupStore = postgresstore.NewCoreGroupStore(pool)
		moduleStore = postgresstore.NewLogicModuleStore(pool)
		sessionStore = postgresstore.NewSessionStore(pool)
		log.Info().Msg("Using PostgreSQL stores")

	default:
		groups := memorystore.NewCoreGroupStore()
		userStore = memorystore.NewCoreUserStore(groups)
		orgStore = memorystore.NewOrganizationStore()
		groupStore = groups
		moduleStore = memorystore.NewLogicModuleStore()
		sessionStore = memorystore.NewSessionStore()
		log.Info().Msg("Using in-memory stores")
	}

	// Logic module registry, optionally seeded from YAML
	reg := registry.New(moduleStore)
	if c.RegistrySeed != "" {
		seed, err := registry.LoadSeed(c.RegistrySeed)
		if err != nil {
			return fmt.Errorf("failed to load registry seed: %w", err)
		}
		if err := reg.Seed(ctx, seed); err != nil {
			return fmt.Errorf("failed to apply registry seed: %w", err)
		}
		log.Info().Str("path", c.RegistrySeed).Msg("Registry seeded")
	}

	// Token issuers and services
	tokens := token.NewIssuer(c.SecretKey)
	jwts := auth.NewJWTIssuer(c.SecretKey, auth.DefaultAccessTokenTTL)
	sessions := auth.NewSessionManager(sessionStore, c.SessionTTL)

	var mailer invite.Mailer
	if c.SMTPHost != "" {
		mailer = invite.NewSMTPMailer(invite.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.SMTPFrom,
		})
		log.Info().Str("host", c.SMTPHost).Msg("Using SMTP mailer")
	} else {
		mailer = invite.NewLogMailer()
		log.Info().Msg("No SMTP host configured, outbound mail is logged only")
	}

	inviter := invite.NewInviter(userStore, tokens, mailer, c.FrontendURL, "")
	resetter := password.NewResetter(userStore, tokens, mailer, c.FrontendURL, "")

	mux := http.NewServeMux()

	// REST API
	requireAuth := auth.DualAuthMiddleware(jwts, sessions)
	requireOrgAdmin := auth.RequireOrgAdmin(userStore)

	apiServer := server.NewServer(userStore, orgStore, groupStore, moduleStore, reg, inviter, resetter, tokens)
	apiServer.Routes(mux, requireAuth, requireOrgAdmin)

	// OAuth login flow (public)
	if c.ClientID != "" {
		runner := pipeline.NewRunner(
			pipeline.AuthAllowed(orgStore),
			pipeline.EnsureCoreUser(userStore),
			pipeline.CreateOrganization(orgStore, userStore),
			pipeline.AssignOrgAdminGroup(groupStore, userStore),
		)

		backend := pipeline.Backend{
			WhitelistedEmails:  c.WhitelistedEmails,
			WhitelistedDomains: c.WhitelistedDomains,
			DefaultOrgName:     c.DefaultOrgName,
		}

		oauth, err := login.NewHandler(login.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			CallbackURL:  c.CallbackURL,
		}, backend, runner, jwts, sessions, httpmiddleware.ClientIPFromContext)
		if err != nil {
			return fmt.Errorf("failed to initialize OAuth login: %w", err)
		}

		clientIPMiddleware := httpmiddleware.ClientIPMiddleware()
		mux.Handle("/oauth/login", clientIPMiddleware(http.HandlerFunc(oauth.LoginHandler)))
		mux.Handle("/oauth/callback", clientIPMiddleware(http.HandlerFunc(oauth.CallbackHandler)))
		log.Info().Msg("OAuth login enabled")
	} else {
		log.Warn().Msg("OAuth login disabled, no client ID configured")
	}

	// Gateway proxy with data mesh join resolution, behind auth and
	// response compression
	joins := datamesh.NewResolver(moduleStore, reg)
	proxy := gateway.NewProxy(reg,
		gateway.WithJoinResolver(joins),
		gateway.WithMaxTries(c.GatewayMaxTries),
		gateway.WithUpstreamTimeout(c.GatewayUpstreamTimeout))

	mux.Handle("/api/{service}/{path...}", requireAuth(gzhttp.GzipHandler(proxy)))

	// CSRF protection for HTML pages (not applied to API routes)
	protection := csrf.New()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API routes get CORS, HTML routes get CSRF
		if isAPIRoute(r.URL.Path) {
			withCORS(c.CORSOrigins, mux).ServeHTTP(w, r)
		} else {
			protection.Handler(mux).ServeHTTP(w, r)
		}
	})

	logged := logger.Requests(log)(handler)

	if c.Cert != "" || c.Key != "" {
		if _, err := os.Stat(c.Cert); err != nil {
			return fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, err)
		}
		if _, err := os.Stat(c.Key); err != nil {
			return fmt.Errorf("TLS key not found at %s: %w", c.Key, err)
		}
		log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
		return configureHTTPServer(c.Listen, logged).ListenAndServeTLS(c.Cert, c.Key)
	}

	log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
	return configureHTTPServer(c.Listen, logged).ListenAndServe()
}

// isAPIRoute returns true if the path is an API route that needs CORS
// instead of CSRF.
func isAPIRoute(path string) bool {
	return !strings.HasPrefix(path, "/oauth/")
}

// withCORS adds CORS support to the API handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}

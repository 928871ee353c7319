package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/registry"
	"github.com/meshstack/coregate/internal/store"
	"github.com/meshstack/coregate/internal/telemetry"
)

// Sentinel errors for gateway routing failures.
var (
	ErrUnknownModule       = errors.New("unknown logic module")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

const (
	// DefaultMaxTries bounds connection retries per proxied request.
	DefaultMaxTries = 3

	// DefaultUpstreamTimeout bounds a single upstream attempt.
	DefaultUpstreamTimeout = 30 * time.Second
)

// JoinResolver annotates an upstream JSON response with related
// resources fetched from other logic modules.
type JoinResolver interface {
	Annotate(ctx context.Context, endpointName string, body []byte, joinKeys []string) ([]byte, error)
}

// Proxy routes /{service}/{path...} requests to the logic module
// registered under the service endpoint name and relays the upstream
// status and body unchanged.
type Proxy struct {
	registry        *registry.Registry
	client          *http.Client
	joins           JoinResolver
	maxTries        uint
	upstreamTimeout time.Duration
}

// Option configures the proxy.
type Option func(*Proxy)

// WithClient overrides the upstream HTTP client.
func WithClient(client *http.Client) Option {
	return func(p *Proxy) { p.client = client }
}

// WithJoinResolver enables ?join= annotation of GET responses.
func WithJoinResolver(joins JoinResolver) Option {
	return func(p *Proxy) { p.joins = joins }
}

// WithMaxTries bounds connection retries per request.
func WithMaxTries(n uint) Option {
	return func(p *Proxy) { p.maxTries = n }
}

// WithUpstreamTimeout bounds each upstream attempt.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.upstreamTimeout = d }
}

// NewProxy creates a gateway proxy over the given registry.
func NewProxy(reg *registry.Registry, opts ...Option) *Proxy {
	p := &Proxy{
		registry:        reg,
		client:          &http.Client{},
		maxTries:        DefaultMaxTries,
		upstreamTimeout: DefaultUpstreamTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ServeHTTP expects to be mounted on a "/{service}/{path...}" route
// pattern.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	service := r.PathValue("service")
	path := r.PathValue("path")

	metrics := telemetry.GetMetrics()
	metrics.GatewayRequestsTotal.Add(ctx, 1)

	module, err := p.registry.Resolve(ctx, service)
	if err != nil {
		metrics.GatewayErrorsTotal.Add(ctx, 1)

		if errors.Is(err, store.ErrLogicModuleNotFound) {
			log.Warn().
				Str("service", service).
				Msg("Request for unregistered logic module")
			respondError(w, http.StatusBadGateway, ErrUnknownModule.Error())
			return
		}

		log.Error().Err(err).Str("service", service).Msg("Failed to resolve logic module")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Buffer the body so retries can replay it.
	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
	}

	upstreamURL := strings.TrimRight(module.Endpoint, "/") + "/" + strings.TrimLeft(path, "/")
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	started := time.Now()
	resp, err := p.forward(ctx, r, upstreamURL, body)
	metrics.GatewayRequestDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	if err != nil {
		metrics.GatewayErrorsTotal.Add(ctx, 1)

		log.Error().
			Err(err).
			Str("service", service).
			Str("module_id", module.ModuleID.String()).
			Str("upstream_url", upstreamURL).
			Msg("Upstream request failed")
		respondError(w, http.StatusGatewayTimeout, ErrUpstreamUnavailable.Error())
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GatewayErrorsTotal.Add(ctx, 1)
		respondError(w, http.StatusBadGateway, "failed to read upstream response")
		return
	}

	if joinKeys := parseJoinKeys(r.URL.Query()["join"]); len(joinKeys) > 0 && p.joins != nil &&
		r.Method == http.MethodGet && resp.StatusCode == http.StatusOK {
		annotated, err := p.joins.Annotate(ctx, service, respBody, joinKeys)
		if err != nil {
			log.Warn().
				Err(err).
				Str("service", service).
				Msg("Failed to annotate response with joins")
		} else {
			respBody = annotated
		}
	}

	copyHeaders(w.Header(), resp.Header)
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

// parseJoinKeys flattens join query values. Both repeated join
// parameters and comma separated lists are accepted.
func parseJoinKeys(values []string) []string {
	var keys []string
	for _, value := range values {
		for _, key := range strings.Split(value, ",") {
			key = strings.TrimSpace(key)
			if key != "" {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// forward executes the upstream request, retrying connection errors
// with exponential backoff. HTTP error statuses are relayed, never
// retried.
func (p *Proxy) forward(ctx context.Context, r *http.Request, upstreamURL string, body []byte) (*http.Response, error) {
	attempt := 0

	operation := func() (*http.Response, error) {
		attempt++
		if attempt > 1 {
			telemetry.GetMetrics().GatewayRetriesTotal.Add(ctx, 1)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.upstreamTimeout)

		req, err := http.NewRequestWithContext(attemptCtx, r.Method, upstreamURL, bytes.NewReader(body))
		if err != nil {
			cancel()
			return nil, backoff.Permanent(err)
		}

		copyHeaders(req.Header, r.Header)

		resp, err := p.client.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("upstream connection failed: %w", err)
		}

		// Tie the response body lifetime to the attempt context.
		resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}

		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(p.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	return resp, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// hop-by-hop headers are never forwarded in either direction.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if _, skip := hopHeaders[http.CanonicalHeaderKey(key)]; skip {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"detail":%q}`, detail)
}

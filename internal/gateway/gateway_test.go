package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/registry"
	"github.com/meshstack/coregate/internal/store/memory"
)

func newGatewayServer(t *testing.T, upstreamURL string, opts ...Option) (*httptest.Server, *registry.Registry) {
	t.Helper()

	reg := registry.New(memory.NewLogicModuleStore())

	if upstreamURL != "" {
		require.NoError(t, reg.Register(context.Background(), &models.LogicModule{
			Name:         "documents",
			EndpointName: "documents",
			Endpoint:     upstreamURL,
		}))
	}

	proxy := NewProxy(reg, opts...)

	mux := http.NewServeMux()
	mux.Handle("/{service}/{path...}", proxy)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, reg
}

func TestProxyRelaysUpstreamResponse(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotMethod, gotBody string

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method

		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	defer upstream.Close()

	server, _ := newGatewayServer(t, upstream.URL)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/documents/documents/?format=json", strings.NewReader(`{"title":"hello"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer token-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.JSONEq(t, `{"id":"42"}`, string(body))
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	require.Equal(t, "/documents/", gotPath)
	require.Equal(t, "format=json", gotQuery)
	require.Equal(t, "Bearer token-123", gotAuth)
	require.Equal(t, http.MethodPost, gotMethod)
	require.JSONEq(t, `{"title":"hello"}`, gotBody)
}

func TestProxyUnknownModule(t *testing.T) {
	server, _ := newGatewayServer(t, "")

	resp, err := http.Get(server.URL + "/nope/things/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Contains(t, string(body), "unknown logic module")
}

func TestProxyUpstreamUnavailable(t *testing.T) {
	// Grab a port that nothing listens on.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	server, _ := newGatewayServer(t, deadURL, WithMaxTries(1), WithUpstreamTimeout(time.Second))

	resp, err := http.Get(server.URL + "/documents/documents/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	require.Contains(t, string(body), "upstream unavailable")
}

func TestProxyDoesNotRetryErrorStatuses(t *testing.T) {
	var calls atomic.Int32

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"upstream blew up"}`))
	}))
	defer upstream.Close()

	server, _ := newGatewayServer(t, upstream.URL, WithMaxTries(3))

	resp, err := http.Get(server.URL + "/documents/documents/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// error status relayed unchanged, exactly one upstream call
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, string(body), "upstream blew up")
	require.Equal(t, int32(1), calls.Load())
}

type staticJoins struct {
	annotated []byte
	gotKeys   []string
}

func (s *staticJoins) Annotate(ctx context.Context, endpointName string, body []byte, joinKeys []string) ([]byte, error) {
	s.gotKeys = joinKeys
	return s.annotated, nil
}

func TestProxyJoinAnnotation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","contact_id":"7"}`))
	}))
	defer upstream.Close()

	joins := &staticJoins{annotated: []byte(`{"id":"42","contact_id":"7","contact":{"name":"Jane"}}`)}
	server, _ := newGatewayServer(t, upstream.URL, WithJoinResolver(joins))

	resp, err := http.Get(server.URL + "/documents/documents/42/?join=contact")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, []string{"contact"}, joins.gotKeys)
	require.JSONEq(t, `{"id":"42","contact_id":"7","contact":{"name":"Jane"}}`, string(body))
}

func TestProxyJoinCommaSeparatedKeys(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	defer upstream.Close()

	joins := &staticJoins{annotated: []byte(`{"id":"42"}`)}
	server, _ := newGatewayServer(t, upstream.URL, WithJoinResolver(joins))

	// ?join=contact,owner resolves two keys, not one key named "contact,owner"
	resp, err := http.Get(server.URL + "/documents/documents/42/?join=contact,owner")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, []string{"contact", "owner"}, joins.gotKeys)
}

func TestParseJoinKeys(t *testing.T) {
	require.Nil(t, parseJoinKeys(nil))
	require.Equal(t, []string{"contact"}, parseJoinKeys([]string{"contact"}))
	require.Equal(t, []string{"contact", "owner"}, parseJoinKeys([]string{"contact,owner"}))
	require.Equal(t, []string{"contact", "owner", "invoice"}, parseJoinKeys([]string{"contact, owner", "invoice"}))
	require.Nil(t, parseJoinKeys([]string{","}))
}

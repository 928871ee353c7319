package datamesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/registry"
	"github.com/meshstack/coregate/internal/store"
	"github.com/meshstack/coregate/internal/telemetry"
)

// ErrUnknownRelationship is returned when a requested join key has no
// relationship edge from any model of the origin module.
var ErrUnknownRelationship = errors.New("unknown relationship key")

// DefaultFetchTimeout bounds each related record fetch.
const DefaultFetchTimeout = 10 * time.Second

// Resolver embeds related resources from other logic modules into a
// response, following the registered relationship graph. Each join key
// resolves independently: one failing fetch never blocks the others,
// the failing key is annotated with an error marker instead.
type Resolver struct {
	modules      store.LogicModuleStore
	registry     *registry.Registry
	client       *http.Client
	fetchTimeout time.Duration
}

// Option configures the resolver.
type Option func(*Resolver)

// WithClient overrides the HTTP client used to fetch related records.
func WithClient(client *http.Client) Option {
	return func(r *Resolver) { r.client = client }
}

// WithFetchTimeout bounds each related record fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.fetchTimeout = d }
}

// NewResolver creates a relationship resolver. Related record fetches
// go through an in-memory HTTP cache so repeated joins against the
// same record stay cheap.
func NewResolver(modules store.LogicModuleStore, reg *registry.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		modules:      modules,
		registry:     reg,
		client:       httpcache.NewMemoryCacheTransport().Client(),
		fetchTimeout: DefaultFetchTimeout,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// edge is a resolved relationship ready to fetch.
type edge struct {
	key          string
	relatedModel *models.LogicModuleModel
	relatedURL   string
}

// Annotate resolves the requested join keys for the record (or list of
// records) in body and returns the body with one extra field per key.
// Keys that fail to resolve carry {"error": ...} markers.
func (r *Resolver) Annotate(ctx context.Context, endpointName string, body []byte, joinKeys []string) ([]byte, error) {
	var record map[string]any
	if err := json.Unmarshal(body, &record); err == nil {
		annotated, err := r.annotateRecord(ctx, endpointName, record, joinKeys)
		if err != nil {
			return nil, err
		}
		return json.Marshal(annotated)
	}

	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		group, groupCtx := errgroup.WithContext(ctx)
		annotated := make([]map[string]any, len(list))

		for i, item := range list {
			group.Go(func() error {
				result, err := r.annotateRecord(groupCtx, endpointName, item, joinKeys)
				if err != nil {
					return err
				}
				annotated[i] = result
				return nil
			})
		}

		if err := group.Wait(); err != nil {
			return nil, err
		}

		return json.Marshal(annotated)
	}

	return nil, errors.New("response body is not a JSON object or array")
}

func (r *Resolver) annotateRecord(ctx context.Context, endpointName string, record map[string]any, joinKeys []string) (map[string]any, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	results := make([]any, len(joinKeys))
	metrics := telemetry.GetMetrics()

	for i, key := range joinKeys {
		group.Go(func() error {
			started := time.Now()
			related, err := r.resolveJoin(groupCtx, endpointName, record, key)
			metrics.JoinFetchDuration.Record(groupCtx, float64(time.Since(started).Milliseconds()))

			if err != nil {
				metrics.JoinErrorsTotal.Add(groupCtx, 1)
				log.Warn().
					Err(err).
					Str("endpoint_name", endpointName).
					Str("key", key).
					Msg("Failed to resolve relationship")
				results[i] = map[string]any{"error": err.Error()}
				return nil
			}

			metrics.JoinsResolvedTotal.Add(groupCtx, 1)
			results[i] = related
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	annotated := make(map[string]any, len(record)+len(joinKeys))
	for k, v := range record {
		annotated[k] = v
	}
	for i, key := range joinKeys {
		annotated[key] = results[i]
	}

	return annotated, nil
}

// resolveJoin finds the relationship edge for the key, determines the
// related model's owning module and fetches the single related record.
func (r *Resolver) resolveJoin(ctx context.Context, endpointName string, record map[string]any, key string) (any, error) {
	e, err := r.findEdge(ctx, endpointName, key)
	if err != nil {
		return nil, err
	}

	lookupValue, err := lookupValueFromRecord(record, key, e.relatedModel.LookupFieldName)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	url := e.relatedURL + lookupValue + "/"

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build related record request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch related record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("related record fetch returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read related record: %w", err)
	}

	var related any
	if err := json.Unmarshal(respBody, &related); err != nil {
		return nil, fmt.Errorf("related record is not valid JSON: %w", err)
	}

	return related, nil
}

// findEdge locates the relationship for the join key among the models
// of the origin module and resolves the related side to a base URL.
func (r *Resolver) findEdge(ctx context.Context, endpointName, key string) (*edge, error) {
	originModels, err := r.modules.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	for _, model := range originModels {
		if model.LogicModuleEndpointName != endpointName {
			continue
		}

		rels, err := r.modules.ListRelationshipsByOrigin(ctx, model.ModelID)
		if err != nil {
			return nil, fmt.Errorf("failed to list relationships: %w", err)
		}

		for _, rel := range rels {
			if rel.Key != key {
				continue
			}
			return r.buildEdge(ctx, rel)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownRelationship, key)
}

func (r *Resolver) buildEdge(ctx context.Context, rel *models.Relationship) (*edge, error) {
	relatedModel, err := r.modules.GetModel(ctx, rel.RelatedModelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get related model: %w", err)
	}

	relatedModule, err := r.registry.Resolve(ctx, relatedModel.LogicModuleEndpointName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve related module: %w", err)
	}

	base := strings.TrimRight(relatedModule.Endpoint, "/") + "/" + strings.Trim(relatedModel.Endpoint, "/") + "/"

	return &edge{
		key:          rel.Key,
		relatedModel: relatedModel,
		relatedURL:   base,
	}, nil
}

// lookupValueFromRecord extracts the foreign reference value for a join
// key from the origin record, trying "<key>_<lookup>", "<key>_id" and
// "<key>" in that order.
func lookupValueFromRecord(record map[string]any, key, lookupFieldName string) (string, error) {
	candidates := []string{key + "_" + lookupFieldName, key + "_id", key}

	for _, field := range candidates {
		value, ok := record[field]
		if !ok {
			continue
		}

		switch v := value.(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			return strings.TrimSuffix(fmt.Sprintf("%v", v), ".0"), nil
		case uuid.UUID:
			return v.String(), nil
		}
	}

	return "", fmt.Errorf("record has no reference field for key %q", key)
}

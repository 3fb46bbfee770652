package indexing

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	apperrors "searchsync/internal/errors"
	"searchsync/internal/schema"

	"golang.org/x/time/rate"
)

const DefaultSwiftypeEndpoint = "https://api.swiftype.com/api/v1/"

var _ Indexer = (*SwiftypeClient)(nil)

type SwiftypeConfig struct {
	Endpoint string
	// InsecureSkipVerify disables certificate verification. Off unless a
	// deployment explicitly opts in.
	InsecureSkipVerify bool
	// RequestsPerSecond throttles outbound calls. Zero means unlimited.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// SwiftypeClient talks to the Swiftype v1 JSON API. The auth token is read
// from Credentials on every request so a rotated key applies immediately.
type SwiftypeClient struct {
	http     *http.Client
	endpoint *url.URL
	creds    Credentials
	limiter  *rate.Limiter
	logger   *slog.Logger
}

type SwiftypeOption func(*SwiftypeClient)

// WithHTTPClient replaces the transport, e.g. with a test server's client.
func WithHTTPClient(c *http.Client) SwiftypeOption {
	return func(s *SwiftypeClient) { s.http = c }
}

func NewSwiftypeClient(cfg SwiftypeConfig, creds Credentials, logger *slog.Logger, opts ...SwiftypeOption) (*SwiftypeClient, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultSwiftypeEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid swiftype endpoint %q: %w", cfg.Endpoint, err)
	}
	if endpoint.Scheme != "https" {
		return nil, fmt.Errorf("swiftype endpoint %q must use https", cfg.Endpoint)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify} //nolint:gosec // opt-in per deployment

	s := &SwiftypeClient{
		http:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		endpoint: endpoint,
		creds:    creds,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SwiftypeClient) Engines(ctx context.Context) ([]Engine, error) {
	var engines []Engine
	if err := s.do(ctx, http.MethodGet, s.path("engines.json"), nil, &engines, http.StatusOK); err != nil {
		return nil, err
	}
	return engines, nil
}

func (s *SwiftypeClient) CreateEngine(ctx context.Context, name string) (Engine, error) {
	body := map[string]any{"engine": map[string]string{"name": name}}

	var engine Engine
	if err := s.do(ctx, http.MethodPost, s.path("engines.json"), body, &engine, http.StatusOK, http.StatusCreated); err != nil {
		return Engine{}, err
	}
	return engine, nil
}

func (s *SwiftypeClient) DocumentTypes(ctx context.Context, engineID string) ([]DocumentType, error) {
	var types []DocumentType
	if err := s.do(ctx, http.MethodGet, s.path("engines", engineID, "document_types.json"), nil, &types, http.StatusOK); err != nil {
		return nil, err
	}
	return types, nil
}

func (s *SwiftypeClient) CreateDocumentType(ctx context.Context, engineID, name string) (DocumentType, error) {
	body := map[string]any{"document_type": map[string]string{"name": name}}

	var docType DocumentType
	err := s.do(ctx, http.MethodPost, s.path("engines", engineID, "document_types.json"), body, &docType, http.StatusOK, http.StatusCreated)
	if err != nil {
		return DocumentType{}, err
	}
	return docType, nil
}

func (s *SwiftypeClient) DeleteDocumentType(ctx context.Context, engineID, typeID string) error {
	return s.do(ctx, http.MethodDelete, s.path("engines", engineID, "document_types", typeID+".json"), nil, nil, http.StatusOK, http.StatusNoContent)
}

func (s *SwiftypeClient) Upsert(ctx context.Context, engineID, typeID string, doc schema.Document) error {
	path := s.path("engines", engineID, "document_types", typeID, "documents", "create_or_update.json")
	return s.do(ctx, http.MethodPost, path, map[string]any{"document": doc}, nil, http.StatusOK, http.StatusCreated)
}

func (s *SwiftypeClient) BulkUpsert(ctx context.Context, engineID, typeID string, docs []schema.Document) error {
	path := s.path("engines", engineID, "document_types", typeID, "documents", "bulk_create_or_update_verbose")

	var results []json.RawMessage
	if err := s.do(ctx, http.MethodPost, path, map[string]any{"documents": docs}, &results, http.StatusOK); err != nil {
		return err
	}

	// The verbose endpoint answers with one entry per document: true, or the reason it was rejected.
	for i, r := range results {
		if string(r) != "true" && i < len(docs) {
			s.logger.WarnContext(ctx, "Document rejected by bulk update",
				"engine_id", engineID, "document_type_id", typeID, "external_id", docs[i].ExternalID, "reason", string(r))
		}
	}
	return nil
}

func (s *SwiftypeClient) Delete(ctx context.Context, engineID, typeID, externalID string) error {
	path := s.path("engines", engineID, "document_types", typeID, "documents", externalID+".json")
	err := s.do(ctx, http.MethodDelete, path, nil, nil, http.StatusOK, http.StatusNoContent)

	var statusErr *StatusError
	if asStatusError(err, &statusErr) && statusErr.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}

func (s *SwiftypeClient) HealthCheck(ctx context.Context) error {
	if _, err := s.Engines(ctx); err != nil {
		return fmt.Errorf("swiftype health check failed: %w", err)
	}
	return nil
}

func (s *SwiftypeClient) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func (s *SwiftypeClient) path(elem ...string) string {
	return s.endpoint.JoinPath(elem...).String()
}

// do sends body (plus the auth token) as JSON and decodes the response into
// out when the status is one of accept.
func (s *SwiftypeClient) do(ctx context.Context, method, target string, body map[string]any, out any, accept ...int) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return apperrors.New(apperrors.ErrTransport, method+" "+target, err)
	}

	token, err := s.creds.APIKey(ctx)
	if err != nil {
		return apperrors.New(apperrors.ErrConfiguration, "read API key", err)
	}

	payload := map[string]any{"auth_token": token}
	for k, v := range body {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// Only document values can fail to encode; resending the same batch cannot help.
		return apperrors.New(apperrors.ErrSchema, "encode "+method+" "+target, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, target, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return apperrors.New(apperrors.ErrTransport, method+" "+target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.New(apperrors.ErrTransport, method+" "+target, err)
	}

	s.logger.DebugContext(ctx, "Swiftype call", "method", method, "url", target, "status", resp.StatusCode)

	if !slices.Contains(accept, resp.StatusCode) {
		return apperrors.New(apperrors.ErrTransport, method+" "+target, &StatusError{
			Method: method,
			Path:   req.URL.Path,
			Status: resp.StatusCode,
			Body:   string(raw),
		})
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.New(apperrors.ErrTransport, "decode "+method+" "+target, err)
	}
	return nil
}

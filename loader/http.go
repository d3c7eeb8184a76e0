package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofhir/fhir/r4"
	"golang.org/x/time/rate"

	fo "github.com/gofhir/fhirobject"
	"github.com/gofhir/fhirobject/pkg/logger"
	"github.com/gofhir/fhirobject/schema"
)

const (
	// DefaultTimeout for schema requests.
	DefaultTimeout = 30 * time.Second

	fhirJSON = "application/fhir+json"

	// maxResponseSize bounds a search response; core definitions stay well under it.
	maxResponseSize = 32 << 20
)

// HTTPSource fetches schemas from a FHIR server by searching its
// StructureDefinition endpoint for the type's canonical URL.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	converter  *R4Converter
	limiter    *rate.Limiter
	log        *logger.Logger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.httpClient = client
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.httpClient.Timeout = timeout
	}
}

// WithRateLimit caps requests to rps per second with the given burst. A
// non-positive rps leaves requests unthrottled.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(s *HTTPSource) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) HTTPOption {
	return func(s *HTTPSource) {
		s.log = l.Named("http")
	}
}

// NewHTTPSource creates a source for the FHIR server at baseURL
// (e.g. "https://hapi.fhir.org/baseR4").
func NewHTTPSource(baseURL string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		converter:  NewR4Converter(),
		log:        logger.Default().Named("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseURL returns the server base URL.
func (s *HTTPSource) BaseURL() string {
	return s.baseURL
}

// FetchSchema implements schema.Fetcher. A failed call or a non-2xx response
// yields a *fo.TransportError; a search that does not match exactly one
// definition yields a *fo.SchemaNotFoundError.
func (s *HTTPSource) FetchSchema(ctx context.Context, typeName string) (*schema.Schema, error) {
	endpoint := fmt.Sprintf("%s/StructureDefinition?url=%s", s.baseURL, url.QueryEscape(CanonicalBase+typeName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, &fo.TransportError{TypeName: typeName, Err: err}
	}
	req.Header.Set("Accept", fhirJSON)

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &fo.TransportError{TypeName: typeName, Err: err}
		}
	}

	s.log.Debug("GET %s", endpoint)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &fo.TransportError{TypeName: typeName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &fo.TransportError{TypeName: typeName, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &fo.TransportError{TypeName: typeName, StatusCode: resp.StatusCode, Err: err}
	}

	var bundle struct {
		ResourceType string `json:"resourceType"`
		Entry        []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, &fo.TransportError{TypeName: typeName, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid search response: %w", err)}
	}

	switch n := len(bundle.Entry); n {
	case 1:
	case 0:
		return nil, &fo.SchemaNotFoundError{TypeName: typeName, Reason: "expected one bundle entry but found none"}
	default:
		return nil, &fo.SchemaNotFoundError{TypeName: typeName, Reason: fmt.Sprintf("expected one bundle entry but found %d", n)}
	}

	var sd r4.StructureDefinition
	if err := json.Unmarshal(bundle.Entry[0].Resource, &sd); err != nil {
		return nil, &fo.TransportError{TypeName: typeName, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid StructureDefinition: %w", err)}
	}
	return s.converter.Convert(&sd), nil
}

var _ schema.Fetcher = (*HTTPSource)(nil)

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/btp-research/internal/metrics"
	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/internal/resilience"
)

const (
	serviceName = "catalog"

	defaultBaseURL       = "https://raw.githubusercontent.com/SAP-samples/btp-service-metadata/main/v0"
	defaultInventoryPath = "inventory.json"
	defaultTimeout       = 30 * time.Second
	defaultCacheTTL      = time.Hour
	defaultRateLimit     = 10

	inventoryKey     = "inventory"
	maxDetailEntries = 512
	maxBodyBytes     = 32 << 20
)

// ErrNotFound is returned when the source has no document for a file name.
var ErrNotFound = errors.New("catalog: not found")

// ErrInvalidFileName is returned for file names that could escape the
// detail directory.
var ErrInvalidFileName = errors.New("catalog: invalid file name")

// Client reads the public BTP service catalog.
type Client interface {
	ListServices(ctx context.Context) ([]model.ServiceSummary, error)
	GetServiceDetail(ctx context.Context, fileName string) (*model.ServiceDetail, error)
}

// Option configures the HTTP client.
type Option func(*HTTPClient)

// WithBaseURL overrides the metadata root URL.
func WithBaseURL(u string) Option {
	return func(c *HTTPClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithInventoryPath overrides the inventory document path.
func WithInventoryPath(p string) Option {
	return func(c *HTTPClient) {
		c.inventoryPath = strings.TrimLeft(p, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *HTTPClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithCacheTTL sets how long fetched documents stay fresh.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *HTTPClient) {
		c.ttl = ttl
	}
}

// WithRetry overrides the transport retry policy.
func WithRetry(p resilience.Policy) Option {
	return func(c *HTTPClient) {
		c.retry = p
	}
}

// WithMetrics records cache hits and misses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *HTTPClient) {
		c.metrics = m
	}
}

// HTTPClient fetches the inventory and detail documents over HTTP and keeps
// them in memory for the configured TTL.
type HTTPClient struct {
	baseURL       string
	inventoryPath string
	http          *http.Client
	limiter       *rate.Limiter
	retry         resilience.Policy
	ttl           time.Duration
	metrics       *metrics.Metrics

	inventory *Cache[[]model.ServiceSummary]
	details   *Cache[*model.ServiceDetail]
}

// NewHTTPClient creates a catalog client.
func NewHTTPClient(opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:       defaultBaseURL,
		inventoryPath: defaultInventoryPath,
		http:          &http.Client{Timeout: defaultTimeout},
		limiter:       rate.NewLimiter(rate.Limit(defaultRateLimit), 1),
		retry:         resilience.DefaultPolicy(),
		ttl:           defaultCacheTTL,
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.LogRetries(serviceName, "fetch")
	}
	c.inventory = NewCache[[]model.ServiceSummary](1, c.ttl)
	c.details = NewCache[*model.ServiceDetail](maxDetailEntries, c.ttl)
	return c
}

// ListServices returns the full inventory.
func (c *HTTPClient) ListServices(ctx context.Context) ([]model.ServiceSummary, error) {
	if services, ok := c.inventory.Get(inventoryKey); ok {
		c.metrics.CatalogCache("inventory", true)
		return services, nil
	}
	c.metrics.CatalogCache("inventory", false)

	var services []model.ServiceSummary
	if err := c.getJSON(ctx, c.inventoryPath, &services); err != nil {
		return nil, err
	}
	if services == nil {
		services = []model.ServiceSummary{}
	}

	c.inventory.Put(inventoryKey, services)
	zap.L().Debug("catalog: inventory fetched", zap.Int("services", len(services)))
	return services, nil
}

// GetServiceDetail returns the detail document for fileName.
func (c *HTTPClient) GetServiceDetail(ctx context.Context, fileName string) (*model.ServiceDetail, error) {
	if err := ValidateFileName(fileName); err != nil {
		return nil, err
	}

	if detail, ok := c.details.Get(fileName); ok {
		c.metrics.CatalogCache("detail", true)
		return detail, nil
	}
	c.metrics.CatalogCache("detail", false)

	var detail model.ServiceDetail
	if err := c.getJSON(ctx, detailPath(fileName), &detail); err != nil {
		return nil, err
	}

	c.details.Put(fileName, &detail)
	return &detail, nil
}

// DetailURL returns the absolute URL of fileName's detail document, or ""
// for an invalid name.
func (c *HTTPClient) DetailURL(fileName string) string {
	if ValidateFileName(fileName) != nil {
		return ""
	}
	return strings.TrimRight(c.baseURL, "/") + "/" + detailPath(fileName)
}

func detailPath(fileName string) string {
	return "developer/" + url.PathEscape(fileName) + ".json"
}

// Invalidate drops every cached document.
func (c *HTTPClient) Invalidate() {
	c.inventory.Clear()
	c.details.Clear()
}

// CacheStats reports the detail cache statistics merged with the inventory's.
func (c *HTTPClient) CacheStats() CacheStats {
	inv := c.inventory.Stats()
	det := c.details.Stats()
	s := CacheStats{
		Entries: inv.Entries + det.Entries,
		Hits:    inv.Hits + det.Hits,
		Misses:  inv.Misses + det.Misses,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// ValidateFileName rejects empty names and names that contain path
// separators or parent references.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" ||
		strings.ContainsAny(name, `/\`) ||
		strings.Contains(name, "..") {
		return eris.Wrapf(ErrInvalidFileName, "catalog: file name %q", name)
	}
	return nil
}

type statusError struct {
	path string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog: GET %s: status %d", e.path, e.code)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	body, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, path)
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return eris.Wrapf(ErrNotFound, "catalog: %s", path)
		}
		status := 0
		if se != nil {
			status = se.code
		}
		return &resilience.UpstreamError{
			Service:    serviceName,
			Kind:       resilience.KindUnavailable,
			StatusCode: status,
			Message:    "service catalog unavailable",
			Err:        err,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resilience.NewUnavailableError(serviceName, eris.Wrapf(err, "catalog: decode %s", path))
	}
	return nil
}

func (c *HTTPClient) fetch(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "catalog: rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: GET %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		se := &statusError{path: path, code: resp.StatusCode}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.TransientResponse(se, resp)
		}
		return nil, se
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return body, nil
}

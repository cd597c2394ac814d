package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	log "github.com/sirupsen/logrus"

	"portalkeys-go/internal/models"
	"portalkeys-go/internal/resterr"
	"portalkeys-go/internal/transport"
)

const (
	defaultPageSize    = 100
	defaultEnrichBatch = 6
)

// Options tunes the portal client.
type Options struct {
	// PageSize is the num parameter sent to paged endpoints.
	PageSize int
	// EnrichBatch bounds concurrent detail fetches during list enrichment.
	EnrichBatch int
}

// Client orchestrates the portal REST surface: listing credentials,
// assembling one credential's detail from partial sources, probing
// capabilities and mutating keys. Every error returned by an exported
// method is a *resterr.RestError.
//
// A Client holds no long-lived state except the last-fetch warning buffer,
// which is overwritten at the start of every FetchCredentials call and must
// not be read concurrently with an in-flight fetch on the same instance.
type Client struct {
	t           transport.Requester
	pageSize    int
	enrichBatch int
	log         *log.Entry

	mu    sync.Mutex
	shape *shapeValidator
}

// NewClient builds a Client on top of the given transport.
func NewClient(t transport.Requester, opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.EnrichBatch <= 0 {
		opts.EnrichBatch = defaultEnrichBatch
	}
	return &Client{
		t:           t,
		pageSize:    opts.PageSize,
		enrichBatch: opts.EnrichBatch,
		log:         log.WithField("component", "portal"),
		shape:       newShapeValidator(),
	}
}

// Warnings returns the shape-validation warnings accumulated by the most
// recent FetchCredentials call. They are advisory metadata, not errors.
func (c *Client) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shape.Warnings()
}

func (c *Client) resetWarnings() {
	c.mu.Lock()
	c.shape = newShapeValidator()
	c.mu.Unlock()
}

func (c *Client) currentShape() *shapeValidator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shape
}

// FetchCredentials lists every credential visible in the environment. For
// cloud deployments it prefers search-based listing (which also yields
// legacy records) and falls back to the direct listing endpoint when that
// path fails for any reason; organizations occasionally have search
// disabled or misconfigured.
func (c *Client) FetchCredentials(ctx context.Context, env models.Environment, token string) ([]models.Credential, error) {
	c.resetWarnings()

	var creds []models.Credential
	var err error
	if env.IsCloud() {
		creds, err = c.fetchViaSearch(ctx, env, token)
		if err != nil {
			c.log.WithError(err).Info("search listing failed, falling back to direct listing")
			creds, err = c.fetchDirect(ctx, env, token)
		} else {
			creds = c.EnrichList(ctx, env, token, creds)
		}
	} else {
		creds, err = c.fetchDirect(ctx, env, token)
	}
	if err != nil {
		return nil, resterr.Map(err)
	}
	return dedupByID(creds), nil
}

func (c *Client) fetchDirect(ctx context.Context, env models.Environment, token string) ([]models.Credential, error) {
	return c.fetchAllPages(ctx, env, token, pageRequest{
		Path:        "/portals/self/apiKeys",
		EndpointKey: endpointAPIKeys,
	})
}

// fetchViaSearch lists credentials through two filtered search queries
// scoped to the signed-in username: one for modern key-bearing items and
// one for legacy API-key items. The queries run concurrently.
func (c *Client) fetchViaSearch(ctx context.Context, env models.Environment, token string) ([]models.Credential, error) {
	username, err := c.currentUsername(ctx, env, token)
	if err != nil {
		return nil, err
	}

	queries := []string{
		fmt.Sprintf(`owner:%q AND typekeywords:"APIToken"`, username),
		fmt.Sprintf(`owner:%q AND type:"API Key"`, username),
	}

	results := make([][]models.Credential, len(queries))
	errs := make([]error, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			results[i], errs[i] = c.fetchAllPages(ctx, env, token, pageRequest{
				Path:        "/search",
				Query:       url.Values{"q": {q}},
				EndpointKey: endpointSearch,
			})
		}(i, q)
	}
	wg.Wait()

	var merged []models.Credential
	for i := range queries {
		if errs[i] != nil {
			return nil, errs[i]
		}
		merged = append(merged, results[i]...)
	}
	return merged, nil
}

func (c *Client) currentUsername(ctx context.Context, env models.Environment, token string) (string, error) {
	body, err := c.t.Do(ctx, transport.Request{
		Path:   "/community/self",
		Method: http.MethodGet,
		Env:    env,
		Token:  token,
	})
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	username := body.Get("username").String()
	if username == "" {
		return "", fmt.Errorf("resolve current user: response carries no username")
	}
	return username, nil
}

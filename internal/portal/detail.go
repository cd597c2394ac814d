package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/tidwall/gjson"

	"portalkeys-go/internal/models"
	"portalkeys-go/internal/resterr"
	"portalkeys-go/internal/transport"
)

// FetchDetail assembles the authoritative detail for one credential. For
// cloud deployments up to three partial sources are merged for the same id:
// the item metadata, the registered app info resolved through the item's
// owner, and a best-effort legacy detail payload. Enterprise deployments
// read the single direct endpoint instead.
func (c *Client) FetchDetail(ctx context.Context, env models.Environment, token string, id string) (models.Credential, error) {
	// Standalone detail calls validate against a throwaway validator so
	// Warnings keeps reflecting only the most recent FetchCredentials.
	return c.fetchDetail(ctx, env, token, id, newShapeValidator())
}

func (c *Client) fetchDetail(ctx context.Context, env models.Environment, token string, id string, shape *shapeValidator) (models.Credential, error) {
	if env.IsCloud() {
		cred, err := c.fetchCloudDetail(ctx, env, token, id, shape)
		if err != nil {
			return models.Credential{}, resterr.Map(err)
		}
		return cred, nil
	}

	body, err := c.t.Do(ctx, transport.Request{
		Path:   "/portals/self/apiKeys/" + id,
		Method: http.MethodGet,
		Env:    env,
		Token:  token,
	})
	if err != nil {
		return models.Credential{}, resterr.Map(err)
	}
	cred, ok := Normalize(body)
	if !ok {
		return models.Credential{}, resterr.New(resterr.CodeUnknown, fmt.Sprintf("credential %s detail could not be interpreted", id), false).WithStatus(500)
	}
	return cred, nil
}

func (c *Client) fetchCloudDetail(ctx context.Context, env models.Environment, token string, id string, shape *shapeValidator) (models.Credential, error) {
	item, err := c.t.Do(ctx, transport.Request{
		Path:   "/content/items/" + id,
		Method: http.MethodGet,
		Env:    env,
		Token:  token,
	})
	if err != nil {
		return models.Credential{}, fmt.Errorf("item metadata for %s: %w", id, err)
	}
	shape.Observe(endpointItem, item)

	merged := asObject(item)

	if owner := item.Get("owner").String(); owner != "" {
		appInfo, err := c.t.Do(ctx, transport.Request{
			Path:   "/content/users/" + owner + "/items/" + id + "/registeredAppInfo",
			Method: http.MethodGet,
			Env:    env,
			Token:  token,
		})
		if err != nil {
			return models.Credential{}, fmt.Errorf("registered app info for %s: %w", id, err)
		}
		shape.Observe(endpointRegisteredApp, appInfo)
		mergeFields(merged, asObject(appInfo))
	}

	// Legacy detail is best-effort; older orgs do not expose it.
	if legacyBody, err := c.t.Do(ctx, transport.Request{
		Path:   "/portals/self/apiKeys/" + id,
		Method: http.MethodGet,
		Env:    env,
		Token:  token,
	}); err == nil {
		mergeFields(merged, asObject(legacyBody))
	} else {
		c.log.WithError(err).WithField("id", id).Debug("legacy detail unavailable")
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return models.Credential{}, fmt.Errorf("merge detail for %s: %w", id, err)
	}
	cred, ok := Normalize(gjson.ParseBytes(encoded))
	if !ok {
		return models.Credential{}, fmt.Errorf("credential %s detail carries no usable identity", id)
	}
	return cred, nil
}

// EnrichList attaches detail the listing endpoint omits. Work proceeds in
// fixed-size batches of concurrent detail fetches; a batch only starts
// after the previous one fully resolves, as backpressure against backend
// rate limits. A failed fetch falls back to the listed record for that id,
// never failing the whole batch.
func (c *Client) EnrichList(ctx context.Context, env models.Environment, token string, creds []models.Credential) []models.Credential {
	out := make([]models.Credential, len(creds))
	copy(out, creds)

	shape := c.currentShape()
	for lo := 0; lo < len(out); lo += c.enrichBatch {
		hi := lo + c.enrichBatch
		if hi > len(out) {
			hi = len(out)
		}
		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				detailed, err := c.fetchDetail(ctx, env, token, out[i].ID, shape)
				if err != nil {
					c.log.WithError(err).WithField("id", out[i].ID).Debug("detail enrichment failed, keeping listed record")
					return
				}
				out[i] = detailed
			}(i)
		}
		wg.Wait()
	}
	return out
}

func asObject(r gjson.Result) map[string]any {
	if m, ok := r.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// mergeFields overlays src onto dst field-by-field. When both sides hold
// string arrays the values are unioned instead of replaced, so privilege or
// referrer lists discovered from different endpoints stay additive.
func mergeFields(dst, src map[string]any) {
	for key, incoming := range src {
		existing, present := dst[key]
		if !present {
			dst[key] = incoming
			continue
		}
		if a, aok := stringSlice(existing); aok {
			if b, bok := stringSlice(incoming); bok {
				dst[key] = unionStrings(a, b)
				continue
			}
		}
		dst[key] = incoming
	}
}

func stringSlice(v any) ([]string, bool) {
	switch arr := v.(type) {
	case []string:
		return arr, true
	case []any:
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(a, b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

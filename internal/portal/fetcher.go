package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"portalkeys-go/internal/models"
	"portalkeys-go/internal/transport"
)

// recordFields is the ordered list of array-valued fields a listing
// response may carry its records under; the first present field wins.
var recordFields = []string{"credentials", "apiKeys", "apiKeyCredentials", "apiTokens", "results", "data", "items"}

// pageRequest is the template a paged listing repeats with shifting
// start/num parameters.
type pageRequest struct {
	Path        string
	Query       url.Values
	EndpointKey string
}

// fetchAllPages drives one paged listing endpoint to exhaustion. Pagination
// starts at cursor 1 and continues while the response reports a positive
// numeric nextStart. There is no built-in page-count cap; callers facing an
// untrusted backend should bound the context instead.
func (c *Client) fetchAllPages(ctx context.Context, env models.Environment, token string, tmpl pageRequest) ([]models.Credential, error) {
	var out []models.Credential
	start := 1
	for {
		query := url.Values{}
		for k, vs := range tmpl.Query {
			query[k] = vs
		}
		query.Set("start", strconv.Itoa(start))
		query.Set("num", strconv.Itoa(c.pageSize))

		body, err := c.t.Do(ctx, transport.Request{
			Path:   tmpl.Path,
			Method: http.MethodGet,
			Env:    env,
			Token:  token,
			Query:  query,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", tmpl.Path, err)
		}
		c.currentShape().Observe(tmpl.EndpointKey, body)

		for _, record := range extractRecords(body) {
			cred, ok := Normalize(record)
			if !ok {
				// Normalization failures drop the one record, never
				// the whole fetch.
				c.log.WithField("path", tmpl.Path).Debug("skipping unrecognizable record")
				continue
			}
			out = append(out, cred)
		}

		next := body.Get("nextStart")
		if next.Type != gjson.Number || next.Int() <= 0 {
			return out, nil
		}
		start = int(next.Int())
	}
}

func extractRecords(body gjson.Result) []gjson.Result {
	for _, field := range recordFields {
		if arr := body.Get(field); arr.IsArray() {
			return arr.Array()
		}
	}
	return nil
}

// dedupByID keeps exactly one credential per id. Later occurrences win
// because enrichment passes re-insert richer entries for the same id, but
// first-seen ordering is preserved.
func dedupByID(creds []models.Credential) []models.Credential {
	latest := make(map[string]models.Credential, len(creds))
	order := make([]string, 0, len(creds))
	for _, cred := range creds {
		if _, ok := latest[cred.ID]; !ok {
			order = append(order, cred.ID)
		}
		latest[cred.ID] = cred
	}
	out := make([]models.Credential, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}

package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/sjson"

	"portalkeys-go/internal/models"
	"portalkeys-go/internal/resterr"
	"portalkeys-go/internal/transport"
)

// KeyAction is one of the supported key mutations.
type KeyAction string

const (
	ActionCreate     KeyAction = "create"
	ActionRegenerate KeyAction = "regenerate"
)

func (a KeyAction) valid() bool {
	return a == ActionCreate || a == ActionRegenerate
}

// mutationRequest carries everything a strategy needs for one mutation.
type mutationRequest struct {
	Env          models.Environment
	Token        string
	CredentialID string
	Slot         int
	Action       KeyAction
	Expiration   *time.Time
}

// mutationStrategy is one way of performing a key mutation. Cloud
// deployments try the richer identity-exchange path first and abandon it
// silently on any failure; the direct REST endpoint is the fallback
// everywhere.
type mutationStrategy interface {
	Name() string
	Mutate(ctx context.Context, t transport.Requester, req mutationRequest) (string, error)
}

// MutateKey creates or regenerates one key slot. Expiration day counts are
// converted to an absolute end-of-day timestamp before being sent. A
// successful mutation must yield a non-empty key; anything else is a server
// contract violation.
func (c *Client) MutateKey(ctx context.Context, env models.Environment, token string, id string, slot int, action KeyAction, expirationDays int) (models.MutationResult, error) {
	if slot != 1 && slot != 2 {
		return models.MutationResult{}, resterr.New(resterr.CodeInvalidRequest, fmt.Sprintf("slot must be 1 or 2, got %d", slot), false)
	}
	if !action.valid() {
		return models.MutationResult{}, resterr.New(resterr.CodeInvalidRequest, fmt.Sprintf("unsupported key action %q", action), false)
	}
	if !env.IsCloud() {
		caps := c.DetectCapabilities(ctx, env, token)
		allowed := caps.CreateKey
		if action == ActionRegenerate {
			allowed = caps.RegenerateKey
		}
		if !allowed {
			return models.MutationResult{}, resterr.New(resterr.CodeUnsupportedFeature, caps.Reason, false)
		}
	}

	req := mutationRequest{
		Env:          env,
		Token:        token,
		CredentialID: id,
		Slot:         slot,
		Action:       action,
	}
	if expirationDays > 0 {
		exp := endOfDay(timeNow().UTC().AddDate(0, 0, expirationDays))
		req.Expiration = &exp
	}

	var key string
	var err error
	for _, strategy := range c.mutationStrategies(env) {
		key, err = strategy.Mutate(ctx, c.t, req)
		if err == nil {
			break
		}
		c.log.WithError(err).WithField("strategy", strategy.Name()).Debug("mutation strategy failed")
	}
	if err != nil {
		return models.MutationResult{}, resterr.Map(err)
	}
	if key == "" {
		return models.MutationResult{}, resterr.New(resterr.CodeUnknown, "mutation reported success but returned no key", false).WithStatus(500)
	}
	return models.MutationResult{ID: id, Slot: slot, Action: string(action), Key: key}, nil
}

func (c *Client) mutationStrategies(env models.Environment) []mutationStrategy {
	if env.IsCloud() {
		return []mutationStrategy{&exchangeMutation{}, &directMutation{}}
	}
	return []mutationStrategy{&directMutation{}}
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

// directMutation issues the plain REST mutation endpoint.
type directMutation struct{}

func (directMutation) Name() string { return "direct" }

func (directMutation) Mutate(ctx context.Context, t transport.Requester, req mutationRequest) (string, error) {
	body := url.Values{}
	if req.Expiration != nil {
		body.Set("expirationDate", strconv.FormatInt(req.Expiration.UnixMilli(), 10))
	}
	res, err := t.Do(ctx, transport.Request{
		Path:   fmt.Sprintf("/portals/self/apiKeys/%s/keys/%d/%s", req.CredentialID, req.Slot, req.Action),
		Method: http.MethodPost,
		Env:    req.Env,
		Token:  req.Token,
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	return firstString(res, "key", "apiKey", "accessToken"), nil
}

// exchangeMutation is the richer cloud path: it exchanges the portal token
// for an application token scoped to the credential's client id, then
// mutates through the developer endpoint with a structured properties
// payload.
type exchangeMutation struct{}

func (exchangeMutation) Name() string { return "exchange" }

func (exchangeMutation) Mutate(ctx context.Context, t transport.Requester, req mutationRequest) (string, error) {
	if req.Env.ClientID == "" {
		return "", fmt.Errorf("environment has no client id for token exchange")
	}

	exchanged, err := t.Do(ctx, transport.Request{
		Path:   "/oauth2/token",
		Method: http.MethodPost,
		Env:    req.Env,
		Token:  req.Token,
		Body: url.Values{
			"client_id":  {req.Env.ClientID},
			"grant_type": {"exchange_refresh_token"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("identity exchange: %w", err)
	}
	appToken := exchanged.Get("access_token").String()
	if appToken == "" {
		return "", fmt.Errorf("identity exchange yielded no access token")
	}

	properties := ""
	properties, _ = sjson.Set(properties, "slot", req.Slot)
	properties, _ = sjson.Set(properties, "action", string(req.Action))
	if req.Expiration != nil {
		properties, _ = sjson.Set(properties, "expirationDate", req.Expiration.UnixMilli())
	}

	res, err := t.Do(ctx, transport.Request{
		Path:   fmt.Sprintf("/apiKeys/%s/keys/%d/%s", req.CredentialID, req.Slot, req.Action),
		Method: http.MethodPost,
		Env:    req.Env,
		Token:  appToken,
		Body:   url.Values{"properties": {properties}},
	})
	if err != nil {
		return "", err
	}
	return firstString(res, "key", "apiKey", "accessToken"), nil
}

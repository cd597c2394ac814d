// Package bridge hosts the privileged side of the host/UI boundary. It
// owns the portal session, serves the WebSocket endpoint the UI connects
// to, and translates protocol messages into portal client calls.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"portalkeys-go/internal/config"
	"portalkeys-go/internal/envstore"
	"portalkeys-go/internal/models"
	"portalkeys-go/internal/portal"
	"portalkeys-go/internal/resterr"
	"portalkeys-go/internal/tokenstore"
)

// PortalAPI is the portal client surface the bridge consumes.
type PortalAPI interface {
	FetchCredentials(ctx context.Context, env models.Environment, token string) ([]models.Credential, error)
	FetchDetail(ctx context.Context, env models.Environment, token string, id string) (models.Credential, error)
	MutateKey(ctx context.Context, env models.Environment, token string, id string, slot int, action portal.KeyAction, expirationDays int) (models.MutationResult, error)
	DetectCapabilities(ctx context.Context, env models.Environment, token string) models.Capabilities
	Warnings() []string
}

// Authenticator establishes a portal session for an environment.
type Authenticator interface {
	SignIn(ctx context.Context, env models.Environment) (*oauth2.Token, error)
}

// Services bundles everything a connection handler needs.
type Services struct {
	Config *config.Config
	Envs   *envstore.Store
	Tokens tokenstore.Store
	Portal PortalAPI
	Auth   Authenticator
}

// StoredTokenAuthenticator resumes sessions from the token store. The
// bridge itself never runs an interactive sign-in flow; tokens are placed
// in the store out of band.
type StoredTokenAuthenticator struct {
	Tokens tokenstore.Store
}

func (a StoredTokenAuthenticator) SignIn(ctx context.Context, env models.Environment) (*oauth2.Token, error) {
	tok, err := a.Tokens.Token(env.ID)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return nil, resterr.New(resterr.CodeSessionExpired,
				fmt.Sprintf("no stored session for environment %q", env.Name), true)
		}
		return nil, err
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return nil, resterr.New(resterr.CodeSessionExpired,
			fmt.Sprintf("stored session for environment %q has expired", env.Name), true)
	}
	return tok, nil
}

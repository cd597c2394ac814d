package bridge

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"portalkeys-go/internal/config"
	"portalkeys-go/internal/envstore"
	"portalkeys-go/internal/models"
	"portalkeys-go/internal/portal"
	"portalkeys-go/internal/protocol"
	"portalkeys-go/internal/resterr"
	"portalkeys-go/internal/tokenstore"
)

type fakePortal struct {
	creds    []models.Credential
	warnings []string
	detail   models.Credential
	result   models.MutationResult
	caps     models.Capabilities
	err      error

	fetchCalls  int
	mutateCalls int
}

func (f *fakePortal) FetchCredentials(ctx context.Context, env models.Environment, token string) ([]models.Credential, error) {
	f.fetchCalls++
	return f.creds, f.err
}

func (f *fakePortal) FetchDetail(ctx context.Context, env models.Environment, token string, id string) (models.Credential, error) {
	return f.detail, f.err
}

func (f *fakePortal) MutateKey(ctx context.Context, env models.Environment, token string, id string, slot int, action portal.KeyAction, expirationDays int) (models.MutationResult, error) {
	f.mutateCalls++
	return f.result, f.err
}

func (f *fakePortal) DetectCapabilities(ctx context.Context, env models.Environment, token string) models.Capabilities {
	return f.caps
}

func (f *fakePortal) Warnings() []string { return f.warnings }

type testRig struct {
	handler *Handler
	portal  *fakePortal
	tokens  tokenstore.Store
	envID   string
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	envs, err := envstore.Open(filepath.Join(t.TempDir(), "environments.yaml"))
	require.NoError(t, err)
	t.Cleanup(envs.Close)

	env, err := envs.Put(models.Environment{Name: "Cloud", Type: models.DeploymentOnline, ClientID: "client-1"})
	require.NoError(t, err)

	tokens, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "tokens"))
	require.NoError(t, err)

	fp := &fakePortal{caps: models.AllCapabilities()}
	svc := Services{
		Config: config.Default(),
		Envs:   envs,
		Tokens: tokens,
		Portal: fp,
		Auth:   StoredTokenAuthenticator{Tokens: tokens},
	}
	return &testRig{handler: NewHandler(svc), portal: fp, tokens: tokens, envID: env.ID}
}

func (r *testRig) storeToken(t *testing.T) {
	t.Helper()
	require.NoError(t, r.tokens.Save(r.envID, &oauth2.Token{AccessToken: "tok-abc"}))
}

func send(t *testing.T, h *Handler, mt protocol.MessageType, requestID string, payload any) []protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(mt, requestID, payload)
	require.NoError(t, err)
	wire, err := protocol.Encode(env)
	require.NoError(t, err)

	raw := h.Handle(context.Background(), wire)
	out := make([]protocol.Envelope, 0, len(raw))
	for _, s := range raw {
		decoded, err := protocol.Decode(s)
		require.NoError(t, err, "reply must round-trip through the protocol")
		out = append(out, decoded)
	}
	return out
}

func TestInitializeReturnsState(t *testing.T) {
	rig := newTestRig(t)

	replies := send(t, rig.handler, protocol.TypeInitialize, "req-1", protocol.InitializePayload{})
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeState, replies[0].Type)
	assert.Equal(t, "req-1", replies[0].RequestID)

	var state protocol.StatePayload
	require.NoError(t, protocol.DecodePayload(replies[0], &state))
	require.Len(t, state.Environments, 1)
	assert.Equal(t, rig.envID, state.Environments[0].ID)
	assert.Nil(t, state.Current)
	assert.False(t, state.SignedIn)
}

func TestSelectEnvironmentResumesStoredSession(t *testing.T) {
	rig := newTestRig(t)
	rig.storeToken(t)

	replies := send(t, rig.handler, protocol.TypeSelectEnvironment, "req-2",
		protocol.SelectEnvironmentPayload{EnvironmentID: rig.envID})
	require.Len(t, replies, 1)

	var state protocol.StatePayload
	require.NoError(t, protocol.DecodePayload(replies[0], &state))
	require.NotNil(t, state.Current)
	assert.Equal(t, rig.envID, state.Current.ID)
	assert.True(t, state.SignedIn)
	require.NotNil(t, state.Capabilities)
	assert.True(t, state.Capabilities.List)
}

func TestSelectEnvironmentWithoutSession(t *testing.T) {
	rig := newTestRig(t)

	replies := send(t, rig.handler, protocol.TypeSelectEnvironment, "req-3",
		protocol.SelectEnvironmentPayload{EnvironmentID: rig.envID})
	require.Len(t, replies, 1)

	var state protocol.StatePayload
	require.NoError(t, protocol.DecodePayload(replies[0], &state))
	assert.False(t, state.SignedIn, "selecting an environment must succeed without a session")
	assert.Equal(t, protocol.TypeState, replies[0].Type)
}

func TestSignInWithoutStoredToken(t *testing.T) {
	rig := newTestRig(t)

	replies := send(t, rig.handler, protocol.TypeSignIn, "req-4",
		protocol.SignInPayload{EnvironmentID: rig.envID})
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeError, replies[0].Type)
	assert.Equal(t, "req-4", replies[0].RequestID)

	var ep protocol.ErrorPayload
	require.NoError(t, protocol.DecodePayload(replies[0], &ep))
	assert.Equal(t, resterr.CodeSessionExpired, ep.Error.Code)
	assert.True(t, ep.Error.Recoverable)
}

func TestLoadCredentials(t *testing.T) {
	rig := newTestRig(t)
	rig.storeToken(t)
	rig.portal.creds = []models.Credential{{ID: "cred-1", Name: "Key One"}}
	rig.portal.warnings = []string{"portals/self/apiKeys: response missing expected field expiration"}

	send(t, rig.handler, protocol.TypeSignIn, "", protocol.SignInPayload{EnvironmentID: rig.envID})
	replies := send(t, rig.handler, protocol.TypeLoadCredentials, "req-5", protocol.LoadCredentialsPayload{})
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeCredentials, replies[0].Type)

	var cp protocol.CredentialsPayload
	require.NoError(t, protocol.DecodePayload(replies[0], &cp))
	require.Len(t, cp.Credentials, 1)
	assert.Equal(t, "cred-1", cp.Credentials[0].ID)
	require.Len(t, cp.Warnings, 1)
}

func TestLoadCredentialsWithoutSession(t *testing.T) {
	rig := newTestRig(t)

	send(t, rig.handler, protocol.TypeSelectEnvironment, "",
		protocol.SelectEnvironmentPayload{EnvironmentID: rig.envID})
	replies := send(t, rig.handler, protocol.TypeLoadCredentials, "req-6", protocol.LoadCredentialsPayload{})
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeError, replies[0].Type)

	var ep protocol.ErrorPayload
	require.NoError(t, protocol.DecodePayload(replies[0], &ep))
	assert.Equal(t, resterr.CodeSessionExpired, ep.Error.Code)
	assert.Equal(t, 0, rig.portal.fetchCalls)
}

func TestPortalFailureMapsToErrorEnvelope(t *testing.T) {
	rig := newTestRig(t)
	rig.storeToken(t)
	rig.portal.err = fmt.Errorf("network request failed: connection refused")

	send(t, rig.handler, protocol.TypeSignIn, "", protocol.SignInPayload{EnvironmentID: rig.envID})
	replies := send(t, rig.handler, protocol.TypeLoadCredentials, "req-7", protocol.LoadCredentialsPayload{})
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeError, replies[0].Type)
	assert.Equal(t, "req-7", replies[0].RequestID)

	var ep protocol.ErrorPayload
	require.NoError(t, protocol.DecodePayload(replies[0], &ep))
	assert.Equal(t, resterr.CodeNetworkError, ep.Error.Code)
	assert.True(t, ep.Error.Recoverable)
}

func TestKeyActionFlow(t *testing.T) {
	rig := newTestRig(t)
	rig.storeToken(t)
	rig.portal.result = models.MutationResult{ID: "cred-1", Slot: 2, Action: "regenerate", Key: "new-key"}

	send(t, rig.handler, protocol.TypeSignIn, "", protocol.SignInPayload{EnvironmentID: rig.envID})
	days := 30
	replies := send(t, rig.handler, protocol.TypeKeyAction, "req-8", protocol.KeyActionPayload{
		ID: "cred-1", Slot: 2, Action: "regenerate", ExpirationDays: &days,
	})
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeKeyActionResult, replies[0].Type)

	var kp protocol.KeyActionResultPayload
	require.NoError(t, protocol.DecodePayload(replies[0], &kp))
	assert.Equal(t, "new-key", kp.Result.Key)
	assert.Equal(t, 1, rig.portal.mutateCalls)
}

func TestSignOutDiscardsSession(t *testing.T) {
	rig := newTestRig(t)
	rig.storeToken(t)

	send(t, rig.handler, protocol.TypeSignIn, "", protocol.SignInPayload{EnvironmentID: rig.envID})
	replies := send(t, rig.handler, protocol.TypeSignOut, "req-9", protocol.SignOutPayload{})
	require.Len(t, replies, 1)

	var state protocol.StatePayload
	require.NoError(t, protocol.DecodePayload(replies[0], &state))
	assert.False(t, state.SignedIn)
	assert.Nil(t, state.Capabilities)

	_, err := rig.tokens.Token(rig.envID)
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestMalformedMessage(t *testing.T) {
	rig := newTestRig(t)

	raw := rig.handler.Handle(context.Background(), `{"type":`)
	require.Len(t, raw, 1)
	decoded, err := protocol.Decode(raw[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeError, decoded.Type)

	var ep protocol.ErrorPayload
	require.NoError(t, protocol.DecodePayload(decoded, &ep))
	assert.Equal(t, resterr.CodeInvalidRequest, ep.Error.Code)
}

func TestHostDirectionMessageRejected(t *testing.T) {
	rig := newTestRig(t)

	replies := send(t, rig.handler, protocol.TypeState, "req-10", protocol.StatePayload{})
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeError, replies[0].Type)
	assert.Equal(t, "req-10", replies[0].RequestID)
}

func TestAckErrorIsSilent(t *testing.T) {
	rig := newTestRig(t)

	replies := send(t, rig.handler, protocol.TypeAckError, "req-11", protocol.AckErrorPayload{})
	assert.Empty(t, replies)
}

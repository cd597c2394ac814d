package bridge

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"portalkeys-go/internal/models"
	"portalkeys-go/internal/portal"
	"portalkeys-go/internal/protocol"
	"portalkeys-go/internal/resterr"
)

// Handler owns one UI connection's session state. All portal traffic for
// the connection funnels through Handle, which serializes message
// processing with a mutex so the UI observes a consistent state sequence.
type Handler struct {
	svc Services
	log *log.Entry

	mu         sync.Mutex
	current    *models.Environment
	token      *oauth2.Token
	caps       *models.Capabilities
	pendingErr *resterr.RestError
}

// NewHandler creates a handler bound to the shared services.
func NewHandler(svc Services) *Handler {
	return &Handler{
		svc: svc,
		log: log.WithField("component", "bridge"),
	}
}

// Handle processes one raw wire string from the UI and returns the wire
// strings to send back, in order. Failures never cross as Go errors; they
// are mapped and returned as error envelopes.
func (h *Handler) Handle(ctx context.Context, raw string) []string {
	env, err := protocol.Decode(raw)
	if err != nil {
		h.log.WithError(err).Warn("rejected malformed message")
		re := resterr.New(resterr.CodeInvalidRequest, err.Error(), false)
		return h.encodeAll(h.errorEnvelope("", re))
	}
	if !env.Type.FromUI() {
		re := resterr.New(resterr.CodeInvalidRequest,
			fmt.Sprintf("message type %q is not a UI request", env.Type), false)
		return h.encodeAll(h.errorEnvelope(env.RequestID, re))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	replies, err := h.dispatch(ctx, env)
	if err != nil {
		re := resterr.Map(err)
		h.pendingErr = re
		h.log.WithFields(log.Fields{
			"type": env.Type,
			"code": re.Code,
		}).Warn("request failed")
		return h.encodeAll(h.errorEnvelope(env.RequestID, re))
	}
	return h.encodeAll(replies...)
}

func (h *Handler) dispatch(ctx context.Context, env protocol.Envelope) ([]protocol.Envelope, error) {
	switch env.Type {
	case protocol.TypeInitialize:
		return h.stateReply(env.RequestID)
	case protocol.TypeSelectEnvironment:
		return h.selectEnvironment(ctx, env)
	case protocol.TypeSignIn:
		return h.signIn(ctx, env)
	case protocol.TypeSignOut:
		return h.signOut(env)
	case protocol.TypeLoadCredentials:
		return h.loadCredentials(ctx, env)
	case protocol.TypeLoadCredentialDetail:
		return h.loadCredentialDetail(ctx, env)
	case protocol.TypeKeyAction:
		return h.keyAction(ctx, env)
	case protocol.TypeAckError:
		h.pendingErr = nil
		return nil, nil
	}
	return nil, resterr.New(resterr.CodeInvalidRequest,
		fmt.Sprintf("unhandled message type %q", env.Type), false)
}

func (h *Handler) selectEnvironment(ctx context.Context, env protocol.Envelope) ([]protocol.Envelope, error) {
	var p protocol.SelectEnvironmentPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return nil, resterr.New(resterr.CodeInvalidRequest, err.Error(), false)
	}
	selected, err := h.svc.Envs.Get(p.EnvironmentID)
	if err != nil {
		return nil, resterr.New(resterr.CodeInvalidRequest, err.Error(), false)
	}

	h.current = &selected
	h.token = nil
	h.caps = nil

	// Resume a stored session silently when one exists; selecting an
	// environment must succeed even without one.
	if tok, err := h.svc.Auth.SignIn(ctx, selected); err == nil {
		h.token = tok
		caps := h.svc.Portal.DetectCapabilities(ctx, selected, tok.AccessToken)
		h.caps = &caps
	}
	return h.stateReply(env.RequestID)
}

func (h *Handler) signIn(ctx context.Context, env protocol.Envelope) ([]protocol.Envelope, error) {
	var p protocol.SignInPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return nil, resterr.New(resterr.CodeInvalidRequest, err.Error(), false)
	}

	target := h.current
	if p.EnvironmentID != "" {
		selected, err := h.svc.Envs.Get(p.EnvironmentID)
		if err != nil {
			return nil, resterr.New(resterr.CodeInvalidRequest, err.Error(), false)
		}
		target = &selected
	}
	if target == nil {
		return nil, resterr.New(resterr.CodeInvalidRequest, "no environment selected", false)
	}

	tok, err := h.svc.Auth.SignIn(ctx, *target)
	if err != nil {
		return nil, err
	}

	h.current = target
	h.token = tok
	caps := h.svc.Portal.DetectCapabilities(ctx, *target, tok.AccessToken)
	h.caps = &caps
	return h.stateReply(env.RequestID)
}

func (h *Handler) signOut(env protocol.Envelope) ([]protocol.Envelope, error) {
	if h.current != nil {
		if err := h.svc.Tokens.Delete(h.current.ID); err != nil {
			h.log.WithError(err).Warn("failed to discard stored token")
		}
	}
	h.token = nil
	h.caps = nil
	return h.stateReply(env.RequestID)
}

func (h *Handler) loadCredentials(ctx context.Context, env protocol.Envelope) ([]protocol.Envelope, error) {
	target, token, err := h.session()
	if err != nil {
		return nil, err
	}
	creds, err := h.svc.Portal.FetchCredentials(ctx, target, token)
	if err != nil {
		return nil, err
	}
	reply, err := protocol.NewEnvelope(protocol.TypeCredentials, env.RequestID, protocol.CredentialsPayload{
		Credentials: creds,
		Warnings:    h.svc.Portal.Warnings(),
	})
	if err != nil {
		return nil, err
	}
	return []protocol.Envelope{reply}, nil
}

func (h *Handler) loadCredentialDetail(ctx context.Context, env protocol.Envelope) ([]protocol.Envelope, error) {
	var p protocol.LoadCredentialDetailPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return nil, resterr.New(resterr.CodeInvalidRequest, err.Error(), false)
	}
	if p.ID == "" {
		return nil, resterr.New(resterr.CodeInvalidRequest, "credential id is required", false)
	}
	target, token, err := h.session()
	if err != nil {
		return nil, err
	}
	cred, err := h.svc.Portal.FetchDetail(ctx, target, token, p.ID)
	if err != nil {
		return nil, err
	}
	reply, err := protocol.NewEnvelope(protocol.TypeCredentialDetail, env.RequestID, protocol.CredentialDetailPayload{Credential: cred})
	if err != nil {
		return nil, err
	}
	return []protocol.Envelope{reply}, nil
}

func (h *Handler) keyAction(ctx context.Context, env protocol.Envelope) ([]protocol.Envelope, error) {
	var p protocol.KeyActionPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return nil, resterr.New(resterr.CodeInvalidRequest, err.Error(), false)
	}
	target, token, err := h.session()
	if err != nil {
		return nil, err
	}
	days := 0
	if p.ExpirationDays != nil {
		days = *p.ExpirationDays
	}
	result, err := h.svc.Portal.MutateKey(ctx, target, token, p.ID, p.Slot, portal.KeyAction(p.Action), days)
	if err != nil {
		return nil, err
	}
	reply, err := protocol.NewEnvelope(protocol.TypeKeyActionResult, env.RequestID, protocol.KeyActionResultPayload{Result: result})
	if err != nil {
		return nil, err
	}
	return []protocol.Envelope{reply}, nil
}

// session returns the active environment and access token, or a
// recoverable SESSION_EXPIRED error when either is missing.
func (h *Handler) session() (models.Environment, string, error) {
	if h.current == nil {
		return models.Environment{}, "", resterr.New(resterr.CodeInvalidRequest, "no environment selected", false)
	}
	if h.token == nil || h.token.AccessToken == "" {
		return models.Environment{}, "", resterr.New(resterr.CodeSessionExpired, "not signed in", true)
	}
	return *h.current, h.token.AccessToken, nil
}

func (h *Handler) stateReply(requestID string) ([]protocol.Envelope, error) {
	payload := protocol.StatePayload{
		Environments: h.svc.Envs.List(),
		Current:      h.current,
		SignedIn:     h.token != nil && h.token.AccessToken != "",
		Capabilities: h.caps,
	}
	reply, err := protocol.NewEnvelope(protocol.TypeState, requestID, payload)
	if err != nil {
		return nil, err
	}
	return []protocol.Envelope{reply}, nil
}

func (h *Handler) errorEnvelope(requestID string, re *resterr.RestError) protocol.Envelope {
	env, err := protocol.NewEnvelope(protocol.TypeError, requestID, protocol.ErrorPayload{Error: *re})
	if err != nil {
		// ErrorPayload always marshals to an object.
		h.log.WithError(err).Error("failed to build error envelope")
	}
	return env
}

func (h *Handler) encodeAll(envs ...protocol.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		if e.Type == "" {
			continue
		}
		wire, err := protocol.Encode(e)
		if err != nil {
			h.log.WithError(err).WithField("type", e.Type).Error("failed to encode reply")
			continue
		}
		out = append(out, wire)
	}
	return out
}

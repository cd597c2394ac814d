package protocol

import (
	"portalkeys-go/internal/models"
	"portalkeys-go/internal/resterr"
)

// StatePayload announces the host's current session state to the UI.
type StatePayload struct {
	Environments []models.Environment `json:"environments"`
	Current      *models.Environment  `json:"current,omitempty"`
	SignedIn     bool                 `json:"signedIn"`
	Capabilities *models.Capabilities `json:"capabilities,omitempty"`
}

// CredentialsPayload carries a full fetch result plus any shape-validation
// warnings, which are advisory and never block the credential list.
type CredentialsPayload struct {
	Credentials []models.Credential `json:"credentials"`
	Warnings    []string            `json:"warnings,omitempty"`
}

// CredentialDetailPayload carries one enriched credential.
type CredentialDetailPayload struct {
	Credential models.Credential `json:"credential"`
}

// KeyActionResultPayload reports a completed key mutation.
type KeyActionResultPayload struct {
	Result models.MutationResult `json:"result"`
}

// ErrorPayload carries a mapped RestError to the UI.
type ErrorPayload struct {
	Error resterr.RestError `json:"error"`
}

// InitializePayload is sent by the UI once its surface is ready.
type InitializePayload struct{}

// SelectEnvironmentPayload switches the active environment.
type SelectEnvironmentPayload struct {
	EnvironmentID string `json:"environmentId"`
}

// SignInPayload asks the host to establish a session for an environment.
type SignInPayload struct {
	EnvironmentID string `json:"environmentId,omitempty"`
}

// SignOutPayload asks the host to discard the active session.
type SignOutPayload struct{}

// LoadCredentialsPayload requests a full credential listing.
type LoadCredentialsPayload struct{}

// LoadCredentialDetailPayload requests one credential's merged detail.
type LoadCredentialDetailPayload struct {
	ID string `json:"id"`
}

// KeyActionPayload requests a key mutation. ExpirationDays is optional.
type KeyActionPayload struct {
	ID             string `json:"id"`
	Slot           int    `json:"slot"`
	Action         string `json:"action"`
	ExpirationDays *int   `json:"expirationDays,omitempty"`
}

// AckErrorPayload acknowledges the last surfaced error.
type AckErrorPayload struct{}

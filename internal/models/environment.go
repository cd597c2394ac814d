package models

import (
	"fmt"
	"strings"
)

// DeploymentType identifies which backend flavor an environment talks to.
type DeploymentType string

const (
	DeploymentOnline           DeploymentType = "online"
	DeploymentLocationPlatform DeploymentType = "location-platform"
	DeploymentEnterprise       DeploymentType = "enterprise"
)

// Environment describes one portal deployment a user can work against.
// PortalURL is required for enterprise deployments and optional for cloud
// ones, where it overrides the default portal base.
type Environment struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Type      DeploymentType `json:"type" yaml:"type"`
	ClientID  string         `json:"clientId" yaml:"client_id"`
	PortalURL string         `json:"portalUrl,omitempty" yaml:"portal_url,omitempty"`
}

// IsCloud reports whether the environment is one of the cloud multi-tenant
// deployment types.
func (e Environment) IsCloud() bool {
	return e.Type == DeploymentOnline || e.Type == DeploymentLocationPlatform
}

// Validate checks structural consistency of the environment record.
func (e Environment) Validate() error {
	switch e.Type {
	case DeploymentOnline, DeploymentLocationPlatform:
	case DeploymentEnterprise:
		if strings.TrimSpace(e.PortalURL) == "" {
			return fmt.Errorf("environment %q: portal_url is required for enterprise deployments", e.Name)
		}
	default:
		return fmt.Errorf("environment %q: unknown deployment type %q", e.Name, e.Type)
	}
	return nil
}

package portal

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"portalkeys-go/internal/models"
	"portalkeys-go/internal/transport"
)

// Key mutation on self-hosted portals requires at least this version.
const (
	minMutationMajor = 11
	minMutationMinor = 2
)

// DetectCapabilities probes which operations the deployment supports. Cloud
// deployments always support the full surface. Self-hosted portals are
// probed through their self-description endpoint; versions below 11.2 lack
// the mutation API. Detection never returns an error: a failed probe
// reports everything false so the UI can still attempt a fetch and surface
// the reason.
func (c *Client) DetectCapabilities(ctx context.Context, env models.Environment, token string) models.Capabilities {
	if env.IsCloud() {
		return models.AllCapabilities()
	}

	self, err := c.t.Do(ctx, transport.Request{
		Path:   "/portals/self",
		Method: http.MethodGet,
		Env:    env,
		Token:  token,
	})
	if err != nil {
		c.log.WithError(err).Warn("portal self-description probe failed")
		return models.Capabilities{Reason: "portal could not be reached to determine its capabilities"}
	}

	version := self.Get("currentVersion").String()
	if versionAtLeast(version, minMutationMajor, minMutationMinor) {
		return models.AllCapabilities()
	}
	return models.Capabilities{
		List:   true,
		Detail: true,
		Reason: "portal version " + version + " does not support key mutation (11.2 or later required)",
	}
}

// versionAtLeast leniently compares a reported "major.minor" version
// string. Unparseable versions count as below the threshold.
func versionAtLeast(version string, major, minor int) bool {
	parts := strings.SplitN(strings.TrimSpace(version), ".", 3)
	if len(parts) < 1 || parts[0] == "" {
		return false
	}
	gotMajor, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	if gotMajor != major {
		return gotMajor > major
	}
	gotMinor := 0
	if len(parts) > 1 {
		if gotMinor, err = strconv.Atoi(parts[1]); err != nil {
			return false
		}
	}
	return gotMinor >= minor
}

package resterr

import (
	"errors"
	"net"
	"regexp"
)

// portalCoded is implemented by transport errors that carry the portal's own
// error object. Declared here as an interface so the mapper does not depend
// on the transport package.
type portalCoded interface {
	error
	PortalCode() int
	PortalMessage() string
}

var networkPattern = regexp.MustCompile(`(?i)network|fetch`)

// Map classifies an arbitrary error into the closed RestError taxonomy.
// It is total: any non-nil error yields a RestError, and already-mapped
// errors pass through unchanged. Mapping nil returns nil.
func Map(err error) *RestError {
	if err == nil {
		return nil
	}

	var mapped *RestError
	if errors.As(err, &mapped) {
		return mapped
	}

	var portal portalCoded
	if errors.As(err, &portal) {
		return mapPortal(portal)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || networkPattern.MatchString(err.Error()) {
		return New(CodeNetworkError, err.Error(), true)
	}

	return New(CodeUnknown, err.Error(), false)
}

func mapPortal(err portalCoded) *RestError {
	code := err.PortalCode()
	msg := err.PortalMessage()

	switch code {
	case 498, 499:
		return New(CodeSessionExpired, "Session expired or token invalid", true).WithStatus(code)
	case 403:
		return New(CodePermissionDenied, "You do not have permission to perform this operation", false).WithStatus(code)
	case 400:
		if msg == "" {
			msg = "Invalid request"
		}
		return New(CodeInvalidRequest, msg, false).WithStatus(code)
	}
	if msg == "" {
		msg = "The portal returned an unexpected error"
	}
	return New(CodeUnknown, msg, false).WithStatus(code)
}

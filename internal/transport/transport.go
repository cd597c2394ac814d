package transport

import (
	"context"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"portalkeys-go/internal/models"
)

// Request describes one portal REST call. Path is relative to the
// environment's sharing API root, for example "/portals/self/apiKeys".
type Request struct {
	Path   string
	Method string // http.MethodGet or http.MethodPost
	Env    models.Environment
	Token  string
	Query  url.Values
	Body   url.Values
}

// Requester is the single capability the portal client consumes. The
// implementation is responsible for URL construction and for injecting
// f=json and the access token; it must return the parsed error body as a
// *PortalError whenever the response carries an "error" key, so that the
// error mapper can classify it.
type Requester interface {
	Do(ctx context.Context, req Request) (gjson.Result, error)
}

// PortalError carries the portal's own error object. The raw body is kept
// so callers can inspect fields the classification did not use.
type PortalError struct {
	Code    int
	Message string
	Details []string
	Raw     string
}

func (e *PortalError) Error() string {
	return "portal error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// PortalCode returns the numeric code reported by the portal.
func (e *PortalError) PortalCode() int { return e.Code }

// PortalMessage returns the message reported by the portal.
func (e *PortalError) PortalMessage() string { return e.Message }

package portal

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"

	"portalkeys-go/internal/models"
	"portalkeys-go/internal/transport"
)

// fakeRequester scripts transport responses by path and records every call.
type fakeRequester struct {
	mu      sync.Mutex
	calls   []transport.Request
	respond func(req transport.Request) (string, error)
}

func (f *fakeRequester) Do(_ context.Context, req transport.Request) (gjson.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	body, err := f.respond(req)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.Parse(body), nil
}

func (f *fakeRequester) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRequester) callsTo(path string) []transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transport.Request
	for _, c := range f.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func onlineEnv() models.Environment {
	return models.Environment{ID: "env-on", Name: "cloud", Type: models.DeploymentOnline, ClientID: "client-1"}
}

func enterpriseTestEnv() models.Environment {
	return models.Environment{ID: "env-ent", Name: "on-prem", Type: models.DeploymentEnterprise, PortalURL: "https://portal.example.com"}
}

// notFound is a convenience scripted portal failure.
func notFound(path string) error {
	return &transport.PortalError{Code: 400, Message: fmt.Sprintf("no handler for %s", path)}
}

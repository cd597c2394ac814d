package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalkeys-go/internal/models"
)

func enterpriseEnv(portalURL string) models.Environment {
	return models.Environment{
		ID:        "env-1",
		Name:      "on-prem",
		Type:      models.DeploymentEnterprise,
		PortalURL: portalURL,
	}
}

func TestDoInjectsFormatAndToken(t *testing.T) {
	var seen *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		_, _ = w.Write([]byte(`{"username":"casey"}`))
	}))
	defer srv.Close()

	c := New(Options{})
	res, err := c.Do(context.Background(), Request{
		Path:   "/community/self",
		Method: http.MethodGet,
		Env:    enterpriseEnv(srv.URL),
		Token:  "tok-123",
	})
	require.NoError(t, err)
	assert.Equal(t, "casey", res.Get("username").String())

	require.NotNil(t, seen)
	assert.Equal(t, "/sharing/rest/community/self", seen.URL.Path)
	assert.Equal(t, "json", seen.URL.Query().Get("f"))
	assert.Equal(t, "tok-123", seen.URL.Query().Get("token"))
}

func TestDoPostSendsForm(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"key":"abc"}`))
	}))
	defer srv.Close()

	c := New(Options{})
	_, err := c.Do(context.Background(), Request{
		Path:   "/portals/self/apiKeys/1/keys/1/create",
		Method: http.MethodPost,
		Env:    enterpriseEnv(srv.URL),
		Token:  "tok-123",
		Body:   url.Values{"expirationDate": {"123456"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "json", form.Get("f"))
	assert.Equal(t, "tok-123", form.Get("token"))
	assert.Equal(t, "123456", form.Get("expirationDate"))
}

func TestDoReturnsPortalErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The portal reports token failures with HTTP 200 and an error body.
		_, _ = w.Write([]byte(`{"error":{"code":498,"message":"Invalid token.","details":["expired"]}}`))
	}))
	defer srv.Close()

	c := New(Options{})
	_, err := c.Do(context.Background(), Request{
		Path:   "/portals/self/apiKeys",
		Method: http.MethodGet,
		Env:    enterpriseEnv(srv.URL),
		Token:  "bad",
	})
	require.Error(t, err)

	portalErr, ok := err.(*PortalError)
	require.True(t, ok, "expected *PortalError, got %T", err)
	assert.Equal(t, 498, portalErr.PortalCode())
	assert.Equal(t, "Invalid token.", portalErr.PortalMessage())
	assert.Equal(t, []string{"expired"}, portalErr.Details)
}

func TestDoNonJSONFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway unhappy", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{})
	_, err := c.Do(context.Background(), Request{
		Path:   "/portals/self",
		Method: http.MethodGet,
		Env:    enterpriseEnv(srv.URL),
	})
	require.Error(t, err)
	portalErr, ok := err.(*PortalError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, portalErr.Code)
}

func TestDoNetworkErrorMentionsNetwork(t *testing.T) {
	c := New(Options{})
	_, err := c.Do(context.Background(), Request{
		Path:   "/portals/self",
		Method: http.MethodGet,
		Env:    enterpriseEnv("http://127.0.0.1:1"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network")
}

func TestBaseURLResolution(t *testing.T) {
	c := New(Options{OnlineBaseURL: "https://www.arcgis.com/sharing/rest"})

	base, err := c.baseURL(models.Environment{Type: models.DeploymentOnline})
	require.NoError(t, err)
	assert.Equal(t, "https://www.arcgis.com/sharing/rest", base)

	base, err = c.baseURL(models.Environment{Type: models.DeploymentOnline, PortalURL: "https://org.example.com/portal/"})
	require.NoError(t, err)
	assert.Equal(t, "https://org.example.com/portal/sharing/rest", base)

	_, err = c.baseURL(models.Environment{Type: models.DeploymentEnterprise, Name: "broken"})
	assert.Error(t, err)
}

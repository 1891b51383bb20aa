package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rajkayal/hubauth/internal/api"
	"github.com/rajkayal/hubauth/internal/app"
	"github.com/rajkayal/hubauth/internal/handlers/testutil"
)

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := api.NewRouter(nil, api.Deps{})
	require.Error(t, err)

	_, err = api.NewRouter(&app.Config{}, api.Deps{})
	require.Error(t, err)
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	decoded := testutil.DecodeResponse(t, resp)
	require.True(t, decoded.Success)

	var data map[string]any
	testutil.DecodeInto(t, decoded.Data, &data)
	require.Equal(t, "ok", data["status"])
	require.Equal(t, "ok", data["database"])
}

func TestRouterUnknownRouteEnvelope(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodGet, "/api/nope", nil, "")
	require.Equal(t, http.StatusNotFound, resp.Code)

	decoded := testutil.DecodeResponse(t, resp)
	require.False(t, decoded.Success)
	require.Equal(t, "NOT_FOUND", decoded.Error.Code)
}

func TestRouterSecurityHeaders(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodGet, "/healthz", nil, "")
	require.Equal(t, "nosniff", resp.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, resp.Header().Get("X-Frame-Options"))
}

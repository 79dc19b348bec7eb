package routes

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rbac "github.com/bohemiyan/grc-rbac"
)

func TestGatewayAuth(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(GatewayAuth("s3cret"))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		id, _ := c.Locals(rbac.LocalUserID).(string)
		return c.SendString(id)
	})

	cases := []struct {
		name   string
		secret string
		user   string
		status int
		body   string
	}{
		{name: "missing secret", user: "bob", status: fiber.StatusUnauthorized},
		{name: "wrong secret", secret: "guess", user: "bob", status: fiber.StatusUnauthorized},
		{name: "trusted", secret: "s3cret", user: "bob", status: fiber.StatusOK, body: "bob"},
		{name: "trusted without user", secret: "s3cret", status: fiber.StatusOK, body: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
			if tc.secret != "" {
				req.Header.Set(HeaderGatewaySecret, tc.secret)
			}
			if tc.user != "" {
				req.Header.Set(HeaderUserID, tc.user)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.status == fiber.StatusOK {
				raw, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, tc.body, string(raw))
			}
		})
	}
}

func TestGatewayAuthRequiresSecret(t *testing.T) {
	assert.Panics(t, func() { GatewayAuth("") })
}

func TestSetupRequiresAuthenticator(t *testing.T) {
	srv := newTestServer(t, nil)
	assert.PanicsWithValue(t, "routes: RBAC, workflow and authenticator are required", func() {
		Setup(fiber.New(), Deps{RBAC: srv.rbac})
	})
}

func TestUngatedRequestIsRejected(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/me/permissions", nil)
	req.Header.Set(HeaderUserID, "root")
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"transport-backend/internal/apperr"
	"transport-backend/internal/models"
	"transport-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) *Service {
	return NewService(testutil.OpenDB(t), testutil.JWTSecret, zap.NewNop())
}

func TestRegister_FirstAdminOnly(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	admin, err := svc.Register(ctx, RegisterInput{Name: "Root", Email: "Root@Example.com ", Password: "password1", Role: models.RoleAdmin}, nil)
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", admin.Email)
	assert.True(t, admin.IsActive)

	_, err = svc.Register(ctx, RegisterInput{Name: "Second", Email: "second@example.com", Password: "password1", Role: models.RoleAdmin}, nil)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	caller := &Identity{UserID: admin.ID, Role: models.RoleAdmin}
	_, err = svc.Register(ctx, RegisterInput{Name: "Second", Email: "second@example.com", Password: "password1", Role: models.RoleAdmin}, caller)
	assert.NoError(t, err)
}

func TestRegister_Validation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "short", Role: models.RoleBuyer}, nil)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "password1", Role: "driver"}, nil)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = svc.Register(ctx, RegisterInput{Name: "A", Email: "a@example.com", Password: "password1", Role: models.RoleBuyer}, nil)
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Name: "B", Email: "a@example.com", Password: "password1", Role: models.RoleSupplier}, nil)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Sup", Email: "sup@example.com", Password: "password1", Role: models.RoleSupplier}, nil)
	require.NoError(t, err)

	token, user, err := svc.Login(ctx, " SUP@example.com", "password1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, models.RoleSupplier, user.Role)

	_, _, err = svc.Login(ctx, "sup@example.com", "wrong-password")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, _, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
}

func TestMiddleware_RequireRole(t *testing.T) {
	db := testutil.OpenDB(t)
	admin := testutil.CreateUser(t, db, "Admin", models.RoleAdmin, "")
	buyer := testutil.CreateUser(t, db, "Buyer", models.RoleBuyer, "")

	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler(zap.NewNop())})
	app.Get("/admin", JWTMiddleware(testutil.JWTSecret), RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		id, err := Current(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"user_id": id.UserID})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"wrong role", "Bearer " + testutil.Token(t, buyer), http.StatusForbidden},
		{"admin", "Bearer " + testutil.Token(t, admin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestGenerateToken_RoundTrip(t *testing.T) {
	user := &models.User{ID: 7, Email: "x@example.com", Role: models.RoleBuyer}
	token, err := GenerateToken(testutil.JWTSecret, user)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler(zap.NewNop())})
	app.Get("/", JWTMiddleware(testutil.JWTSecret), func(c *fiber.Ctx) error {
		id, err := Current(c)
		if err != nil {
			return err
		}
		assert.Equal(t, uint(7), id.UserID)
		assert.Equal(t, models.RoleBuyer, id.Role)
		return c.SendStatus(fiber.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestParseToken(t *testing.T) {
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testutil.JWTSecret))
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	id, err := ParseToken(testutil.JWTSecret, testutil.Token(t, &models.User{ID: 3, Role: models.RoleSupplier}))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 3, Role: models.RoleSupplier}, id)

	_, err = ParseToken(testutil.JWTSecret, sign(jwt.MapClaims{"sub": "3", "iss": "someone-else", "role": "admin", "exp": exp}))
	assert.Error(t, err)

	_, err = ParseToken(testutil.JWTSecret, sign(jwt.MapClaims{"sub": "3", "iss": tokenIssuer, "role": "admin"}))
	assert.Error(t, err, "expiry is required")

	_, err = ParseToken(testutil.JWTSecret, sign(jwt.MapClaims{"sub": "abc", "iss": tokenIssuer, "role": "admin", "exp": exp}))
	assert.ErrorIs(t, err, errMalformedClaims)

	_, err = ParseToken(testutil.JWTSecret, sign(jwt.MapClaims{"sub": "3", "iss": tokenIssuer, "role": "root", "exp": exp}))
	assert.ErrorIs(t, err, errMalformedClaims)

	_, err = ParseToken("another-secret-another-secret-12345", sign(jwt.MapClaims{"sub": "3", "iss": tokenIssuer, "role": "admin", "exp": exp}))
	assert.Error(t, err)
}

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"transport-backend/internal/auth"
	"transport-backend/internal/config"
	"transport-backend/internal/events"
	"transport-backend/internal/models"
	"transport-backend/internal/notification"
	"transport-backend/internal/order"
	"transport-backend/internal/referencedata"
	"transport-backend/internal/review"
	"transport-backend/internal/submission"
	"transport-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	log := zap.NewNop()
	bus := events.NewLocalBus()
	notifier := notification.NewNotifier(db, bus, log)
	orders := order.NewService(db, notifier, log)
	agg := notification.NewAggregator(db, notification.NewMemoryCache(time.Minute), log)
	t.Cleanup(agg.Subscribe(bus))

	cfg := &config.Config{
		JWTSecret:          testutil.JWTSecret,
		CORSOrigins:        "http://localhost:3000",
		LoginRatePerMinute: 1,
		LoginRateBurst:     2,
	}
	app := New(Deps{
		Config:        cfg,
		Log:           log,
		DB:            db,
		Bus:           bus,
		Auth:          auth.NewService(db, cfg.JWTSecret, log),
		Orders:        orders,
		Submissions:   submission.NewService(db, orders, notifier, log, submission.Options{WhatsAppCountryCode: "91"}),
		Review:        review.NewService(db, notifier, log),
		ReferenceData: referencedata.NewService(db, log),
		Notifications: agg,
	})
	return app, db
}

type client struct {
	t   *testing.T
	app *fiber.App
}

func (c client) do(method, path string, user *models.User, body string) (int, []byte) {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+testutil.Token(c.t, user))
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, raw
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newApp(t)
	c := client{t, app}

	status, body := c.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	status, body = c.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestLoginIsRateLimited(t *testing.T) {
	app, _ := newApp(t)
	c := client{t, app}
	body := `{"email":"nobody@example.com","password":"wrong-password"}`

	status, _ := c.do(http.MethodPost, "/api/auth/login", nil, body)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = c.do(http.MethodPost, "/api/auth/login", nil, body)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw := c.do(http.MethodPost, "/api/auth/login", nil, body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Contains(t, string(raw), "RATE_LIMITED")
}

func TestRoutesRequireTokenAndRole(t *testing.T) {
	app, db := newApp(t)
	c := client{t, app}
	supplier := testutil.CreateUser(t, db, "Supplier One", models.RoleSupplier, "")

	status, _ := c.do(http.MethodGet, "/api/admin/assignment-board", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = c.do(http.MethodGet, "/api/admin/assignment-board", supplier, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = c.do(http.MethodGet, "/api/load-types", nil, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestOrderFlowEndToEnd(t *testing.T) {
	app, db := newApp(t)
	c := client{t, app}
	admin := testutil.CreateUser(t, db, "Admin One", models.RoleAdmin, "")
	buyer := testutil.CreateUser(t, db, "Buyer One", models.RoleBuyer, "")
	supplier := testutil.CreateUser(t, db, "Supplier One", models.RoleSupplier, "9876543210")
	cotton := testutil.CreateLoadType(t, db, "Cotton")

	status, raw := c.do(http.MethodPost, "/api/orders", buyer, fmt.Sprintf(
		`{"load_type_id": %d, "from_district": "Bangalore", "to_district": "Chennai", "estimated_tons": "12.5", "submit": true}`, cotton.ID))
	require.Equal(t, http.StatusCreated, status, string(raw))
	var created struct {
		ID            uint               `json:"id"`
		Status        models.OrderStatus `json:"status"`
		EstimatedTons string             `json:"estimated_tons"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Equal(t, models.OrderStatusPending, created.Status)
	assert.Equal(t, "12.5", created.EstimatedTons)

	status, raw = c.do(http.MethodPost, fmt.Sprintf("/api/admin/orders/%d/fanout", created.ID), admin,
		fmt.Sprintf(`{"supplier_ids": [%d]}`, supplier.ID))
	require.Equal(t, http.StatusCreated, status, string(raw))
	assert.Contains(t, string(raw), "https://wa.me/919876543210")

	status, raw = c.do(http.MethodGet, "/api/notifications", supplier, "")
	require.Equal(t, http.StatusOK, status)
	var inbox notification.Result
	require.NoError(t, json.Unmarshal(raw, &inbox))
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, 1, inbox.Unread)
	assert.Equal(t, models.CategoryOrder, inbox.Notifications[0].Category)

	status, raw = c.do(http.MethodGet, "/api/supplier/submissions", supplier, "")
	require.Equal(t, http.StatusOK, status)
	var subs []models.OrderSubmission
	require.NoError(t, json.Unmarshal(raw, &subs))
	require.Len(t, subs, 1)

	status, raw = c.do(http.MethodPost, fmt.Sprintf("/api/supplier/submissions/%d/confirm", subs[0].ID), supplier,
		`{"driver_name": "Ravi", "driver_phone": "+91 90000 00001", "vehicle_number": "ka01ab1234"}`)
	require.Equal(t, http.StatusOK, status, string(raw))
	var confirmed struct {
		Status        models.OrderStatus `json:"status"`
		DisplayStatus string             `json:"display_status"`
		VehicleNumber string             `json:"vehicle_number"`
	}
	require.NoError(t, json.Unmarshal(raw, &confirmed))
	assert.Equal(t, models.OrderStatusConfirmed, confirmed.Status)
	assert.Equal(t, "Confirmed", confirmed.DisplayStatus)
	assert.Equal(t, "KA01AB1234", confirmed.VehicleNumber)

	status, raw = c.do(http.MethodPost, fmt.Sprintf("/api/admin/orders/%d/assign", created.ID), admin,
		fmt.Sprintf(`{"supplier_id": %d}`, supplier.ID))
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(raw), "INVALID_TRANSITION")

	status, raw = c.do(http.MethodGet, "/api/notifications", admin, "")
	require.Equal(t, http.StatusOK, status)
	var adminInbox notification.Result
	require.NoError(t, json.Unmarshal(raw, &adminInbox))
	titles := make([]string, 0, len(adminInbox.Notifications))
	for _, n := range adminInbox.Notifications {
		titles = append(titles, n.Title)
	}
	assert.Contains(t, titles, "New transport request")
	assert.Contains(t, titles, "Supplier confirmed order")

	status, raw = c.do(http.MethodGet, "/api/admin/suppliers-confirmed", admin, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "Supplier One")

	status, _ = c.do(http.MethodPost, fmt.Sprintf("/api/admin/orders/%d/forward", created.ID), admin, "")
	assert.Equal(t, http.StatusOK, status)

	status, raw = c.do(http.MethodGet, "/api/notifications", buyer, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "KA01AB1234")
}

package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"transport-backend/internal/models"
	"transport-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLogAndList(t *testing.T) {
	db := testutil.OpenDB(t)

	require.NoError(t, WriteLog(db, LogOptions{
		UserID: 1, UserRole: models.RoleAdmin, EntityType: "order", EntityID: 10,
		Action: models.AuditActionTransition, Description: "assign",
		Before: map[string]string{"status": "pending"},
		After:  map[string]string{"status": "confirmed"},
	}))
	require.NoError(t, WriteLog(db, LogOptions{
		UserID: 2, UserRole: models.RoleBuyer, EntityType: "order", EntityID: 11,
		Action: models.AuditActionCreate,
	}))
	require.NoError(t, WriteLog(db, LogOptions{
		UserID: 1, UserRole: models.RoleAdmin, EntityType: "load_type", EntityID: 10,
		Action: models.AuditActionDelete,
	}))

	logs, err := List(context.Background(), db, Filter{EntityType: "order", EntityID: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"status":"pending"}`, logs[0].BeforeData)
	assert.JSONEq(t, `{"status":"confirmed"}`, logs[0].AfterData)

	logs, err = List(context.Background(), db, Filter{UserID: 2})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "null", logs[0].BeforeData)
}

func TestListAuditLogsHandler(t *testing.T) {
	db := testutil.OpenDB(t)
	for i := uint(1); i <= 3; i++ {
		require.NoError(t, WriteLog(db, LogOptions{UserID: 1, EntityType: "order", EntityID: i, Action: models.AuditActionTransition}))
	}

	app := fiber.New()
	app.Get("/audit", ListAuditLogsHandler(db))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/audit?entity_type=order&limit=2", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body []AuditLogResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 2)
	assert.Equal(t, uint(3), body[0].EntityID)
}

package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"transport-backend/internal/apperr"
	"transport-backend/internal/auth"
	"transport-backend/internal/events"
	"transport-backend/internal/models"
	"transport-backend/internal/notification"
	"transport-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	admin    *models.User
	buyer    *models.User
	supplier *models.User
	other    *models.User
	cotton   *models.LoadType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	notifier := notification.NewNotifier(db, events.NewLocalBus(), zap.NewNop())
	return &fixture{
		db:       db,
		svc:      NewService(db, notifier, zap.NewNop()),
		admin:    testutil.CreateUser(t, db, "Admin One", models.RoleAdmin, ""),
		buyer:    testutil.CreateUser(t, db, "Buyer One", models.RoleBuyer, "9876543210"),
		supplier: testutil.CreateUser(t, db, "Supplier One", models.RoleSupplier, "9123456780"),
		other:    testutil.CreateUser(t, db, "Supplier Two", models.RoleSupplier, ""),
		cotton:   testutil.CreateLoadType(t, db, "Cotton"),
	}
}

func identity(u *models.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Role: u.Role}
}

func (f *fixture) offer(t *testing.T, o *models.Order, supplier *models.User) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.OrderSubmission{
		OrderID:     o.ID,
		SupplierID:  supplier.ID,
		SubmittedBy: f.admin.ID,
		SubmittedAt: time.Now(),
		Status:      models.SubmissionStatusSubmitted,
	}).Error)
}

func countRows(t *testing.T, db *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Table(table).Where(where, args...).Count(&n).Error)
	return n
}

func TestCreate_RequiresTonsOrGoods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	goods := 4
	tests := []struct {
		name  string
		tons  decimal.NullDecimal
		goods *int
		ok    bool
	}{
		{"neither", decimal.NullDecimal{}, nil, false},
		{"zero tons", decimal.NewNullDecimal(decimal.Zero), nil, false},
		{"tons only", decimal.NewNullDecimal(decimal.RequireFromString("7.5")), nil, true},
		{"goods only", decimal.NullDecimal{}, &goods, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := f.svc.Create(ctx, identity(f.buyer), CreateInput{
				LoadTypeID:    f.cotton.ID,
				FromDistrict:  "Bangalore",
				ToDistrict:    "Chennai",
				EstimatedTons: tt.tons,
				NumberOfGoods: tt.goods,
			})
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.OrderStatusDraft, o.Status)
			assert.True(t, strings.HasPrefix(o.OrderNumber, "ORD-"))
		})
	}
}

func TestCreate_LoadPropertyHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 40
	properties := gopter.NewProperties(params)

	properties.Property("creation succeeds iff tons or goods is positive", prop.ForAll(
		func(tons, goods int) bool {
			in := CreateInput{LoadTypeID: f.cotton.ID, FromDistrict: "Salem", ToDistrict: "Madurai"}
			if tons != 0 {
				in.EstimatedTons = decimal.NewNullDecimal(decimal.NewFromInt(int64(tons)))
			}
			if goods != 0 {
				g := goods
				in.NumberOfGoods = &g
			}
			_, err := f.svc.Create(ctx, identity(f.buyer), in)
			return (err == nil) == (tons > 0 || goods > 0)
		},
		gen.IntRange(-2, 3),
		gen.IntRange(-2, 3),
	))

	properties.TestingRun(t)
}

func TestCreate_SubmittedBuyerRequestNotifiesAdmins(t *testing.T) {
	f := newFixture(t)
	goods := 10
	o, err := f.svc.Create(context.Background(), identity(f.buyer), CreateInput{
		LoadTypeID:    f.cotton.ID,
		FromDistrict:  "Bangalore",
		ToDistrict:    "Chennai",
		NumberOfGoods: &goods,
		Submit:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.Equal(t, int64(1), countRows(t, f.db, models.TableTransportRequestNotifications, "order_id = ?", o.ID))
	assert.Equal(t, int64(1), countRows(t, f.db, "audit_logs", "entity_type = ? AND entity_id = ?", "order", o.ID))
}

func TestCreate_InactiveLoadTypeRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.cotton).Update("is_active", false).Error)

	_, err := f.svc.Create(context.Background(), identity(f.admin), CreateInput{
		LoadTypeID:    f.cotton.ID,
		FromDistrict:  "Bangalore",
		ToDistrict:    "Chennai",
		EstimatedTons: decimal.NewNullDecimal(decimal.NewFromInt(3)),
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestAssign_ConfirmedOrderIsViewOnly(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-1", f.cotton, f.buyer, models.OrderStatusConfirmed)

	_, err := f.svc.Assign(context.Background(), identity(f.admin), o.ID, f.supplier.ID, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	assert.Contains(t, err.Error(), "can no longer be edited")
}

func TestAssign_BuyerRequestBecomesConfirmed(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-2", f.cotton, f.buyer, models.OrderStatusPending)

	got, err := f.svc.Assign(context.Background(), identity(f.admin), o.ID, f.supplier.ID, "  call before loading ")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, got.Status)
	require.NotNil(t, got.AssignedSupplierID)
	assert.Equal(t, f.supplier.ID, *got.AssignedSupplierID)
	assert.Equal(t, "call before loading", got.AdminNotes)
	assert.False(t, Editable(got))

	var note models.Notification
	require.NoError(t, f.db.Table(models.TableSupplierNotifications).Where("order_id = ?", o.ID).First(&note).Error)
	assert.Equal(t, models.CategoryOrder, note.Category)
	assert.Equal(t, models.PriorityHigh, note.Priority)
	assert.Equal(t, f.supplier.ID, *note.RecipientID)
}

func TestAssign_ManualOrderReadsSent(t *testing.T) {
	f := newFixture(t)
	o, err := f.svc.Create(context.Background(), identity(f.admin), CreateInput{
		LoadTypeID:    f.cotton.ID,
		FromDistrict:  "Bangalore",
		ToDistrict:    "Chennai",
		EstimatedTons: decimal.NewNullDecimal(decimal.NewFromInt(9)),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderTypeManual, o.OrderType)
	assert.Equal(t, models.OrderStatusPending, o.Status)

	got, err := f.svc.Assign(context.Background(), identity(f.admin), o.ID, f.supplier.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAssigned, got.Status)
	assert.Equal(t, "Sent", DisplayStatus(got))

	done, err := f.svc.MarkComplete(context.Background(), identity(f.admin), o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, done.Status)
}

func TestAssign_AfterBroadcastIsConflict(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-3", f.cotton, f.buyer, models.OrderStatusPending)
	f.offer(t, o, f.other)

	_, err := f.svc.Assign(context.Background(), identity(f.admin), o.ID, f.supplier.ID, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestAssign_NonSupplierRejected(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-4", f.cotton, f.buyer, models.OrderStatusPending)

	_, err := f.svc.Assign(context.Background(), identity(f.admin), o.ID, f.buyer.ID, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestMarkComplete_Guards(t *testing.T) {
	f := newFixture(t)
	draft := testutil.CreateOrder(t, f.db, "ORD-5", f.cotton, f.buyer, models.OrderStatusDraft)
	require.NoError(t, f.db.Model(draft).Update("order_type", models.OrderTypeManual).Error)
	request := testutil.CreateOrder(t, f.db, "ORD-6", f.cotton, f.buyer, models.OrderStatusConfirmed)

	_, err := f.svc.MarkComplete(context.Background(), identity(f.admin), draft.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	assert.Contains(t, err.Error(), "status draft")

	_, err = f.svc.MarkComplete(context.Background(), identity(f.admin), request.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
}

func TestTransition_UnknownOrderIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reject(context.Background(), identity(f.admin), 9999, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestReject_ClosesOpenSubmissionsAndNotifiesBuyer(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-8", f.cotton, f.buyer, models.OrderStatusSubmitted)
	f.offer(t, o, f.supplier)
	f.offer(t, o, f.other)

	got, err := f.svc.Reject(context.Background(), identity(f.admin), o.ID, "no trucks on that route")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRejected, got.Status)
	assert.Equal(t, int64(2), countRows(t, f.db, "order_submissions", "order_id = ? AND status = ?", o.ID, models.SubmissionStatusIgnored))

	var note models.Notification
	require.NoError(t, f.db.Table(models.TableBuyerNotifications).Where("order_id = ?", o.ID).First(&note).Error)
	assert.Equal(t, models.NotificationWarning, note.Type)
	assert.Contains(t, note.Message, "no trucks on that route")

	_, err = f.svc.Reject(context.Background(), identity(f.admin), o.ID, "")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
}

func TestReject_AnyNonTerminalStatus(t *testing.T) {
	f := newFixture(t)
	statuses := []models.OrderStatus{
		models.OrderStatusDraft, models.OrderStatusPending, models.OrderStatusSubmitted,
		models.OrderStatusAssigned, models.OrderStatusConfirmed, models.OrderStatusInProgress,
		models.OrderStatusPickedUp, models.OrderStatusInTransit, models.OrderStatusDelivered,
		models.OrderStatusCompleted, models.OrderStatusRejected, models.OrderStatusCancelled,
	}
	for i, st := range statuses {
		o := testutil.CreateOrder(t, f.db, fmt.Sprintf("ORD-R%d", i), f.cotton, f.buyer, st)
		_, err := f.svc.Reject(context.Background(), identity(f.admin), o.ID, "")
		if st.Terminal() {
			assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition), st)
		} else {
			assert.NoError(t, err, st)
		}
	}
}

func TestCancel_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	intruder := testutil.CreateUser(t, f.db, "Buyer Two", models.RoleBuyer, "")
	o := testutil.CreateOrder(t, f.db, "ORD-9", f.cotton, f.buyer, models.OrderStatusPending)

	_, err := f.svc.Cancel(context.Background(), identity(intruder), o.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	got, err := f.svc.Cancel(context.Background(), identity(f.buyer), o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assert.Equal(t, int64(1), countRows(t, f.db, models.TableAdminNotifications, "order_id = ?", o.ID))
}

func TestSubmitRequest(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-10", f.cotton, f.buyer, models.OrderStatusDraft)

	got, err := f.svc.SubmitRequest(context.Background(), identity(f.buyer), o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)

	_, err = f.svc.SubmitRequest(context.Background(), identity(f.buyer), o.ID)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
}

func TestMarkBroadcast(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-11", f.cotton, f.buyer, models.OrderStatusPending)

	got, err := f.svc.MarkBroadcast(context.Background(), identity(f.admin), o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusSubmitted, got.Status)
	assert.Equal(t, "Sent to Suppliers", DisplayStatus(got))

	again, err := f.svc.MarkBroadcast(context.Background(), identity(f.admin), o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusSubmitted, again.Status)
}

func TestConfirmBySupplier_FirstWins(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-12", f.cotton, f.buyer, models.OrderStatusSubmitted)
	f.offer(t, o, f.supplier)
	f.offer(t, o, f.other)
	details := TripDetails{DriverName: "Ravi", DriverPhone: "9000000001", VehicleNumber: "ka01ab1234"}

	got, err := f.svc.ConfirmBySupplier(context.Background(), identity(f.supplier), o.ID, f.supplier.ID, details, models.SubmissionStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, got.Status)
	assert.Equal(t, "KA01AB1234", got.VehicleNumber)
	require.NotNil(t, got.ConfirmedSupplierID)
	assert.Equal(t, f.supplier.ID, *got.ConfirmedSupplierID)

	var subs []models.OrderSubmission
	require.NoError(t, f.db.Where("order_id = ?", o.ID).Order("supplier_id").Find(&subs).Error)
	require.Len(t, subs, 2)
	statuses := map[uint]models.SubmissionStatus{}
	for _, s := range subs {
		statuses[s.SupplierID] = s.Status
	}
	assert.Equal(t, models.SubmissionStatusConfirmed, statuses[f.supplier.ID])
	assert.Equal(t, models.SubmissionStatusAcceptedByOther, statuses[f.other.ID])

	_, err = f.svc.ConfirmBySupplier(context.Background(), identity(f.other), o.ID, f.other.ID, details, models.SubmissionStatusConfirmed)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))

	assert.Equal(t, int64(1), countRows(t, f.db, models.TableSupplierVehicleNotifications, "order_id = ?", o.ID))
}

func TestConfirmBySupplier_NotOffered(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-13", f.cotton, f.buyer, models.OrderStatusSubmitted)
	f.offer(t, o, f.other)

	_, err := f.svc.ConfirmBySupplier(context.Background(), identity(f.supplier), o.ID, f.supplier.ID, TripDetails{}, models.SubmissionStatusConfirmed)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestProgress_CarrierOnlyAndDeliveredNotifiesBuyer(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-14", f.cotton, f.buyer, models.OrderStatusPending)
	_, err := f.svc.Assign(context.Background(), identity(f.admin), o.ID, f.supplier.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Progress(context.Background(), identity(f.other), o.ID, models.OrderStatusPickedUp)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = f.svc.Progress(context.Background(), identity(f.supplier), o.ID, models.OrderStatusDelivered)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))

	for _, to := range []models.OrderStatus{models.OrderStatusPickedUp, models.OrderStatusInTransit, models.OrderStatusDelivered} {
		got, err := f.svc.Progress(context.Background(), identity(f.supplier), o.ID, to)
		require.NoError(t, err)
		assert.Equal(t, to, got.Status)
	}
	assert.Equal(t, int64(1), countRows(t, f.db, models.TableBuyerNotifications, "order_id = ? AND title = ?", o.ID, "Delivered"))
}

func TestForwardToBuyer(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-15", f.cotton, f.buyer, models.OrderStatusPending)
	_, err := f.svc.Assign(context.Background(), identity(f.admin), o.ID, f.supplier.ID, "")
	require.NoError(t, err)
	_, err = f.svc.UpdateTrip(context.Background(), identity(f.supplier), o.ID, TripDetails{
		DriverName: "Ravi", DriverPhone: "9000000001", VehicleNumber: "tn09 x 4321",
	})
	require.NoError(t, err)

	got, err := f.svc.ForwardToBuyer(context.Background(), identity(f.admin), o.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ForwardedToBuyerAt)

	var note models.Notification
	require.NoError(t, f.db.Table(models.TableBuyerNotifications).Where("order_id = ?", o.ID).First(&note).Error)
	assert.Contains(t, note.Message, "Supplier One")
	assert.Contains(t, note.Message, "TN09 X 4321")
}

func TestDelete_RemovesSubmissions(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-16", f.cotton, f.buyer, models.OrderStatusSubmitted)
	f.offer(t, o, f.supplier)

	require.NoError(t, f.svc.Delete(context.Background(), identity(f.admin), o.ID))
	assert.Equal(t, int64(0), countRows(t, f.db, "order_submissions", "order_id = ?", o.ID))
	_, err := f.svc.Get(context.Background(), o.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	err = f.svc.Delete(context.Background(), identity(f.admin), o.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestGetFor_Visibility(t *testing.T) {
	f := newFixture(t)
	o := testutil.CreateOrder(t, f.db, "ORD-17", f.cotton, f.buyer, models.OrderStatusSubmitted)
	f.offer(t, o, f.supplier)

	_, err := f.svc.GetFor(context.Background(), identity(f.supplier), o.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetFor(context.Background(), identity(f.other), o.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	_, err = f.svc.GetFor(context.Background(), identity(f.buyer), o.ID)
	assert.NoError(t, err)

	stranger := testutil.CreateUser(t, f.db, "Buyer Two", models.RoleBuyer, "")
	_, err = f.svc.GetFor(context.Background(), identity(stranger), o.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.NotContains(t, err.Error(), "ORD-17")
}

func TestCreateHandler_EmptyTonsWithGoods(t *testing.T) {
	f := newFixture(t)
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler(zap.NewNop())})
	app.Post("/orders", auth.JWTMiddleware(testutil.JWTSecret), CreateHandler(f.svc))

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+testutil.Token(t, f.buyer))
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := post(`{"load_type_id": 1, "from_district": "Bangalore", "to_district": "Chennai", "estimated_tons": "", "number_of_goods": 2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var view struct {
		Status        models.OrderStatus `json:"status"`
		DisplayStatus string             `json:"display_status"`
		Editable      bool               `json:"editable"`
		NumberOfGoods *int               `json:"number_of_goods"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, models.OrderStatusDraft, view.Status)
	assert.Equal(t, "Draft", view.DisplayStatus)
	assert.True(t, view.Editable)
	require.NotNil(t, view.NumberOfGoods)
	assert.Equal(t, 2, *view.NumberOfGoods)

	resp = post(`{"load_type_id": 1, "from_district": "Bangalore", "to_district": "Chennai", "estimated_tons": ""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

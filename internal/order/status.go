package order

import (
	"transport-backend/internal/models"
)

// Actions recorded in audit logs and metrics.
const (
	ActionCreate          = "create"
	ActionSubmitRequest   = "submit_request"
	ActionAssign          = "assign"
	ActionReject          = "reject"
	ActionCancel          = "cancel"
	ActionComplete        = "complete"
	ActionBroadcast       = "broadcast"
	ActionSupplierConfirm = "supplier_confirm"
	ActionProgress        = "progress"
	ActionForwardToBuyer  = "forward_to_buyer"
	ActionUpdateTrip      = "update_trip"
	ActionDelete          = "delete"
)

func statusIn(s models.OrderStatus, allowed ...models.OrderStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// Every non-terminal status can be rejected.
var rejectable = []models.OrderStatus{
	models.OrderStatusDraft,
	models.OrderStatusPending,
	models.OrderStatusSubmitted,
	models.OrderStatusAssigned,
	models.OrderStatusConfirmed,
	models.OrderStatusInProgress,
	models.OrderStatusPickedUp,
	models.OrderStatusInTransit,
	models.OrderStatusDelivered,
}

var cancellable = []models.OrderStatus{
	models.OrderStatusDraft,
	models.OrderStatusPending,
	models.OrderStatusSubmitted,
}

var completable = []models.OrderStatus{
	models.OrderStatusAssigned,
	models.OrderStatusConfirmed,
	models.OrderStatusDelivered,
}

// progressSteps lists where a carried order may move next.
var progressSteps = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusAssigned:   {models.OrderStatusInProgress, models.OrderStatusPickedUp},
	models.OrderStatusConfirmed:  {models.OrderStatusInProgress, models.OrderStatusPickedUp},
	models.OrderStatusInProgress: {models.OrderStatusPickedUp, models.OrderStatusInTransit},
	models.OrderStatusPickedUp:   {models.OrderStatusInTransit},
	models.OrderStatusInTransit:  {models.OrderStatusDelivered},
}

// carried statuses are those where a supplier is responsible for the trip
var carried = []models.OrderStatus{
	models.OrderStatusAssigned,
	models.OrderStatusConfirmed,
	models.OrderStatusInProgress,
	models.OrderStatusPickedUp,
	models.OrderStatusInTransit,
}

// CanProgress reports whether a carried order may move from one status to another.
func CanProgress(from, to models.OrderStatus) bool {
	return statusIn(to, progressSteps[from]...)
}

// Editable reports whether the assignment dialog may change the order.
// Confirmed orders are view-only, as is anything terminal or on the road.
func Editable(o *models.Order) bool {
	return statusIn(o.Status,
		models.OrderStatusDraft,
		models.OrderStatusPending,
		models.OrderStatusSubmitted,
		models.OrderStatusAssigned,
	)
}

var labels = map[models.OrderStatus]string{
	models.OrderStatusDraft:      "Draft",
	models.OrderStatusPending:    "Pending",
	models.OrderStatusSubmitted:  "Sent to Suppliers",
	models.OrderStatusAssigned:   "Assigned",
	models.OrderStatusConfirmed:  "Confirmed",
	models.OrderStatusInProgress: "In Progress",
	models.OrderStatusPickedUp:   "Picked Up",
	models.OrderStatusInTransit:  "In Transit",
	models.OrderStatusDelivered:  "Delivered",
	models.OrderStatusCompleted:  "Completed",
	models.OrderStatusRejected:   "Rejected",
	models.OrderStatusCancelled:  "Cancelled",
}

// DisplayStatus is the label dashboards show. Manual orders read "Sent"
// where buyer requests read "Assigned".
func DisplayStatus(o *models.Order) string {
	if o.Status == models.OrderStatusAssigned && o.OrderType == models.OrderTypeManual {
		return "Sent"
	}
	if l, ok := labels[o.Status]; ok {
		return l
	}
	return string(o.Status)
}

package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewNumber returns a human readable order number, ORD-20250310-3FA2C1.
func NewNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + now.Format("20060102") + "-" + strings.ToUpper(id[:6])
}

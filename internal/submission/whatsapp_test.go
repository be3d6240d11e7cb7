package submission

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"transport-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"9876543210", "919876543210"},
		{"098765 43210", "919876543210"},
		{"+91 98765-43210", "919876543210"},
		{"(044) 2345", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePhone("91", tt.in), tt.in)
	}
}

func TestWhatsAppLink_EncodesSpacesAsPercent20(t *testing.T) {
	link := WhatsAppLink("91", "9876543210", "ORD-7 Cotton & more")
	require.True(t, strings.HasPrefix(link, "https://wa.me/919876543210?text="))
	assert.Contains(t, link, "ORD-7%20Cotton%20%26%20more")

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "ORD-7 Cotton & more", u.Query().Get("text"))

	assert.Empty(t, WhatsAppLink("91", "", "hi"))
}

func TestOfferMessage(t *testing.T) {
	goods := 40
	required := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	msg := offerMessage(&models.Order{
		OrderNumber:   "ORD-7",
		LoadType:      &models.LoadType{Name: "Cotton"},
		FromDistrict:  "Bangalore",
		FromState:     "Karnataka",
		ToDistrict:    "Chennai",
		EstimatedTons: decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
		NumberOfGoods: &goods,
		RequiredDate:  &required,
	})
	assert.Contains(t, msg, "ORD-7")
	assert.Contains(t, msg, "Load: Cotton")
	assert.Contains(t, msg, "From: Bangalore, Karnataka")
	assert.Contains(t, msg, "To: Chennai\n")
	assert.Contains(t, msg, "Weight: 12.5 tons")
	assert.Contains(t, msg, "Goods: 40")
	assert.Contains(t, msg, "Required by: 20 Oct 2026")
}

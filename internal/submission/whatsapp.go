package submission

import (
	"fmt"
	"net/url"
	"strings"

	"transport-backend/internal/models"
)

// normalizePhone returns the international digits of phone, prefixing
// countryCode to bare ten digit national numbers. An empty result means no
// usable number.
func normalizePhone(countryCode, phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 11 && digits[0] == '0':
		return countryCode + digits[1:]
	case len(digits) == 10:
		return countryCode + digits
	case len(digits) < 10:
		return ""
	}
	return digits
}

// WhatsAppLink builds a wa.me deep link carrying text, or "" when phone is
// not usable.
func WhatsAppLink(countryCode, phone, text string) string {
	number := normalizePhone(countryCode, phone)
	if number == "" {
		return ""
	}
	// wa.me does not decode "+" as a space
	escaped := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return "https://wa.me/" + number + "?text=" + escaped
}

// offerMessage is the text sent to a supplier offered o.
func offerMessage(o *models.Order) string {
	lines := []string{
		"New transport request " + o.OrderNumber,
	}
	if o.LoadType != nil {
		lines = append(lines, "Load: "+o.LoadType.Name)
	}
	lines = append(lines,
		"From: "+place(o.FromDistrict, o.FromState),
		"To: "+place(o.ToDistrict, o.ToState),
	)
	if o.EstimatedTons.Valid {
		lines = append(lines, fmt.Sprintf("Weight: %s tons", o.EstimatedTons.Decimal.String()))
	}
	if o.NumberOfGoods != nil {
		lines = append(lines, fmt.Sprintf("Goods: %d", *o.NumberOfGoods))
	}
	if o.RequiredDate != nil {
		lines = append(lines, "Required by: "+o.RequiredDate.Format("02 Jan 2006"))
	}
	lines = append(lines, "Reply in the supplier dashboard to confirm.")
	return strings.Join(lines, "\n")
}

func place(district, state string) string {
	if state == "" {
		return district
	}
	return district + ", " + state
}

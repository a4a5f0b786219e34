package notification

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// Message is a rendered bilingual notification
type Message struct {
	Title     string
	English   string
	Swahili   string
	ActionURL string
}

// For returns the body in the given language, falling back to English
func (m Message) For(lang directory.Language) string {
	if lang == directory.LanguageSwahili && m.Swahili != "" {
		return m.Swahili
	}
	return m.English
}

// Render builds the bilingual message for an event
func Render(eventType EventType, p Payload) (Message, error) {
	amount := FormatTZS(p.Amount)
	date := ""
	if !p.Date.IsZero() {
		date = p.Date.Format(dates.Layout)
	}

	var m Message
	switch eventType {
	case EventLeaseCreated:
		m = Message{
			Title:   "New Lease Agreement",
			English: fmt.Sprintf("A lease agreement #%d starting %s has been created. Monthly rent: %s.", p.LeaseID, date, amount),
			Swahili: fmt.Sprintf("Mkataba wa pango #%d unaoanza %s umeundwa. Kodi ya mwezi: %s.", p.LeaseID, date, amount),
		}
	case EventLeaseActivated:
		m = Message{
			Title:   "Lease Activated",
			English: fmt.Sprintf("Lease #%d is now active from %s.", p.LeaseID, date),
			Swahili: fmt.Sprintf("Mkataba #%d sasa unatumika kuanzia %s.", p.LeaseID, date),
		}
	case EventLeaseTerminated:
		m = Message{
			Title:   "Lease Terminated",
			English: fmt.Sprintf("Lease #%d has been terminated effective %s. Reason: %s", p.LeaseID, date, p.Reason),
			Swahili: fmt.Sprintf("Mkataba #%d umesitishwa kuanzia %s. Sababu: %s", p.LeaseID, date, p.Reason),
		}
	case EventLeaseRenewed:
		m = Message{
			Title:   "Lease Renewed",
			English: fmt.Sprintf("Your lease has been renewed as lease #%d until %s. Monthly rent: %s.", p.LeaseID, date, amount),
			Swahili: fmt.Sprintf("Mkataba wako umehuishwa kama mkataba #%d hadi %s. Kodi ya mwezi: %s.", p.LeaseID, date, amount),
		}
	case EventLeaseExpired:
		m = Message{
			Title:   "Lease Expired",
			English: fmt.Sprintf("Lease #%d expired on %s.", p.LeaseID, date),
			Swahili: fmt.Sprintf("Mkataba #%d uliisha muda wake tarehe %s.", p.LeaseID, date),
		}
	case EventLeaseExpiring:
		m = Message{
			Title:   fmt.Sprintf("Lease Expiring in %d Days", p.Days),
			English: fmt.Sprintf("Lease #%d ends in %d days on %s. Contact your landlord to discuss renewal.", p.LeaseID, p.Days, date),
			Swahili: fmt.Sprintf("Mkataba #%d unaisha baada ya siku %d tarehe %s. Wasiliana na mmiliki kuhusu kuhuisha.", p.LeaseID, p.Days, date),
		}
	case EventPaymentSubmitted:
		m = Message{
			Title:   "Payment Received - Verification Required",
			English: fmt.Sprintf("Payment of %s has been submitted for %s. Please verify this payment.", amount, p.Period),
			Swahili: fmt.Sprintf("Malipo ya %s yamewasilishwa kwa %s. Tafadhali thibitisha malipo haya.", amount, p.Period),
		}
	case EventPaymentReceived:
		m = Message{
			Title:   "Payment Verified",
			English: fmt.Sprintf("Your payment of %s for %s has been verified and confirmed. Receipt number: %s", amount, p.Period, p.ReceiptNumber),
			Swahili: fmt.Sprintf("Malipo yako ya %s kwa %s yamethibitishwa. Nambari ya risiti: %s", amount, p.Period, p.ReceiptNumber),
		}
	case EventPaymentRejected:
		m = Message{
			Title:   "Payment Verification Failed",
			English: fmt.Sprintf("Your payment of %s for %s could not be verified. Reason: %s. Please contact your landlord or resubmit the payment.", amount, p.Period, p.Reason),
			Swahili: fmt.Sprintf("Malipo yako ya %s kwa %s hayakuweza kuthibitishwa. Sababu: %s. Tafadhali wasiliana na mmiliki wako au wasilisha tena malipo.", amount, p.Period, p.Reason),
		}
	case EventRentReminder:
		m = Message{
			Title:   fmt.Sprintf("Rent Payment Reminder - %d Days", p.Days),
			English: fmt.Sprintf("Reminder: Your rent payment of %s for %s is due in %d days on %s.", amount, p.Period, p.Days, date),
			Swahili: fmt.Sprintf("Kumbusho: Malipo yako ya kodi ya %s kwa %s yanadaiwa baada ya siku %d tarehe %s.", amount, p.Period, p.Days, date),
		}
	case EventRentDue:
		m = Message{
			Title:   "Rent Payment Due Today",
			English: fmt.Sprintf("Your rent payment of %s for %s is due today.", amount, p.Period),
			Swahili: fmt.Sprintf("Malipo yako ya kodi ya %s kwa %s yanadaiwa leo.", amount, p.Period),
		}
	case EventRentOverdue:
		m = Message{
			Title:   fmt.Sprintf("Rent Payment Overdue - %d Days", p.Days),
			English: fmt.Sprintf("Your rent payment of %s for %s is %d days overdue. Please make your payment as soon as possible.", amount, p.Period, p.Days),
			Swahili: fmt.Sprintf("Malipo yako ya kodi ya %s kwa %s yamechelewa kwa siku %d. Tafadhali fanya malipo haraka iwezekanavyo.", amount, p.Period, p.Days),
		}
	default:
		return Message{}, fmt.Errorf("unknown notification event %q", eventType)
	}

	switch p.EntityType {
	case EntityPayment:
		m.ActionURL = fmt.Sprintf("/payments/%d", p.EntityID)
	case EntityLease:
		m.ActionURL = fmt.Sprintf("/leases/%d", p.EntityID)
	}
	return m, nil
}

// FormatTZS renders an amount as "TZS 1,250,000.00"
func FormatTZS(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return "TZS " + sign + b.String() + "." + frac
}

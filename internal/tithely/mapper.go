package tithely

import (
	"errors"
	"strconv"
	"strings"

	"github.com/peteski22/churchbridge/internal/church"
)

// ToDomainType converts an Address to its canonical representation.
func (a *Address) ToDomainType() *church.Address {
	if a == nil {
		return nil
	}

	return &church.Address{
		City:       a.City,
		Country:    a.Country,
		Line1:      a.Line1,
		Line2:      a.Line2,
		PostalCode: a.PostalCode,
		State:      a.Region,
	}
}

// ToDomainType converts a Group to its canonical representation.
func (g *Group) ToDomainType() church.Group {
	return church.Group{
		Description: g.Description,
		ExternalID:  g.ID,
		LeaderIDs:   g.LeaderIDs,
		MemberIDs:   g.MemberIDs,
		Name:        g.Name,
		Provider:    church.ProviderTithely,
		Schedule:    g.MeetingSchedule,
	}
}

// ToDomainType converts a PaymentMethod to its canonical payment method string.
func (pm PaymentMethod) ToDomainType() string {
	switch pm {
	case PaymentMethodCard, PaymentMethodApplePay, PaymentMethodGooglePay:
		return "card"
	case PaymentMethodACH:
		return "bank_transfer"
	case PaymentMethodCash:
		return "cash"
	case PaymentMethodCheck:
		return "check"
	case "":
		return ""
	default:
		return "other"
	}
}

// ToDomainType converts a Person to its canonical representation.
func (p *Person) ToDomainType() church.Person {
	return church.Person{
		Address:    p.Address.ToDomainType(),
		Email:      strings.TrimSpace(p.Email),
		ExternalID: p.ID,
		FirstName:  p.FirstName,
		GroupIDs:   p.GroupIDs,
		LastName:   p.LastName,
		Phone:      p.Phone,
		Provider:   church.ProviderTithely,
		Status:     p.MembershipStatus,
	}
}

// ToDomainType converts a Transaction to its canonical representation.
// Amounts are reported in cents.
func (t *Transaction) ToDomainType() (church.Donation, error) {
	if t.ID == "" {
		return church.Donation{}, errors.New("transaction has no ID")
	}
	if t.Amount < 0 {
		return church.Donation{}, errors.New("transaction amount is negative")
	}

	d := church.Donation{
		Amount:        float64(t.Amount) / 100,
		Currency:      strings.ToUpper(t.Currency),
		Date:          t.CreatedAt.UTC(),
		DonorID:       t.PersonID,
		ExternalID:    t.ID,
		PaymentMethod: t.PaymentMethod.ToDomainType(),
		Provider:      church.ProviderTithely,
		Status:        t.Status,
	}

	if t.Fund != nil {
		d.Fund = t.Fund.Name
	}

	if t.IsRecurring {
		d.CustomFields = map[string]string{"recurring": strconv.FormatBool(t.IsRecurring)}
	}

	return d, nil
}

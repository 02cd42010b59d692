package breeze

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peteski22/churchbridge/internal/church"
)

// dateLayout is the timestamp format Breeze uses.
const dateLayout = "2006-01-02 15:04:05"

// ToDomainType converts a Contribution to its canonical representation.
func (c *Contribution) ToDomainType() (church.Donation, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(c.Amount), 64)
	if err != nil {
		return church.Donation{}, fmt.Errorf("parsing contribution amount %q: %w", c.Amount, err)
	}

	d := church.Donation{
		Amount:        amount,
		DonorID:       c.PersonID,
		ExternalID:    c.ID,
		PaymentMethod: normalizeMethod(c.Method),
		Provider:      church.ProviderBreeze,
		Status:        "completed",
	}

	if t, err := time.Parse(dateLayout, c.Date); err == nil {
		d.Date = t.UTC()
	}

	if len(c.Funds) > 0 {
		d.Fund = c.Funds[0].Name
	}
	if len(c.Funds) > 1 || c.BatchName != "" {
		d.CustomFields = map[string]string{}
		if c.BatchName != "" {
			d.CustomFields["batch_name"] = c.BatchName
		}
		if len(c.Funds) > 1 {
			d.CustomFields["fund_count"] = strconv.Itoa(len(c.Funds))
		}
	}

	return d, nil
}

// ToDomainType converts a Person to its canonical representation.
func (p *Person) ToDomainType() church.Person {
	first := p.FirstName
	if p.ForceFirstName != "" {
		first = p.ForceFirstName
	}

	person := church.Person{
		Email:      p.Details.Email,
		ExternalID: p.ID,
		FirstName:  first,
		GroupIDs:   p.Details.Tags,
		LastName:   p.LastName,
		Phone:      p.Details.Phone,
		Provider:   church.ProviderBreeze,
		Status:     p.Details.Status,
	}

	if p.Details.StreetAddress != "" || p.Details.City != "" {
		person.Address = &church.Address{
			City:       p.Details.City,
			Line1:      p.Details.StreetAddress,
			PostalCode: p.Details.Zip,
			State:      p.Details.State,
		}
	}

	return person
}

// ToDomainType converts a Tag to a canonical group.
func (t *Tag) ToDomainType() church.Group {
	g := church.Group{
		ExternalID: t.ID,
		Name:       t.Name,
		Provider:   church.ProviderBreeze,
	}
	if t.FolderID != "" {
		g.CustomFields = map[string]string{"folder_id": t.FolderID}
	}
	return g
}

// normalizeMethod maps Breeze payment method labels to canonical values.
func normalizeMethod(method string) string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "":
		return ""
	case "cash":
		return "cash"
	case "check", "cheque":
		return "check"
	case "credit/debit online", "credit card", "card":
		return "card"
	case "ach", "bank transfer":
		return "bank_transfer"
	default:
		return "other"
	}
}

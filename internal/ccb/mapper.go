package ccb

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peteski22/churchbridge/internal/church"
)

// ToDomainType converts a Group to its canonical representation.
func (g *Group) ToDomainType() church.Group {
	group := church.Group{
		Description: strings.TrimSpace(g.Description),
		ExternalID:  g.ID,
		Name:        strings.TrimSpace(g.Name),
		Provider:    church.ProviderCCB,
		Schedule:    strings.TrimSpace(strings.Join(nonEmpty(g.MeetingDay.Value, g.MeetingTime.Value), " ")),
	}

	if g.MainLeader.ID != "" {
		group.LeaderIDs = append(group.LeaderIDs, g.MainLeader.ID)
	}
	for _, l := range g.Leaders {
		if l.ID != "" && l.ID != g.MainLeader.ID {
			group.LeaderIDs = append(group.LeaderIDs, l.ID)
		}
	}
	for _, p := range g.Participants {
		if p.ID != "" {
			group.MemberIDs = append(group.MemberIDs, p.ID)
		}
	}

	custom := map[string]string{}
	if g.GroupType.Value != "" {
		custom["group_type"] = strings.TrimSpace(g.GroupType.Value)
	}
	if g.Campus.Value != "" {
		custom["campus"] = strings.TrimSpace(g.Campus.Value)
	}
	if g.Inactive == "true" {
		custom["inactive"] = "true"
	}
	if len(custom) > 0 {
		group.CustomFields = custom
	}

	return group
}

// ToDomainType converts an Individual to its canonical representation.
func (i *Individual) ToDomainType() church.Person {
	p := church.Person{
		Email:      strings.TrimSpace(i.Email),
		ExternalID: i.ID,
		FirstName:  strings.TrimSpace(i.FirstName),
		LastName:   strings.TrimSpace(i.LastName),
		Provider:   church.ProviderCCB,
		Status:     strings.TrimSpace(i.MembershipType.Value),
	}

	if p.Status == "" && i.Active != "" {
		if i.Active == "true" {
			p.Status = "active"
		} else {
			p.Status = "inactive"
		}
	}

	for _, ph := range i.Phones {
		number := strings.TrimSpace(ph.Number)
		if number == "" {
			continue
		}
		if p.Phone == "" || ph.Type == "mobile" {
			p.Phone = number
		}
	}

	for _, a := range i.Addresses {
		line1 := strings.TrimSpace(a.StreetAddress)
		if line1 == "" {
			line1 = strings.TrimSpace(a.Line1)
		}
		if line1 == "" && a.City == "" {
			continue
		}
		p.Address = &church.Address{
			City:       strings.TrimSpace(a.City),
			Country:    strings.TrimSpace(a.Country),
			Line1:      line1,
			Line2:      strings.TrimSpace(a.Line2),
			PostalCode: strings.TrimSpace(a.Zip),
			State:      strings.TrimSpace(a.State),
		}
		if a.Type == "mailing" {
			break
		}
	}

	for _, g := range i.Groups {
		if g.ID != "" {
			p.GroupIDs = append(p.GroupIDs, g.ID)
		}
	}

	if i.GivingNumber != "" {
		p.CustomFields = map[string]string{"giving_number": i.GivingNumber}
	}

	return p
}

// ToDomainType converts a Transaction to its canonical representation.
func (t *Transaction) ToDomainType() (church.Donation, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(t.Amount), 64)
	if err != nil {
		return church.Donation{}, fmt.Errorf("parsing transaction amount %q: %w", t.Amount, err)
	}

	d := church.Donation{
		Amount:        amount,
		DonorID:       t.Individual.ID,
		ExternalID:    t.ID,
		Fund:          strings.TrimSpace(t.COA.Value),
		PaymentMethod: normalizePaymentType(t.PaymentType),
		Provider:      church.ProviderCCB,
		Status:        "completed",
	}

	if date, err := time.Parse(time.DateOnly, strings.TrimSpace(t.Date)); err == nil {
		d.Date = date
	}

	if t.TaxDeductible != "" {
		d.CustomFields = map[string]string{"tax_deductible": t.TaxDeductible}
	}

	return d, nil
}

// nonEmpty returns the non-blank values.
func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

// normalizePaymentType maps CCB payment types to canonical values.
func normalizePaymentType(paymentType string) string {
	switch strings.ToLower(strings.TrimSpace(paymentType)) {
	case "":
		return ""
	case "cash":
		return "cash"
	case "check":
		return "check"
	case "credit card", "card":
		return "card"
	case "ach", "eft":
		return "bank_transfer"
	default:
		return "other"
	}
}

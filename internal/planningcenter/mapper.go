package planningcenter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/peteski22/churchbridge/internal/church"
)

// toDonation converts a Donation resource to its canonical representation.
func toDonation(r resource, inc included) (church.Donation, error) {
	var attrs donationAttributes
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return church.Donation{}, fmt.Errorf("decoding donation %s: %w", r.ID, err)
	}

	d := church.Donation{
		Amount:        float64(attrs.AmountCents) / 100,
		Currency:      strings.ToUpper(attrs.AmountCurrency),
		Date:          firstTime(attrs.ReceivedAt, attrs.CreatedAt),
		DonorID:       r.relatedID("person"),
		ExternalID:    r.ID,
		PaymentMethod: paymentMethod(attrs.PaymentMethod),
		Provider:      church.ProviderPlanningCenter,
		Status:        attrs.PaymentStatus,
	}
	if attrs.Refunded {
		d.Status = "refunded"
	}

	designations := r.related("designations", inc)
	if len(designations) > 0 {
		fundID := designations[0].relatedID("fund")
		d.Fund = fundID
		if fund, ok := inc[resourceID{ID: fundID, Type: "Fund"}]; ok {
			var fa fundAttributes
			if err := json.Unmarshal(fund.Attributes, &fa); err == nil && fa.Name != "" {
				d.Fund = fa.Name
			}
		}
		if len(designations) > 1 {
			d.CustomFields = map[string]string{"designation_count": strconv.Itoa(len(designations))}
		}
	}

	return d, nil
}

// toGroup converts a Group resource to its canonical representation.
func toGroup(r resource) (church.Group, error) {
	var attrs groupAttributes
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return church.Group{}, fmt.Errorf("decoding group %s: %w", r.ID, err)
	}

	custom := map[string]string{}
	if attrs.ContactEmail != "" {
		custom["contact_email"] = attrs.ContactEmail
	}
	if attrs.ArchivedAt != nil {
		custom["archived_at"] = *attrs.ArchivedAt
	}
	if groupType := r.relatedID("group_type"); groupType != "" {
		custom["group_type_id"] = groupType
	}
	custom["memberships_count"] = strconv.Itoa(attrs.MembershipsCount)

	return church.Group{
		CustomFields: custom,
		Description:  attrs.Description,
		ExternalID:   r.ID,
		Name:         attrs.Name,
		Provider:     church.ProviderPlanningCenter,
		Schedule:     attrs.Schedule,
	}, nil
}

// toPerson converts a Person resource and its sideloaded contact details to its canonical representation.
func toPerson(r resource, inc included) (church.Person, error) {
	var attrs personAttributes
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return church.Person{}, fmt.Errorf("decoding person %s: %w", r.ID, err)
	}

	p := church.Person{
		ExternalID: r.ID,
		FirstName:  attrs.FirstName,
		LastName:   attrs.LastName,
		Provider:   church.ProviderPlanningCenter,
		Status:     attrs.Status,
	}

	if email, ok := primary(r.related("emails", inc), func(e emailAttributes) bool { return e.Primary }); ok {
		p.Email = email.Address
	}
	if phone, ok := primary(r.related("phone_numbers", inc), func(ph phoneAttributes) bool { return ph.Primary }); ok {
		p.Phone = phone.Number
	}
	if addr, ok := primary(r.related("addresses", inc), func(a addressAttributes) bool { return a.Primary }); ok {
		p.Address = &church.Address{
			City:       addr.City,
			Country:    addr.Country,
			Line1:      addr.Street,
			PostalCode: addr.Zip,
			State:      addr.State,
		}
	}

	custom := map[string]string{}
	if attrs.Membership != "" {
		custom["membership"] = attrs.Membership
	}
	if attrs.Gender != "" {
		custom["gender"] = attrs.Gender
	}
	if attrs.Birthdate != "" {
		custom["birthdate"] = attrs.Birthdate
	}
	if attrs.Child {
		custom["child"] = "true"
	}
	if len(custom) > 0 {
		p.CustomFields = custom
	}

	return p, nil
}

// firstTime parses the first non-empty RFC 3339 value. Unparseable values are treated as absent.
func firstTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// paymentMethod normalizes a Planning Center payment method.
func paymentMethod(method string) string {
	switch strings.ToLower(method) {
	case "card":
		return "card"
	case "ach":
		return "bank_transfer"
	case "cash":
		return "cash"
	case "check":
		return "check"
	case "":
		return ""
	default:
		return "other"
	}
}

// primary decodes the attributes of resources and returns the one marked primary,
// falling back to the first decodable one.
func primary[T any](resources []resource, isPrimary func(T) bool) (T, bool) {
	var (
		first T
		found bool
	)
	for _, r := range resources {
		var attrs T
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			continue
		}
		if isPrimary(attrs) {
			return attrs, true
		}
		if !found {
			first, found = attrs, true
		}
	}
	return first, found
}

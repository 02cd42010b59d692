// Package planningcenter provides a church.Adapter for the Planning Center JSON:API.
package planningcenter

import (
	"bytes"

	"github.com/goccy/go-json"
)

// addressAttributes are the attributes of an Address resource.
type addressAttributes struct {
	City     string `json:"city"`
	Country  string `json:"country_code"`
	Location string `json:"location"`
	Primary  bool   `json:"primary"`
	State    string `json:"state"`
	Street   string `json:"street"`
	Zip      string `json:"zip"`
}

// donationAttributes are the attributes of a giving Donation resource.
//
//nolint:tagliatelle // External API uses snake_case.
type donationAttributes struct {
	AmountCents    int64  `json:"amount_cents"`
	AmountCurrency string `json:"amount_currency"`
	CreatedAt      string `json:"created_at"`
	PaymentMethod  string `json:"payment_method"`
	PaymentStatus  string `json:"payment_status"`
	ReceivedAt     string `json:"received_at"`
	Refunded       bool   `json:"refunded"`
	UpdatedAt      string `json:"updated_at"`
}

// emailAttributes are the attributes of an Email resource.
type emailAttributes struct {
	Address  string `json:"address"`
	Location string `json:"location"`
	Primary  bool   `json:"primary"`
}

// fundAttributes are the attributes of a giving Fund resource.
type fundAttributes struct {
	Name string `json:"name"`
}

// groupAttributes are the attributes of a groups Group resource.
//
//nolint:tagliatelle // External API uses snake_case.
type groupAttributes struct {
	ArchivedAt       *string `json:"archived_at"`
	ContactEmail     string  `json:"contact_email"`
	Description      string  `json:"description"`
	MembershipsCount int     `json:"memberships_count"`
	Name             string  `json:"name"`
	Schedule         string  `json:"schedule"`
}

// personAttributes are the attributes of a people Person resource.
//
//nolint:tagliatelle // External API uses snake_case.
type personAttributes struct {
	Birthdate  string `json:"birthdate"`
	Child      bool   `json:"child"`
	FirstName  string `json:"first_name"`
	Gender     string `json:"gender"`
	LastName   string `json:"last_name"`
	Membership string `json:"membership"`
	Status     string `json:"status"`
	UpdatedAt  string `json:"updated_at"`
}

// phoneAttributes are the attributes of a PhoneNumber resource.
type phoneAttributes struct {
	Location string `json:"location"`
	Number   string `json:"number"`
	Primary  bool   `json:"primary"`
}

// included indexes the compound-document sideloads by type and ID.
type included map[resourceID]resource

// relationship is a JSON:API relationship object whose data is a single identifier, a list or null.
type relationship struct {
	Data json.RawMessage `json:"data"`
}

// resource is a JSON:API resource object.
type resource struct {
	Attributes    json.RawMessage         `json:"attributes"`
	ID            string                  `json:"id"`
	Relationships map[string]relationship `json:"relationships"`
	Type          string                  `json:"type"`
}

// resourceID identifies a resource.
type resourceID struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// IDs returns the identifiers the relationship points to.
func (r relationship) IDs() []resourceID {
	data := bytes.TrimSpace(r.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '[' {
		var ids []resourceID
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil
		}
		return ids
	}

	var id resourceID
	if err := json.Unmarshal(data, &id); err != nil || id.ID == "" {
		return nil
	}
	return []resourceID{id}
}

// related returns the included resources referenced by the named relationship.
func (r resource) related(name string, inc included) []resource {
	rel, ok := r.Relationships[name]
	if !ok {
		return nil
	}

	var out []resource
	for _, id := range rel.IDs() {
		if res, ok := inc[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

// relatedID returns the first identifier of the named relationship, or "".
func (r resource) relatedID(name string) string {
	rel, ok := r.Relationships[name]
	if !ok {
		return ""
	}
	ids := rel.IDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[0].ID
}

// newIncluded indexes a decoded "included" array.
func newIncluded(resources []resource) included {
	inc := make(included, len(resources))
	for _, r := range resources {
		inc[resourceID{ID: r.ID, Type: r.Type}] = r
	}
	return inc
}

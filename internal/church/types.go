// Package church defines the canonical, provider-agnostic records every
// church-management adapter normalizes into.
package church

import "time"

const (
	// EntityGiving is the donation entity type.
	EntityGiving EntityType = "giving"

	// EntityGroups is the group entity type.
	EntityGroups EntityType = "groups"

	// EntityPeople is the person entity type.
	EntityPeople EntityType = "people"
)

const (
	// ProviderBreeze is a Breeze-like provider.
	ProviderBreeze Provider = "breeze"

	// ProviderCCB is a Church-Community-Builder-like provider.
	ProviderCCB Provider = "ccb"

	// ProviderPlanningCenter is a Planning-Center-like provider.
	ProviderPlanningCenter Provider = "planning_center"

	// ProviderTithely is a Tithe.ly-like provider.
	ProviderTithely Provider = "tithely"
)

// AllEntityTypes lists every entity type in sync order.
var AllEntityTypes = []EntityType{EntityPeople, EntityGroups, EntityGiving}

// Address is a postal address.
type Address struct {
	// City is the city name.
	City string `json:"city,omitempty"`

	// Country is the country name or code.
	Country string `json:"country,omitempty"`

	// Line1 is the first street line.
	Line1 string `json:"line1,omitempty"`

	// Line2 is the second street line.
	Line2 string `json:"line2,omitempty"`

	// PostalCode is the postal or ZIP code.
	PostalCode string `json:"postal_code,omitempty"`

	// State is the state, province or region.
	State string `json:"state,omitempty"`
}

// Donation is a canonical contribution record.
type Donation struct {
	// Amount is the donated amount in major currency units.
	Amount float64 `json:"amount"`

	// Currency is the three-letter currency code, when the provider reports one.
	Currency string `json:"currency,omitempty"`

	// CustomFields holds provider fields with no canonical equivalent.
	CustomFields map[string]string `json:"custom_fields,omitempty"`

	// Date is when the donation was received.
	Date time.Time `json:"date"`

	// DonorID is the provider's identifier of the donating person.
	DonorID string `json:"donor_id,omitempty"`

	// ExternalID is the provider's identifier for this donation.
	ExternalID string `json:"external_id"`

	// Fund is the fund or designation name.
	Fund string `json:"fund,omitempty"`

	// PaymentMethod is the normalized payment method.
	PaymentMethod string `json:"payment_method,omitempty"`

	// Provider is the provider the record came from.
	Provider Provider `json:"provider"`

	// Status is the provider's payment status.
	Status string `json:"status,omitempty"`
}

// EntityType names a class of canonical record.
type EntityType string

// Group is a canonical group or ministry-team record.
type Group struct {
	// CustomFields holds provider fields with no canonical equivalent.
	CustomFields map[string]string `json:"custom_fields,omitempty"`

	// Description is the group description.
	Description string `json:"description,omitempty"`

	// ExternalID is the provider's identifier for this group.
	ExternalID string `json:"external_id"`

	// LeaderIDs lists the external IDs of group leaders.
	LeaderIDs []string `json:"leader_ids,omitempty"`

	// MemberIDs lists the external IDs of group members.
	MemberIDs []string `json:"member_ids,omitempty"`

	// Name is the group name.
	Name string `json:"name"`

	// Provider is the provider the record came from.
	Provider Provider `json:"provider"`

	// Schedule describes when the group meets.
	Schedule string `json:"schedule,omitempty"`
}

// Person is a canonical contact record.
type Person struct {
	// Address is the primary address, if any.
	Address *Address `json:"address,omitempty"`

	// CustomFields holds provider fields with no canonical equivalent.
	CustomFields map[string]string `json:"custom_fields,omitempty"`

	// Email is the primary email address.
	Email string `json:"email,omitempty"`

	// ExternalID is the provider's identifier for this person.
	ExternalID string `json:"external_id"`

	// FirstName is the given name.
	FirstName string `json:"first_name,omitempty"`

	// GroupIDs lists the external IDs of groups the person belongs to.
	GroupIDs []string `json:"group_ids,omitempty"`

	// LastName is the family name.
	LastName string `json:"last_name,omitempty"`

	// Phone is the primary phone number.
	Phone string `json:"phone,omitempty"`

	// Provider is the provider the record came from.
	Provider Provider `json:"provider"`

	// Status is the membership or status tag.
	Status string `json:"status,omitempty"`
}

// Provider identifies an external church-management platform.
type Provider string

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderBreeze, ProviderCCB, ProviderPlanningCenter, ProviderTithely:
		return true
	default:
		return false
	}
}

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	switch e {
	case EntityGiving, EntityGroups, EntityPeople:
		return true
	default:
		return false
	}
}

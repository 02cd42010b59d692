// Package breeze provides a church.Adapter for the Breeze ChMS API.
package breeze

// Contribution is a giving record from /giving/list.
//
//nolint:tagliatelle // External API uses snake_case.
type Contribution struct {
	// Amount is the total as a decimal string.
	Amount string `json:"amount"`

	// BatchName is the batch the contribution was entered in.
	BatchName string `json:"batch_name"`

	// Date is the contribution date, "2006-01-02 15:04:05".
	Date string `json:"paid_on"`

	// Funds splits the amount across funds.
	Funds []FundSplit `json:"funds"`

	// ID is the payment identifier.
	ID string `json:"id"`

	// Method is the payment method label.
	Method string `json:"method"`

	// PersonID is the donor's person ID.
	PersonID string `json:"person_id"`
}

// FundSplit is the portion of a contribution given to one fund.
//
//nolint:tagliatelle // External API uses snake_case.
type FundSplit struct {
	Amount string `json:"amount"`
	FundID string `json:"fund_id"`
	Name   string `json:"name"`
}

// Person is a person record from /people with details=1.
//
//nolint:tagliatelle // External API uses snake_case.
type Person struct {
	// Details holds profile fields keyed by field name.
	Details PersonDetails `json:"details"`

	// FirstName is the given name.
	FirstName string `json:"first_name"`

	// ForceFirstName is the preferred first name, when set.
	ForceFirstName string `json:"force_first_name"`

	// ID is the person identifier.
	ID string `json:"id"`

	// LastName is the family name.
	LastName string `json:"last_name"`

	// Path is the profile image path.
	Path string `json:"path"`
}

// PersonDetails is the subset of profile fields the adapter maps.
//
//nolint:tagliatelle // External API uses snake_case.
type PersonDetails struct {
	City          string   `json:"city"`
	Email         string   `json:"email_primary"`
	Phone         string   `json:"phone_mobile"`
	State         string   `json:"state"`
	Status        string   `json:"member_status"`
	StreetAddress string   `json:"street_address"`
	Tags          []string `json:"tags"`
	Zip           string   `json:"zip"`
}

// Tag is a Breeze tag, used as a group.
//
//nolint:tagliatelle // External API uses snake_case.
type Tag struct {
	CreatedOn string `json:"created_on"`
	FolderID  string `json:"folder_id"`
	ID        string `json:"id"`
	Name      string `json:"name"`
}

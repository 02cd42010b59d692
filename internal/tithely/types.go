// Package tithely provides a church.Adapter for the Tithe.ly API.
package tithely

import "time"

const (
	// PaymentMethodACH represents an ACH bank transfer payment.
	PaymentMethodACH PaymentMethod = "ach"

	// PaymentMethodApplePay represents an Apple Pay payment.
	PaymentMethodApplePay PaymentMethod = "apple_pay"

	// PaymentMethodCard represents a credit or debit card payment.
	PaymentMethodCard PaymentMethod = "card"

	// PaymentMethodCash represents a cash gift recorded by staff.
	PaymentMethodCash PaymentMethod = "cash"

	// PaymentMethodCheck represents a check recorded by staff.
	PaymentMethodCheck PaymentMethod = "check"

	// PaymentMethodGooglePay represents a Google Pay payment.
	PaymentMethodGooglePay PaymentMethod = "google_pay"
)

// Address represents a person's address.
type Address struct {
	// City is the city name.
	City string `json:"city"`

	// Country is the country name or code.
	Country string `json:"country"`

	// Line1 is the first line of the street address.
	Line1 string `json:"line1"`

	// Line2 is the second line of the street address.
	Line2 string `json:"line2"`

	// PostalCode is the postal or ZIP code.
	PostalCode string `json:"postalCode"`

	// Region is the state or province.
	Region string `json:"region"`
}

// Fund is the fund a transaction is given to.
type Fund struct {
	// ID is the unique fund identifier.
	ID string `json:"id"`

	// Name is the fund name.
	Name string `json:"name"`
}

// Group represents a small group or ministry team.
type Group struct {
	// Description is the group description.
	Description string `json:"description"`

	// ID is the unique group identifier.
	ID string `json:"id"`

	// LeaderIDs lists the people who lead the group.
	LeaderIDs []string `json:"leaderIds"`

	// MeetingSchedule is a free-form description of when the group meets.
	MeetingSchedule string `json:"meetingSchedule"`

	// MemberIDs lists the people in the group.
	MemberIDs []string `json:"memberIds"`

	// Name is the group name.
	Name string `json:"name"`
}

// PaymentMethod represents a Tithe.ly payment method.
type PaymentMethod string

// Person represents a giver or member record.
type Person struct {
	// Address is the person's address.
	Address *Address `json:"address"`

	// Email is the person's email address.
	Email string `json:"email"`

	// FirstName is the person's first name.
	FirstName string `json:"firstName"`

	// GroupIDs lists the groups the person belongs to.
	GroupIDs []string `json:"groupIds"`

	// ID is the unique person identifier.
	ID string `json:"id"`

	// LastName is the person's last name.
	LastName string `json:"lastName"`

	// MembershipStatus is the church-defined membership status.
	MembershipStatus string `json:"membershipStatus"`

	// Phone is the person's phone number.
	Phone string `json:"phone"`
}

// Transaction represents a gift processed or recorded in Tithe.ly.
type Transaction struct {
	// Amount is the gift amount in cents.
	Amount int64 `json:"amount"`

	// CreatedAt is the transaction timestamp.
	CreatedAt time.Time `json:"createdAt"`

	// Currency is the three-letter currency code.
	Currency string `json:"currency"`

	// Fund is the fund the gift was given to.
	Fund *Fund `json:"fund"`

	// ID is the unique transaction identifier.
	ID string `json:"id"`

	// IsRecurring indicates if this is a recurring gift.
	IsRecurring bool `json:"isRecurring"`

	// PaymentMethod is the method used for payment.
	PaymentMethod PaymentMethod `json:"paymentMethod"`

	// PersonID is the giver's person ID.
	PersonID string `json:"personId"`

	// Status is the transaction status.
	Status string `json:"status"`
}

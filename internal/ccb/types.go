// Package ccb provides a church.Adapter for the Church Community Builder XML API.
package ccb

import "encoding/xml"

// Address is a postal address on an individual profile.
type Address struct {
	City          string `xml:"city"`
	Country       string `xml:"country"`
	Line1         string `xml:"line_1"`
	Line2         string `xml:"line_2"`
	State         string `xml:"state"`
	StreetAddress string `xml:"street_address"`
	Type          string `xml:"type,attr"`
	Zip           string `xml:"zip"`
}

// APIError is an error reported in the response body.
type APIError struct {
	Message string `xml:",chardata"`
	Number  string `xml:"number,attr"`
	Type    string `xml:"type,attr"`
}

// Group is a group profile.
type Group struct {
	Campus       Reference     `xml:"campus"`
	Description  string        `xml:"description"`
	GroupType    Reference     `xml:"group_type"`
	ID           string        `xml:"id,attr"`
	Inactive     string        `xml:"inactive"`
	Leaders      []Reference   `xml:"leaders>leader"`
	MainLeader   Reference     `xml:"main_leader"`
	MeetingDay   Reference     `xml:"meeting_day"`
	MeetingTime  Reference     `xml:"meeting_time"`
	Name         string        `xml:"name"`
	Participants []Participant `xml:"participants>participant"`
}

// Individual is an individual profile.
type Individual struct {
	Active         string      `xml:"active"`
	Addresses      []Address   `xml:"addresses>address"`
	Email          string      `xml:"email"`
	FirstName      string      `xml:"first_name"`
	GivingNumber   string      `xml:"giving_number"`
	Groups         []Reference `xml:"groups>group"`
	ID             string      `xml:"id,attr"`
	LastName       string      `xml:"last_name"`
	MembershipType Reference   `xml:"membership_type"`
	Phones         []Phone     `xml:"phones>phone"`
}

// Participant is a member of a group.
type Participant struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name"`
}

// Phone is a phone number on an individual profile.
type Phone struct {
	Number string `xml:",chardata"`
	Type   string `xml:"type,attr"`
}

// Reference is an element carrying an id attribute and a display value.
type Reference struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

// Transaction is a giving transaction detail.
type Transaction struct {
	Amount        string    `xml:"amount"`
	COA           Reference `xml:"coa"`
	Date          string    `xml:"date"`
	ID            string    `xml:"id,attr"`
	Individual    Reference `xml:"individual"`
	PaymentType   string    `xml:"payment_type"`
	TaxDeductible string    `xml:"tax_deductible"`
}

// envelope is the CCB response document.
type envelope struct {
	Response response `xml:"response"`
	XMLName  xml.Name `xml:"ccb_api"`
}

// response holds whichever collection the requested service returns.
type response struct {
	Errors       []APIError    `xml:"errors>error"`
	Groups       []Group       `xml:"groups>group"`
	Individuals  []Individual  `xml:"individuals>individual"`
	Service      string        `xml:"service"`
	Transactions []Transaction `xml:"transaction_details>transaction_detail"`
}

package types

// Address represents a postal address as recorded for patients and institutions
type Address struct {
	Street      string `json:"street"`
	HouseNumber string `json:"houseNumber"`
	Zip         string `json:"zip"`
	City        string `json:"city"`
	Country     string `json:"country,omitempty"` // ISO 3166-1 alpha-2, default "DE"
}

// NewAddress creates a new address with Germany as default country
func NewAddress(street, houseNumber, zip, city string) Address {
	return Address{
		Street:      street,
		HouseNumber: houseNumber,
		Zip:         zip,
		City:        city,
		Country:     "DE",
	}
}

// ContactInfo represents contact information
type ContactInfo struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

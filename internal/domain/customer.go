package domain

import "time"

// Customer is the subset of an upstream customer record this service reads.
type Customer struct {
	ID                    int64                  `json:"id"`
	Email                 string                 `json:"email"`
	FirstName             string                 `json:"first_name,omitempty"`
	LastName              string                 `json:"last_name,omitempty"`
	EmailMarketingConsent *EmailMarketingConsent `json:"email_marketing_consent,omitempty"`
	UpdatedAt             *time.Time             `json:"updated_at,omitempty"`
}

// EmailMarketingConsent mirrors the upstream consent object. ConsentUpdatedAt
// is serialized as null when unset.
type EmailMarketingConsent struct {
	State            ConsentState `json:"state"`
	ConsentUpdatedAt *time.Time   `json:"consent_updated_at"`
	OptInLevel       string       `json:"opt_in_level"`
}

package domain

import "time"

// ConsentState is the upstream email marketing state.
type ConsentState string

const (
	ConsentSubscribed   ConsentState = "subscribed"
	ConsentUnsubscribed ConsentState = "unsubscribed"
)

const (
	// AcceptsMarketingProperty is the only property a consent instruction may target.
	AcceptsMarketingProperty = "accepts_marketing"
	// OptInLevelSingle is sent with every consent update.
	OptInLevelSingle = "single_opt_in"

	ValueTrue  = "true"
	ValueFalse = "false"
)

// ConsentInstruction asks for one customer's marketing consent to be set.
type ConsentInstruction struct {
	Email         string `json:"contact_email"`
	PropertyName  string `json:"propertyName"`
	PropertyValue string `json:"propertyValue"`
}

// Subscribe reports the target state; only meaningful after validation.
func (in ConsentInstruction) Subscribe() bool {
	return in.PropertyValue == ValueTrue
}

// NewEmailMarketingConsent builds the state-transition payload. Subscribing
// stamps now; unsubscribing leaves the timestamp null.
func NewEmailMarketingConsent(subscribe bool, now time.Time) EmailMarketingConsent {
	if subscribe {
		ts := now.UTC().Truncate(time.Second)
		return EmailMarketingConsent{
			State:            ConsentSubscribed,
			ConsentUpdatedAt: &ts,
			OptInLevel:       OptInLevelSingle,
		}
	}
	return EmailMarketingConsent{
		State:      ConsentUnsubscribed,
		OptInLevel: OptInLevelSingle,
	}
}

package consent

import (
	"bytes"
	"encoding/json"

	"consent-bridge/internal/domain"
)

const (
	msgInvalidShape  = "Input must be an array of objects."
	msgMissingField  = "Each object must contain contact_email, propertyName, and propertyValue."
	msgUnsupportedPN = `propertyName must be "accepts_marketing".`
	msgInvalidValue  = `propertyValue must be "true" or "false".`
)

// Entry is one undecoded batch element. It is validated only when the
// orchestrator reaches it.
type Entry map[string]any

// DecodeBatch splits a request body into entries. Anything but a JSON array
// is rejected; elements that are not objects decode to nil entries and fail
// validation when reached.
func DecodeBatch(body []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, domain.NewError(domain.ErrInvalidInputShape, msgInvalidShape, nil)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, domain.NewError(domain.ErrInvalidInputShape, msgInvalidShape, nil)
	}

	entries := make([]Entry, len(raw))
	for i, elem := range raw {
		var e Entry
		if err := json.Unmarshal(elem, &e); err == nil {
			entries[i] = e
		}
	}
	return entries, nil
}

// Instruction validates the entry: required fields first, then the property
// name, then the value.
func (e Entry) Instruction() (domain.ConsentInstruction, error) {
	email, emailOK := e["contact_email"].(string)
	if !emailOK || email == "" || !present(e["propertyName"]) || !present(e["propertyValue"]) {
		return domain.ConsentInstruction{}, domain.NewError(domain.ErrMissingField, msgMissingField, nil)
	}
	name, ok := e["propertyName"].(string)
	if !ok || name != domain.AcceptsMarketingProperty {
		return domain.ConsentInstruction{}, domain.NewError(domain.ErrUnsupportedProperty, msgUnsupportedPN, nil)
	}
	value, ok := e["propertyValue"].(string)
	if !ok || (value != domain.ValueTrue && value != domain.ValueFalse) {
		return domain.ConsentInstruction{}, domain.NewError(domain.ErrInvalidValue, msgInvalidValue, nil)
	}
	return domain.ConsentInstruction{Email: email, PropertyName: name, PropertyValue: value}, nil
}

// present treats absent, null, false, zero and empty string as missing.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	default:
		return true
	}
}

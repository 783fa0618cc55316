package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Participant is an email address with an optional display name
type Participant struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Participants is stored as a JSON text column
type Participants []Participant

// Value implements driver.Valuer
func (p Participants) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (p *Participants) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// Emails returns the addresses in order
func (p Participants) Emails() []string {
	emails := make([]string, 0, len(p))
	for _, participant := range p {
		emails = append(emails, participant.Email)
	}
	return emails
}

// StringList is a JSON-encoded list of strings
type StringList []string

// Value implements driver.Valuer
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (s *StringList) Scan(value interface{}) error {
	return scanJSON(value, s)
}

func scanJSON(value interface{}, dst interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

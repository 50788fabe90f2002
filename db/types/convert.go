package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
)

// StringList is a list of strings stored as a single comma-separated TEXT
// column. Elements must not contain commas.
type StringList []string

var (
	_ driver.Valuer = StringList(nil)
	_ driver.Valuer = AddressList(nil)
)

// Value implements the driver.Valuer interface.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return strings.Join(l, ","), nil
}

// Scan implements the sql.Scanner interface.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
	case string:
		*l = splitList(v)
	case []byte:
		*l = splitList(string(v))
	default:
		return fmt.Errorf("unsupported string list type %T", src)
	}
	return nil
}

func splitList(s string) StringList {
	if s == "" {
		return StringList{}
	}
	return strings.Split(s, ",")
}

// AddressList is a list of email addresses stored as a JSON array of
// {"address", "personal"} objects.
type AddressList []mail.Address

type jsonAddress struct {
	Address  string `json:"address"`
	Personal string `json:"personal,omitempty"`
}

// Value implements the driver.Valuer interface.
func (l AddressList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}

	addrs := make([]jsonAddress, len(l))
	for i, a := range l {
		addrs[i] = jsonAddress{Address: a.Address, Personal: a.Name}
	}

	data, err := json.Marshal(addrs)
	if err != nil {
		return nil, fmt.Errorf("failed encoding addresses: %w", err)
	}

	return string(data), nil
}

// Scan implements the sql.Scanner interface. Stored values that can't be
// fully decoded keep the addresses read before the invalid entry, rather than
// failing the row, since addresses entered while composing a message aren't
// validated before they're stored.
func (l *AddressList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported address list type %T", src)
	}

	*l = decodeAddresses(data)

	return nil
}

func decodeAddresses(data []byte) AddressList {
	out := AddressList{}
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return out
	}

	for dec.More() {
		var a jsonAddress
		if err := dec.Decode(&a); err != nil {
			break
		}
		out = append(out, mail.Address{Name: a.Personal, Address: a.Address})
	}

	return out
}

// String returns the addresses formatted for a message header.
func (l AddressList) String() string {
	parts := make([]string, len(l))
	for i := range l {
		parts[i] = l[i].String()
	}
	return strings.Join(parts, ", ")
}

package domain

import "strings"

// Identity is a snapshot of a person's directory entry taken at write time.
// It is stored by value on memos and minutes so later profile changes never
// rewrite history.
type Identity struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Department  string `json:"department"`
	Designation string `json:"designation"`
}

// RawIdentity builds the fallback identity used when the directory cannot
// resolve an address: the address stands in for the display name.
func RawIdentity(address string) Identity {
	address = NormalizeAddress(address)
	return Identity{Email: address, Name: address}
}

// DisplayName returns Name, or the address when the name is unknown.
func (i Identity) DisplayName() string {
	if strings.TrimSpace(i.Name) != "" {
		return i.Name
	}
	return i.Email
}

// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
)

const MaxDisplayNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

// ConnID identifies one live transport connection. Assigned by the hub,
// unique per connection.
type ConnID string

// Short returns a truncated form of the identifier, used as the default
// display name for connections that never announced one.
func (id ConnID) Short() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// Peer is the read-only roster view of a connection.
type Peer struct {
	ID          ConnID `json:"peerId"`
	DisplayName string `json:"displayName"`
}

// ValidDisplayName rejects names the hub will not store.
func ValidDisplayName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}

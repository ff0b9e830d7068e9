// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

type (
	RoomName string
	Identity string
)

const (
	MaxRoomNameLen = 64
	MaxIdentityLen = 36
)

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// ConnectionState is the session lifecycle state. Transitions only move
// disconnected -> connecting -> connected and back to disconnected.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session is one logical participation in a room. Room and Identity are
// fixed for as long as the state is not disconnected.
type Session struct {
	Room       RoomName
	Identity   Identity
	Token      string
	State      ConnectionState
	MicEnabled bool
}

// ValidateRoomName keeps ad-hoc length checks out of adapters.
func ValidateRoomName(name string) error {
	if len(name) == 0 {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	return nil
}

func ValidateIdentity(identity string) error {
	if len(identity) == 0 {
		return ErrIdentityEmpty
	}
	if len(identity) > MaxIdentityLen {
		return ErrIdentityTooLong
	}
	return nil
}

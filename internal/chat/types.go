package chat

import (
	"errors"
	"fmt"
)

// Kind is the closed set of message types exchanged between client and server.
type Kind uint8

const (
	KindText Kind = iota
	KindPrivate
	KindServer
	KindRegister
	KindList
	KindExit
	KindShutdown
)

var kindNames = [...]string{
	KindText:     "TEXT",
	KindPrivate:  "PRIVATE",
	KindServer:   "SERVER_NOTICE",
	KindRegister: "REGISTER_REQUEST",
	KindList:     "LIST_REQUEST",
	KindExit:     "EXIT_REQUEST",
	KindShutdown: "SHUTDOWN_REQUEST",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return int(k) < len(kindNames) }

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, b)
}

// Mode tells who reads a session's socket next.
type Mode int32

const (
	ModeConnecting Mode = iota
	ModeLocal
	ModeGlobal
	ModeClosed
)

func (m Mode) String() string {
	switch m {
	case ModeConnecting:
		return "connecting"
	case ModeLocal:
		return "local"
	case ModeGlobal:
		return "global"
	case ModeClosed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrUnknownKind   = errors.New("unknown message kind")
	ErrSessionClosed = errors.New("session closed")
	ErrNameRejected  = errors.New("name rejected")
	ErrNotRegistered = errors.New("participant not registered")
)

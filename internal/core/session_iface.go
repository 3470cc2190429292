package core

import "github.com/dkeye/Huddle/internal/domain"

type ConnID string

// Conn is one live client transport tagged with the user identity it was
// opened with. Identity never changes for the lifetime of the connection.
type Conn interface {
	SignalConnection
	ID() ConnID
	UserID() domain.UserID
}

package app

import "github.com/dkeye/Huddle/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens to a connection whose outbound buffer is full.
type Policy interface {
	OnBackPressure(conn core.Conn) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.Conn) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops frames for slow consumers and never disconnects.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(core.Conn) BackpressureAction {
	return DropFrame
}

// PolicyByName maps a config value to a Policy, defaulting to SimplePolicy.
func PolicyByName(name string) Policy {
	if name == "drop" {
		return TolerantPolicy{}
	}
	return SimplePolicy{}
}

package app

import (
	"github.com/dkeye/owndc/internal/core"
	"github.com/rs/zerolog/log"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropFrame:
		return "drop"
	case KickMember:
		return "kick"
	default:
		return "none"
	}
}

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackPressure(sess *core.Session) BackpressureAction
}

// SimplePolicy disconnects slow consumers. Closing the connection runs
// the normal teardown path.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.Session) BackpressureAction {
	return KickMember
}

// DropPolicy keeps slow consumers connected and loses the frame.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(*core.Session) BackpressureAction {
	return DropFrame
}

// ApplyBackpressure runs p over every session that failed to accept a frame.
func ApplyBackpressure(p Policy, dropped []*core.Session) {
	if p == nil {
		return
	}
	for _, sess := range dropped {
		action := p.OnBackPressure(sess)
		log.Warn().
			Str("module", "app.policy").
			Str("sid", string(sess.ID())).
			Str("action", action.String()).
			Msg("slow consumer")
		if action == KickMember {
			sess.Signal().Close()
		}
	}
}

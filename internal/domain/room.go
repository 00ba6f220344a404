package domain

// RoomID addresses a broadcast scope. Text and voice rooms share the
// channel id space but are tracked separately.
type RoomID string

type RoomKind int

const (
	RoomText RoomKind = iota
	RoomVoice
)

func (k RoomKind) String() string {
	switch k {
	case RoomText:
		return "text"
	case RoomVoice:
		return "voice"
	default:
		return "unknown"
	}
}

type Room struct {
	ID   RoomID
	Kind RoomKind
}

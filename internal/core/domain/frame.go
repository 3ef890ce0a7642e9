package domain

type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FramePing
	FramePong
	FrameClose
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// Frame is one transport-level unit, independent of the websocket library.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

func TextFrame(b []byte) Frame {
	return Frame{Kind: FrameText, Payload: b}
}

// CloseCode is a websocket close status (RFC 6455).
type CloseCode int

const (
	CloseNormalClosure   CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	ClosePolicyViolation CloseCode = 1008
	CloseInternalError   CloseCode = 1011
)

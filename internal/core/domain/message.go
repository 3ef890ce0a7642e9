package domain

// TargetKind tells the room how to resolve Message.To.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetPeer
	TargetPeers
	TargetAll
)

func (k TargetKind) String() string {
	switch k {
	case TargetPeer:
		return "peer"
	case TargetPeers:
		return "peers"
	case TargetAll:
		return "all"
	default:
		return "none"
	}
}

// BroadcastTarget is the wire sentinel for "every member of the room".
const BroadcastTarget = "all"

type Target struct {
	Kind  TargetKind
	Peers []PeerID
}

func ToPeer(id PeerID) Target {
	return Target{Kind: TargetPeer, Peers: []PeerID{id}}
}

func ToPeers(ids ...PeerID) Target {
	cp := make([]PeerID, len(ids))
	copy(cp, ids)
	return Target{Kind: TargetPeers, Peers: cp}
}

func ToAll() Target {
	return Target{Kind: TargetAll}
}

// Peer returns the single recipient of a TargetPeer target.
func (t Target) Peer() PeerID {
	if t.Kind != TargetPeer || len(t.Peers) == 0 {
		return ""
	}
	return t.Peers[0]
}

// Message is the unit exchanged between peers. Data is opaque to the broker.
type Message struct {
	Event string
	From  PeerID
	To    Target
	Data  any
}

func NewMessage(event string, to Target, data any) Message {
	return Message{
		Event: event,
		To:    to,
		Data:  data,
	}
}

// WithFrom returns a copy stamped with the sender id.
func (m Message) WithFrom(id PeerID) Message {
	m.From = id
	if m.To.Peers != nil {
		m.To.Peers = append([]PeerID(nil), m.To.Peers...)
	}
	return m
}

func (m Message) WithTo(to Target) Message {
	m.To = to
	return m
}

const (
	EventJoined     = "joined"
	EventLeft       = "left"
	EventRoomClosed = "room_closed"
	EventError      = "error"
)

type PeerEventData struct {
	PeerID PeerID `json:"peer_id"`
}

type RoomEventData struct {
	Room string `json:"room"`
}

type ErrorData struct {
	Description string `json:"description"`
}

func Joined(id PeerID) Message {
	return Message{Event: EventJoined, Data: PeerEventData{PeerID: id}}
}

func Left(id PeerID) Message {
	return Message{Event: EventLeft, Data: PeerEventData{PeerID: id}}
}

func RoomClosed(room string) Message {
	return Message{Event: EventRoomClosed, Data: RoomEventData{Room: room}}
}

func ErrorMessage(description string) Message {
	return Message{Event: EventError, Data: ErrorData{Description: description}}
}

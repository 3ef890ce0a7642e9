// Package jsoncodec is the wire codec for signaling messages:
//
//	{"event": string, "from": string?, "to": string | [string]?, "data": any}
//
// "to" is a peer id, a list of peer ids, or "all". An inbound "from" is
// ignored; the connection stamps it. "data" is kept as raw JSON.
package jsoncodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
)

type Codec struct{}

var _ port.Codec = Codec{}

func New() Codec {
	return Codec{}
}

type messageDTO struct {
	Event string `json:"event,omitempty"`
	From  string `json:"from,omitempty"`
	To    any    `json:"to,omitempty"`
	Data  any    `json:"data"`
}

func (Codec) Decode(b []byte) (domain.Message, error) {
	// json.Valid accepts invalid UTF-8, which would be echoed into text frames.
	if !utf8.Valid(b) || !json.Valid(b) {
		return domain.Message{}, &domain.DecodeError{Kind: domain.ErrInvalidJSON}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return domain.Message{}, invalid(err)
	}
	if fields == nil {
		return domain.Message{}, invalid(errors.New("null message"))
	}

	var msg domain.Message
	if raw, ok := fields["event"]; ok {
		if err := json.Unmarshal(raw, &msg.Event); err != nil {
			return domain.Message{}, invalid(fmt.Errorf("event: %w", err))
		}
	}
	if raw, ok := fields["to"]; ok {
		to, err := decodeTarget(raw)
		if err != nil {
			return domain.Message{}, invalid(fmt.Errorf("to: %w", err))
		}
		msg.To = to
	}
	if raw, ok := fields["data"]; ok {
		msg.Data = raw
	}
	return msg, nil
}

func decodeTarget(raw json.RawMessage) (domain.Target, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return domain.Target{}, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.Target{}, err
		}
		if s == "" {
			return domain.Target{}, errors.New("empty peer id")
		}
		if s == domain.BroadcastTarget {
			return domain.ToAll(), nil
		}
		return domain.ToPeer(domain.PeerID(s)), nil
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return domain.Target{}, err
		}
		ids := make([]domain.PeerID, 0, len(list))
		for _, s := range list {
			if s == "" {
				return domain.Target{}, errors.New("empty peer id")
			}
			ids = append(ids, domain.PeerID(s))
		}
		return domain.ToPeers(ids...), nil
	default:
		return domain.Target{}, fmt.Errorf("unexpected %q", raw[0])
	}
}

func invalid(cause error) error {
	return &domain.DecodeError{Kind: domain.ErrInvalidMessage, Cause: cause}
}

func (Codec) Encode(msg domain.Message) ([]byte, error) {
	dto := messageDTO{
		Event: msg.Event,
		From:  msg.From.String(),
		To:    encodeTarget(msg.To),
		Data:  msg.Data,
	}
	return json.Marshal(dto)
}

func encodeTarget(t domain.Target) any {
	switch t.Kind {
	case domain.TargetPeer:
		return t.Peer().String()
	case domain.TargetPeers:
		ids := make([]string, len(t.Peers))
		for i, id := range t.Peers {
			ids[i] = id.String()
		}
		return ids
	case domain.TargetAll:
		return domain.BroadcastTarget
	default:
		return nil
	}
}

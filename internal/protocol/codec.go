package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrBadMessage  = errors.New("malformed message")
)

// envelope is the wire shape of every message: the type tag next to the
// payload's own fields.
type envelope struct {
	Type string `json:"type"`
}

func encode(typ string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(envelope{Type: typ})
	if err != nil {
		return nil, err
	}
	if string(body) == "{}" {
		return tag, nil
	}
	// {"type":"x"} + "," + {payload fields}
	out := make([]byte, 0, len(tag)+len(body))
	out = append(out, tag[:len(tag)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

func EncodeClient(m ClientMessage) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil client message", ErrBadMessage)
	}
	return encode(m.clientType(), m)
}

func EncodeServer(ev ServerEvent) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil server event", ErrBadMessage)
	}
	return encode(ev.serverType(), ev)
}

func typeOf(b []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return env.Type, nil
}

func decodeInto[T any](b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return v, nil
}

// DecodeClient parses one client payload and checks the fields each type
// needs.
func DecodeClient(b []byte) (ClientMessage, error) {
	typ, err := typeOf(b)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeHello:
		m, err := decodeInto[Hello](b)
		if err != nil {
			return nil, err
		}
		if !m.Mode.Valid() {
			return nil, fmt.Errorf("%w: unknown mode %q", ErrBadMessage, m.Mode)
		}
		return m, nil
	case TypeAction:
		m, err := decodeInto[Action](b)
		if err != nil {
			return nil, err
		}
		if m.Command.Command == nil {
			return nil, fmt.Errorf("%w: action without command", ErrBadMessage)
		}
		return m, nil
	case TypeCreateGame:
		return decodeInto[CreateGame](b)
	case TypeListGames:
		return ListGames{}, nil
	case TypeDeleteGame:
		return decodeInto[DeleteGame](b)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func DecodeServer(b []byte) (ServerEvent, error) {
	typ, err := typeOf(b)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeNone:
		return None{}, nil
	case TypeHello:
		return decodeInto[HelloReply](b)
	case TypeFullState:
		return decodeInto[FullState](b)
	case TypeHistoryState:
		return decodeInto[HistoryState](b)
	case TypeGameCreated:
		return decodeInto[GameCreated](b)
	case TypeGameCreationFailed:
		return decodeInto[GameCreationFailed](b)
	case TypeListGames:
		return decodeInto[GameList](b)
	case TypeListGamesFailed:
		return decodeInto[ListGamesFailed](b)
	case TypeGameDeleted:
		return decodeInto[GameDeleted](b)
	case TypeGameDeletionFailed:
		return decodeInto[GameDeletionFailed](b)
	case TypeCommandRejected:
		return decodeInto[CommandRejected](b)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

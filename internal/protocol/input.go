package protocol

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies an input event type. The values match the wire codes.
type EventKind int

const (
	EventMouseMove   EventKind = 0 // [0, x, y]
	EventMouseDown   EventKind = 1 // [1, x, y, button]
	EventMouseUp     EventKind = 2 // [2, x, y, button]
	EventMouseScroll EventKind = 3 // [3, x, y, dy]
	EventKeyDown     EventKind = 4 // [4, key]
	EventKeyUp       EventKind = 5 // [5, key]
)

func (k EventKind) String() string {
	switch k {
	case EventMouseMove:
		return "mouse_move"
	case EventMouseDown:
		return "mouse_down"
	case EventMouseUp:
		return "mouse_up"
	case EventMouseScroll:
		return "mouse_scroll"
	case EventKeyDown:
		return "key_down"
	case EventKeyUp:
		return "key_up"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Mouse buttons.
const (
	ButtonLeft   = 1
	ButtonMiddle = 2
	ButtonRight  = 3
)

// InputEvent is the decoded form of one wire input record. Which fields are
// meaningful depends on Kind; the decoder guarantees they were present with
// the right types.
type InputEvent struct {
	Kind   EventKind
	X, Y   int
	Button int
	Delta  int
	Key    string
}

// DecodeInputBatch decodes an input message (tag 0x03 followed by a JSON
// array of positional event records). Any record with an unknown type, wrong
// arity, or wrongly-typed field rejects the whole batch.
func DecodeInputBatch(msg []byte) ([]InputEvent, error) {
	if len(msg) < 1 || msg[0] != PacketInput {
		return nil, fmt.Errorf("%w: input tag", ErrMalformedPacket)
	}

	var records [][]json.RawMessage
	if err := json.Unmarshal(msg[1:], &records); err != nil {
		return nil, fmt.Errorf("%w: input json: %v", ErrMalformedPacket, err)
	}

	events := make([]InputEvent, 0, len(records))
	for i, rec := range records {
		ev, err := decodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeRecord(rec []json.RawMessage) (InputEvent, error) {
	if len(rec) == 0 {
		return InputEvent{}, fmt.Errorf("%w: empty record", ErrMalformedPacket)
	}

	var kind int
	if err := json.Unmarshal(rec[0], &kind); err != nil {
		return InputEvent{}, fmt.Errorf("%w: event type: %v", ErrMalformedPacket, err)
	}

	ev := InputEvent{Kind: EventKind(kind)}
	switch ev.Kind {
	case EventMouseMove:
		if err := decodeInts(rec[1:], 2, &ev.X, &ev.Y); err != nil {
			return InputEvent{}, err
		}
	case EventMouseDown, EventMouseUp:
		if err := decodeInts(rec[1:], 3, &ev.X, &ev.Y, &ev.Button); err != nil {
			return InputEvent{}, err
		}
	case EventMouseScroll:
		if err := decodeInts(rec[1:], 3, &ev.X, &ev.Y, &ev.Delta); err != nil {
			return InputEvent{}, err
		}
	case EventKeyDown, EventKeyUp:
		if len(rec) != 2 {
			return InputEvent{}, fmt.Errorf("%w: %s arity %d", ErrMalformedPacket, ev.Kind, len(rec)-1)
		}
		if err := json.Unmarshal(rec[1], &ev.Key); err != nil {
			return InputEvent{}, fmt.Errorf("%w: %s key: %v", ErrMalformedPacket, ev.Kind, err)
		}
	default:
		return InputEvent{}, fmt.Errorf("%w: event type %d", ErrMalformedPacket, kind)
	}
	return ev, nil
}

func decodeInts(fields []json.RawMessage, arity int, dst ...*int) error {
	if len(fields) != arity {
		return fmt.Errorf("%w: arity %d, want %d", ErrMalformedPacket, len(fields), arity)
	}
	for i, f := range fields {
		if err := json.Unmarshal(f, dst[i]); err != nil {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedPacket, i+1, err)
		}
	}
	return nil
}

// EncodeInputBatch encodes events back into wire form. The server never
// sends input packets; this exists for the browser-protocol tests.
func EncodeInputBatch(events []InputEvent) ([]byte, error) {
	records := make([][]any, 0, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case EventMouseMove:
			records = append(records, []any{int(ev.Kind), ev.X, ev.Y})
		case EventMouseDown, EventMouseUp:
			records = append(records, []any{int(ev.Kind), ev.X, ev.Y, ev.Button})
		case EventMouseScroll:
			records = append(records, []any{int(ev.Kind), ev.X, ev.Y, ev.Delta})
		case EventKeyDown, EventKeyUp:
			records = append(records, []any{int(ev.Kind), ev.Key})
		default:
			return nil, fmt.Errorf("%w: event kind %d", ErrMalformedPacket, ev.Kind)
		}
	}
	body, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 1, 1+len(body))
	msg[0] = PacketInput
	return append(msg, body...), nil
}

package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decoder is the inverse of Encoder, built for incremental input: Feed may be
// called with arbitrary byte chunks, including chunks that end mid-line or
// mid-event. An unterminated partial line is carried forward to the next Feed
// call rather than dropped or parsed early; an event is dispatched only once
// its blank-line terminator has arrived, so malformed JSON is only ever
// reported for events that are known to be complete.
type Decoder struct {
	buf       []byte
	eventType string
	data      []byte
	haveData  bool
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p to the rolling buffer and returns every event completed by
// it, in wire order. A zero-length delta decodes to no event.
func (d *Decoder) Feed(p []byte) ([]Event, error) {
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return events, nil
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		line = bytes.TrimSuffix(line, []byte("\r"))

		if len(line) == 0 {
			if d.eventType == "" && !d.haveData {
				continue
			}
			ev, err := d.dispatch()
			d.eventType = ""
			d.data = nil
			d.haveData = false
			if err != nil {
				return events, err
			}
			if ev != nil {
				events = append(events, ev)
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			d.eventType = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			d.data = append(d.data, bytes.TrimSpace(line[len("data:"):])...)
			d.haveData = true
		default:
			// SSE comments and unknown fields are skipped.
		}
	}
}

func (d *Decoder) dispatch() (Event, error) {
	switch EventType(d.eventType) {
	case EventMessageStart:
		var ev MessageStart
		if err := json.Unmarshal(d.data, &ev); err != nil {
			return nil, fmt.Errorf("decode message_start payload failed: %w", err)
		}
		return ev, nil
	case EventContentDelta:
		var ev ContentDelta
		if err := json.Unmarshal(d.data, &ev); err != nil {
			return nil, fmt.Errorf("decode content_delta payload failed: %w", err)
		}
		if ev.Delta == "" {
			return nil, nil
		}
		return ev, nil
	case EventMessageEnd:
		var ev MessageEnd
		if err := json.Unmarshal(d.data, &ev); err != nil {
			return nil, fmt.Errorf("decode message_end payload failed: %w", err)
		}
		return ev, nil
	case EventError:
		var ev ErrorEvent
		if err := json.Unmarshal(d.data, &ev); err != nil {
			return nil, fmt.Errorf("decode error payload failed: %w", err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", d.eventType)
	}
}

package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Encoder frames events as server-sent events:
//
//	event: <type>\n
//	data: <json>\n
//	\n
//
// Every event is flushed to the transport immediately. Buffering here would
// defeat the point of streaming.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

func NewEncoder(w io.Writer) *Encoder {
	flusher, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: flusher}
}

func (e *Encoder) Encode(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event failed: %w", ev.Type(), err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Type(), payload); err != nil {
		return fmt.Errorf("write %s event failed: %w", ev.Type(), err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

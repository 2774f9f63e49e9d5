package broker

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by Client.Request when no response
	// arrived within the configured timeout.
	ErrTimeout = errors.New("broker: request timed out")

	// ErrNotConnected is returned when a request or publish is issued
	// before Connect or after Disconnect.
	ErrNotConnected = errors.New("broker: not connected")

	// ErrShuttingDown is returned for requests issued while Disconnect
	// is draining in-flight requests.
	ErrShuttingDown = errors.New("broker: shutting down")

	// ErrAlreadyConnected is returned by Connect when the participant
	// already holds an open connection.
	ErrAlreadyConnected = errors.New("broker: already connected")

	// ErrAlreadyListening is returned by Listen when the participant is
	// already subscribed. A Worker listens at most once, so
	// Worker.Listen also returns it after Stop.
	ErrAlreadyListening = errors.New("broker: already listening")
)

// DecodeError marks a frame that could not be parsed. It is protocol
// damage: participants log it and keep running.
type DecodeError struct {
	Frame  string // request, response, pubsub
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker: bad %s frame: %v", e.Frame, e.Err)
	}
	return fmt.Sprintf("broker: bad %s frame: %s", e.Frame, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InsufficientRecipientsError is returned by Publisher.Publish when the
// backend reported fewer recipients than the configured minimum. The
// message was still delivered to the recipients that were listening.
type InsufficientRecipientsError struct {
	Received int64
	Minimum  int
}

func (e *InsufficientRecipientsError) Error() string {
	return fmt.Sprintf("broker: message reached %d of %d required recipients", e.Received, e.Minimum)
}

// Optional interfaces a handler error may implement to enrich the
// serialized form. Plain errors travel as message-only.
type errorNamer interface{ ErrorName() string }
type errorStacker interface{ ErrorStack() string }
type errorFielder interface{ ErrorFields() map[string]any }

// WireError is a handler error flattened for transport: message, name,
// stack and any serializable fields survive, methods do not. A client
// request that fails remotely returns a *WireError.
type WireError struct {
	Name    string
	Message string
	Stack   string
	Fields  map[string]any
}

func (e *WireError) Error() string { return e.Message }

func (e *WireError) ErrorName() string { return e.Name }

func (e *WireError) ErrorStack() string { return e.Stack }

func (e *WireError) ErrorFields() map[string]any { return e.Fields }

// MarshalJSON flattens Fields into the top-level object next to
// message, name and stack.
func (e *WireError) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		switch k {
		case "message", "name", "stack":
		default:
			flat[k] = v
		}
	}
	flat["message"] = e.Message
	if e.Name != "" {
		flat["name"] = e.Name
	}
	if e.Stack != "" {
		flat["stack"] = e.Stack
	}
	return json.Marshal(flat)
}

// UnmarshalJSON accepts either the flattened object form or, for peers
// that raised a bare value, any other JSON value, which becomes the
// message verbatim.
func (e *WireError) UnmarshalJSON(b []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(b, &flat); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			e.Message = s
		} else {
			e.Message = string(b)
		}
		e.Name = "Error"
		return nil
	}
	take := func(key string) string {
		raw, ok := flat[key]
		if !ok {
			return ""
		}
		delete(flat, key)
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw)
		}
		return s
	}
	e.Message = take("message")
	e.Name = take("name")
	e.Stack = take("stack")
	if len(flat) > 0 {
		e.Fields = make(map[string]any, len(flat))
		for k, raw := range flat {
			var v any
			if err := json.Unmarshal(raw, &v); err == nil {
				e.Fields[k] = v
			}
		}
	}
	return nil
}

// normalizeError flattens a handler error for transport.
func normalizeError(err error) *WireError {
	var we *WireError
	if errors.As(err, &we) {
		return we
	}
	out := &WireError{Name: "Error", Message: err.Error()}
	var n errorNamer
	if errors.As(err, &n) {
		out.Name = n.ErrorName()
	}
	var s errorStacker
	if errors.As(err, &s) {
		out.Stack = s.ErrorStack()
	}
	var f errorFielder
	if errors.As(err, &f) {
		out.Fields = f.ErrorFields()
	}
	return out
}

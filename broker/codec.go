package broker

import "encoding/json"

// The codec is stateless. Every frame is UTF-8 JSON; unknown top-level
// fields are ignored on parse, missing required fields are decode
// errors.

func composeRequest(id string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireRequest{ID: id, Data: raw})
}

func parseRequest(b []byte) (*wireRequest, error) {
	var req wireRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, &DecodeError{Frame: "request", Err: err}
	}
	if req.ID == "" {
		return nil, &DecodeError{Frame: "request", Reason: "missing id"}
	}
	return &req, nil
}

func composeResponse(id string, value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID       string          `json:"id"`
		Response json.RawMessage `json:"response"`
		OK       bool            `json:"ok"`
	}{ID: id, Response: raw, OK: true})
}

// composeError never fails: if the normalized error carries fields that
// do not serialize, the fields and the stack are dropped and only the
// name and message are kept.
func composeError(id string, cause error) []byte {
	frame := struct {
		ID    string     `json:"id"`
		Error *WireError `json:"error"`
		OK    bool       `json:"ok"`
	}{ID: id, Error: normalizeError(cause), OK: false}
	b, err := json.Marshal(frame)
	if err != nil {
		frame.Error = &WireError{Name: frame.Error.Name, Message: frame.Error.Message}
		b, _ = json.Marshal(frame)
	}
	return b
}

func parseResponse(b []byte) (*wireResponse, error) {
	var env struct {
		ID       string          `json:"id"`
		OK       *bool           `json:"ok"`
		Response json.RawMessage `json:"response"`
		Error    *WireError      `json:"error"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, &DecodeError{Frame: "response", Err: err}
	}
	if env.ID == "" {
		return nil, &DecodeError{Frame: "response", Reason: "missing id"}
	}
	if env.OK == nil {
		return nil, &DecodeError{Frame: "response", Reason: "missing ok"}
	}
	if !*env.OK && env.Error == nil {
		return nil, &DecodeError{Frame: "response", Reason: "missing error"}
	}
	return &wireResponse{ID: env.ID, OK: *env.OK, Response: env.Response, Error: env.Error}, nil
}

// composeNotification builds the empty wake-up frame published on a
// request-notification channel. It carries no payload: the queue list
// is the authoritative signal.
func composeNotification() []byte {
	return []byte{}
}

func composePubSubMessage(id string, message any) ([]byte, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wirePubSub{ID: id, Message: raw})
}

func parsePubSubMessage(b []byte) (*wirePubSub, error) {
	var msg wirePubSub
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, &DecodeError{Frame: "pubsub", Err: err}
	}
	if msg.ID == "" {
		return nil, &DecodeError{Frame: "pubsub", Reason: "missing id"}
	}
	if len(msg.Message) == 0 {
		return nil, &DecodeError{Frame: "pubsub", Reason: "missing message"}
	}
	return &msg, nil
}

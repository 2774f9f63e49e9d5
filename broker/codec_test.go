package broker

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		data any
		want string
	}{
		{"number", 10, "10"},
		{"string", "payload", `"payload"`},
		{"object", map[string]any{"a": 1, "b": "two"}, `{"a":1,"b":"two"}`},
		{"array", []int{1, 2, 3}, `[1,2,3]`},
		{"null", nil, `null`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := composeRequest("req-1", tc.data)
			require.NoError(t, err)
			req, err := parseRequest(b)
			require.NoError(t, err)
			assert.Equal(t, "req-1", req.ID)
			assert.JSONEq(t, tc.want, string(req.Data))
		})
	}
}

func TestParseRequestRejectsMalformed(t *testing.T) {
	var decodeErr *DecodeError

	_, err := parseRequest([]byte("not json"))
	require.ErrorAs(t, err, &decodeErr)

	_, err = parseRequest([]byte(`{"data":1}`))
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "missing id", decodeErr.Reason)
}

func TestParseRequestIgnoresUnknownFields(t *testing.T) {
	req, err := parseRequest([]byte(`{"id":"x","data":5,"extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "x", req.ID)
	assert.JSONEq(t, "5", string(req.Data))
}

func TestResponseRoundTrip(t *testing.T) {
	b, err := composeResponse("req-2", map[string]int{"n": 7})
	require.NoError(t, err)

	resp, err := parseResponse(b)
	require.NoError(t, err)
	assert.Equal(t, "req-2", resp.ID)
	assert.True(t, resp.OK)
	assert.JSONEq(t, `{"n":7}`, string(resp.Response))
	assert.Nil(t, resp.Error)
}

func TestResponseNilValueStillCarriesResponseField(t *testing.T) {
	b, err := composeResponse("req-3", nil)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"response"`)

	resp, err := parseResponse(b)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.JSONEq(t, "null", string(resp.Response))
}

func TestErrorResponseRoundTrip(t *testing.T) {
	b := composeError("req-4", errors.New("boom"))

	resp, err := parseResponse(b)
	require.NoError(t, err)
	assert.Equal(t, "req-4", resp.ID)
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", resp.Error.Message)
	assert.Equal(t, "Error", resp.Error.Name)
}

func TestParseResponseRejectsMalformed(t *testing.T) {
	var decodeErr *DecodeError
	for _, frame := range []string{
		"junk",
		`{"ok":true,"response":1}`, // no id
		`{"id":"x","response":1}`,  // no ok
		`{"id":"x","ok":false}`,    // failure without error
	} {
		_, err := parseResponse([]byte(frame))
		assert.ErrorAs(t, err, &decodeErr, "frame %q", frame)
	}
}

func TestComposeNotificationIsEmpty(t *testing.T) {
	assert.Empty(t, composeNotification())
}

func TestPubSubMessageRoundTrip(t *testing.T) {
	b, err := composePubSubMessage("msg-1", "message")
	require.NoError(t, err)

	msg, err := parsePubSubMessage(b)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
	assert.JSONEq(t, `"message"`, string(msg.Message))

	var decodeErr *DecodeError
	_, err = parsePubSubMessage([]byte(`{"id":"msg-2"}`))
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "missing message", decodeErr.Reason)
}

func TestComposeErrorSpreadsFields(t *testing.T) {
	b := composeError("req-5", &WireError{
		Name:    "ValidationError",
		Message: "bad input",
		Fields:  map[string]any{"field": "email", "code": 422},
	})

	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &frame))

	var errObj map[string]any
	require.NoError(t, json.Unmarshal(frame["error"], &errObj))
	assert.Equal(t, "bad input", errObj["message"])
	assert.Equal(t, "ValidationError", errObj["name"])
	assert.Equal(t, "email", errObj["field"])
	assert.EqualValues(t, 422, errObj["code"])
}

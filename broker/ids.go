package broker

import (
	"os"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Request and instance ids must be unique across processes: they name
// response channels and log scopes. Pub/sub message ids only need to be
// unique enough for tracing, so they stay cheap.

func newInstanceID() string { return uuid.NewString() }

func newRequestID() string { return uuid.NewString() }

var (
	messageSeq      atomic.Uint64
	messageIDPrefix = func() string {
		h, _ := os.Hostname()
		if h == "" {
			h = "h"
		}
		return h + "-"
	}()
)

func nextMessageID() string {
	return messageIDPrefix + strconv.FormatUint(messageSeq.Add(1), 36)
}

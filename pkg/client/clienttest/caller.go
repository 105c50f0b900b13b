// Package clienttest provides a scripted client.Caller for tests.
package clienttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/psantana5/dreamina/pkg/client"
)

// Reply is one scripted answer: either a response data member or an error.
type Reply struct {
	Data any
	Err  error
}

// Call is a recorded invocation.
type Call struct {
	Op   client.Operation
	Body map[string]any
}

// Caller replays Replies in order and records every call. When the script
// runs out, the last reply repeats.
type Caller struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

var _ client.Caller = (*Caller)(nil)

// New returns a Caller that answers with replies in order.
func New(replies ...Reply) *Caller {
	return &Caller{replies: replies}
}

// OK builds a successful reply carrying data.
func OK(data any) Reply { return Reply{Data: data} }

// Fail builds a failing reply.
func Fail(err error) Reply { return Reply{Err: err} }

func (c *Caller) Call(ctx context.Context, op client.Operation, body any, _ time.Duration) (*client.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("clienttest: encode body: %w", err)
	}
	var decoded map[string]any
	json.Unmarshal(raw, &decoded)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: op, Body: decoded})

	if len(c.replies) == 0 {
		return nil, fmt.Errorf("clienttest: no scripted reply for %s", op.Name)
	}
	idx := len(c.calls) - 1
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	reply := c.replies[idx]
	if reply.Err != nil {
		return nil, reply.Err
	}

	resp := &client.Response{Ret: client.RetCode{Value: "0", Present: true}}
	if reply.Data != nil {
		data, err := json.Marshal(reply.Data)
		if err != nil {
			return nil, fmt.Errorf("clienttest: encode data: %w", err)
		}
		resp.Data = data
	}
	return resp, nil
}

// Calls returns a copy of the recorded calls.
func (c *Caller) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Count returns how many calls were made.
func (c *Caller) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Last returns the most recent call. It panics when there were none.
func (c *Caller) Last() Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

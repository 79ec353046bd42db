// Package servicestest provides a scriptable backend.Invoker for tests.
package servicestest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/alouette/backend"
)

// Call is one recorded invocation. Args holds the JSON form of the
// arguments so tests can compare them without knowing the Go type.
type Call struct {
	Command backend.Command
	Args    map[string]any
}

// Reply produces the result of a command or an error.
type Reply func(ctx context.Context, args map[string]any) (any, error)

// Invoker records calls and answers them from per-command replies.
// Commands without a reply succeed with an empty result.
type Invoker struct {
	mu      sync.Mutex
	replies map[backend.Command]Reply
	calls   []Call
}

// NewInvoker returns an Invoker without replies.
func NewInvoker() *Invoker {
	return &Invoker{replies: make(map[backend.Command]Reply)}
}

// On sets the reply for command.
func (i *Invoker) On(command backend.Command, reply Reply) *Invoker {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.replies[command] = reply
	return i
}

// Returns makes command always succeed with result.
func (i *Invoker) Returns(command backend.Command, result any) *Invoker {
	return i.On(command, func(context.Context, map[string]any) (any, error) { return result, nil })
}

// Fails makes command always fail with err.
func (i *Invoker) Fails(command backend.Command, err error) *Invoker {
	return i.On(command, func(context.Context, map[string]any) (any, error) { return nil, err })
}

// Invoke implements backend.Invoker. Results travel through JSON like they
// would over the wire.
func (i *Invoker) Invoke(ctx context.Context, command backend.Command, args any, result any) error {
	var decoded map[string]any
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
	}

	i.mu.Lock()
	i.calls = append(i.calls, Call{Command: command, Args: decoded})
	reply := i.replies[command]
	i.mu.Unlock()

	if reply == nil {
		return nil
	}
	out, err := reply(ctx, decoded)
	if err != nil {
		return err
	}
	if result == nil || out == nil {
		return nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("servicestest: cannot decode reply for %s: %w", command, err)
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (i *Invoker) Calls() []Call {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Call(nil), i.calls...)
}

// CallsTo returns the recorded calls of one command.
func (i *Invoker) CallsTo(command backend.Command) []Call {
	var out []Call
	for _, c := range i.Calls() {
		if c.Command == command {
			out = append(out, c)
		}
	}
	return out
}

package rpcproxy

import (
	"context"
	"fmt"

	"github.com/DKorablin/NamedPipesProxy/codec"
	"github.com/DKorablin/NamedPipesProxy/message"
)

// BroadcastCaller issues calls against every currently connected worker
// and races their replies: the first useful (non-Null, non-Error) reply
// wins; an Error reply aborts the race immediately without waiting for
// the rest; if every worker replies Null, the call resolves to the zero
// value with no error.
type BroadcastCaller struct {
	sender Sender
}

// NewBroadcastCaller wraps sender for fan-out calls.
func NewBroadcastCaller(sender Sender) *BroadcastCaller {
	return &BroadcastCaller{sender: sender}
}

// Call fans method out to every connected worker and returns the first
// useful reply per the race policy above.
func (c *BroadcastCaller) Call(ctx context.Context, method string, args ...any) (*message.PipeMessage, error) {
	payload, err := codec.EncodeTuple(args...)
	if err != nil {
		return nil, fmt.Errorf("rpcproxy: encode args: %w", err)
	}
	req, err := message.New(method, nil)
	if err != nil {
		return nil, fmt.Errorf("rpcproxy: build request: %w", err)
	}
	req.Payload = payload

	waits, err := c.sender.Broadcast(ctx, req)
	if err != nil {
		return nil, err
	}
	return race(ctx, waits)
}

type raceOutcome struct {
	reply *message.PipeMessage
	err   error
}

// race fans out n goroutines, each waiting on one worker's reply, and
// returns as soon as one of them produces a useful (non-Null) reply or an
// Error reply — without waiting for the slower workers to finish. Once
// every wait has been drained with no useful or Error reply, race returns
// the first wait error if any wait failed, and nil otherwise (every reply
// was Null).
func race(ctx context.Context, waits []func(context.Context) (*message.PipeMessage, error)) (*message.PipeMessage, error) {
	results := make(chan raceOutcome, len(waits))
	for _, wait := range waits {
		wait := wait
		go func() {
			reply, err := wait(ctx)
			results <- raceOutcome{reply: reply, err: err}
		}()
	}

	var firstErr error
	for i := 0; i < len(waits); i++ {
		outcome := <-results
		if outcome.err != nil {
			if firstErr == nil {
				firstErr = outcome.err
			}
			continue
		}
		if outcome.reply.Type == message.TypeError {
			return unwrap(outcome.reply)
		}
		if outcome.reply.Type != message.TypeNull {
			return outcome.reply, nil
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, nil
}

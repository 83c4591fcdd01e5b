package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Dispatcher decodes incoming message bodies and routes them to the registry
type Dispatcher struct {
	registry *Registry
	guard    func(method string) *Error
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher over reg
func NewDispatcher(reg *Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// SetGuard installs a check run before every lookup. A non-nil error is sent
// back for requests; notifications that fail the guard are dropped.
func (d *Dispatcher) SetGuard(guard func(method string) *Error) {
	d.guard = guard
}

// Dispatch handles one message body. The returned channel yields exactly one
// value: the encoded response, or nil when the message needs no response.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) <-chan []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return d.dispatchBatch(ctx, trimmed)
	}
	return d.dispatchOne(ctx, trimmed)
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, body []byte) <-chan []byte {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return reply(encodeResponse(NewErrorResponse(nil, CodeParseError, fmt.Sprintf("parse error: %v", err), nil)))
	}
	if len(items) == 0 {
		return reply(encodeResponse(NewErrorResponse(nil, CodeInvalidRequest, "empty batch", nil)))
	}

	pending := make([]<-chan []byte, len(items))
	for i, item := range items {
		pending[i] = d.dispatchOne(ctx, item)
	}

	out := make(chan []byte, 1)
	go func() {
		defer close(out)
		var responses []json.RawMessage
		for _, ch := range pending {
			if resp := <-ch; resp != nil {
				responses = append(responses, resp)
			}
		}
		if len(responses) == 0 {
			out <- nil
			return
		}
		out <- mustMarshal(responses)
	}()
	return out
}

func (d *Dispatcher) dispatchOne(ctx context.Context, body []byte) <-chan []byte {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return reply(encodeResponse(NewErrorResponse(nil, CodeParseError, fmt.Sprintf("parse error: %v", err), nil)))
	}

	if env.isResponse() {
		d.log.Debug().Str("id", env.ID.String()).Msg("ignoring response from client")
		return reply(nil)
	}

	if env.Method == nil || *env.Method == "" {
		return reply(encodeResponse(NewErrorResponse(env.ID, CodeInvalidRequest, "missing method", nil)))
	}

	method := *env.Method
	isNotification := env.ID == nil

	if d.guard != nil {
		if gerr := d.guard(method); gerr != nil {
			if isNotification {
				d.log.Debug().Str("method", method).Msg("dropping guarded notification")
				return reply(nil)
			}
			return reply(encodeResponse(&Response{JSONRPCVersion: ProtocolVersion, ID: env.ID, Error: gerr}))
		}
	}

	h, ok := d.registry.Lookup(method)
	if !ok {
		if isNotification {
			d.log.Debug().Str("method", method).Msg("dropping unhandled notification")
			return reply(nil)
		}
		return reply(encodeResponse(NewErrorResponse(env.ID, CodeMethodNotFound, "method not found: "+method, nil)))
	}

	switch h := h.(type) {
	case *commandEntry:
		pending := h.call(ctx, env.Params)
		out := make(chan []byte, 1)
		go func() {
			defer close(out)
			res := <-pending
			if isNotification {
				if res.err != nil {
					d.log.Warn().Str("method", method).Str("error", res.err.Message).Msg("command sent as notification failed")
				}
				out <- nil
				return
			}
			if res.err != nil {
				out <- encodeResponse(&Response{JSONRPCVersion: ProtocolVersion, ID: env.ID, Error: res.err})
				return
			}
			out <- encodeResponse(NewResultResponse(env.ID, res.result))
		}()
		return out

	case *notificationEntry:
		if err := h.notify(ctx, env.Params); err != nil {
			d.log.Warn().Err(err).Str("method", method).Msg("dropping notification")
			if !isNotification {
				return reply(encodeResponse(NewErrorResponse(env.ID, CodeInvalidParams, err.Error(), nil)))
			}
			return reply(nil)
		}
		if !isNotification {
			// A request addressed to a notification method still gets its one response.
			return reply(encodeResponse(NewResultResponse(env.ID, nil)))
		}
		return reply(nil)

	default:
		panic(fmt.Sprintf("rpc: unknown handler type %T", h))
	}
}

func reply(body []byte) <-chan []byte {
	ch := make(chan []byte, 1)
	ch <- body
	close(ch)
	return ch
}

func encodeResponse(resp *Response) []byte {
	return mustMarshal(resp)
}

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ServerError is a domain failure returned by a command handler. It is sent to
// the client as an InternalError whose data is the encoded Data, when present.
type ServerError[E any] struct {
	Message string
	Data    *E
}

func (e *ServerError[E]) Error() string {
	return e.Message
}

// Result is the resolved outcome of a command: either Output or Err
type Result[O, E any] struct {
	Output O
	Err    *ServerError[E]
}

// Ok wraps a successful output
func Ok[O, E any](output O) Result[O, E] {
	return Result[O, E]{Output: output}
}

// Fail wraps a server error. data may be nil.
func Fail[O, E any](message string, data *E) Result[O, E] {
	return Result[O, E]{Err: &ServerError[E]{Message: message, Data: data}}
}

// Resolved returns a channel that already holds r
func Resolved[O, E any](r Result[O, E]) <-chan Result[O, E] {
	ch := make(chan Result[O, E], 1)
	ch <- r
	close(ch)
	return ch
}

// Go runs fn on its own goroutine and delivers the result on the returned channel
func Go[O, E any](fn func() Result[O, E]) <-chan Result[O, E] {
	ch := make(chan Result[O, E], 1)
	go func() {
		defer close(ch)
		ch <- fn()
	}()
	return ch
}

// CommandHandler handles a request that produces exactly one response.
// Execute must not block; the returned channel is read once.
type CommandHandler[P, O, E any] interface {
	Execute(ctx context.Context, params P) <-chan Result[O, E]
}

// InvalidParamsDefaulter can be implemented by a CommandHandler to attach a
// fixed data payload to every InvalidParams error of its method.
type InvalidParamsDefaulter[E any] interface {
	InvalidParams() (E, bool)
}

// CommandFunc adapts a function to CommandHandler
type CommandFunc[P, O, E any] func(ctx context.Context, params P) <-chan Result[O, E]

// Execute implements CommandHandler
func (f CommandFunc[P, O, E]) Execute(ctx context.Context, params P) <-chan Result[O, E] {
	return f(ctx, params)
}

// NotificationHandler handles a message that never produces a response
type NotificationHandler[P any] interface {
	Notify(ctx context.Context, params P)
}

// NotificationFunc adapts a function to NotificationHandler
type NotificationFunc[P any] func(ctx context.Context, params P)

// Notify implements NotificationHandler
func (f NotificationFunc[P]) Notify(ctx context.Context, params P) {
	f(ctx, params)
}

// Handler is a registered method: either a command or a notification.
// It can only be created with NewCommand or NewNotification.
type Handler interface {
	isHandler()
}

type outcome struct {
	result json.RawMessage
	err    *Error
}

type commandEntry struct {
	call func(ctx context.Context, params json.RawMessage) <-chan outcome
}

func (*commandEntry) isHandler() {}

type notificationEntry struct {
	notify func(ctx context.Context, params json.RawMessage) error
}

func (*notificationEntry) isHandler() {}

// NewCommand builds a command Handler around h.
//
// Params that do not decode into P produce an InvalidParams error. If h
// implements InvalidParamsDefaulter the payload is encoded here, once, and
// reused for every such error.
func NewCommand[P, O, E any](h CommandHandler[P, O, E]) Handler {
	var invalidData json.RawMessage
	if d, ok := h.(InvalidParamsDefaulter[E]); ok {
		if data, has := d.InvalidParams(); has {
			invalidData = mustMarshal(data)
		}
	}

	return &commandEntry{
		call: func(ctx context.Context, raw json.RawMessage) <-chan outcome {
			out := make(chan outcome, 1)

			var params P
			if err := decodeParams(raw, &params); err != nil {
				out <- outcome{err: &Error{
					Code:    CodeInvalidParams,
					Message: fmt.Sprintf("invalid params: %v", err),
					Data:    invalidData,
				}}
				close(out)
				return out
			}

			pending := h.Execute(ctx, params)
			go func() {
				defer close(out)
				res, ok := <-pending
				if !ok {
					out <- outcome{err: &Error{Code: CodeInternalError, Message: "handler returned no result"}}
					return
				}
				out <- encodeResult(res)
			}()
			return out
		},
	}
}

// NewNotification builds a notification Handler around h
func NewNotification[P any](h NotificationHandler[P]) Handler {
	return &notificationEntry{
		notify: func(ctx context.Context, raw json.RawMessage) error {
			var params P
			if err := decodeParams(raw, &params); err != nil {
				return fmt.Errorf("invalid params: %w", err)
			}
			h.Notify(ctx, params)
			return nil
		},
	}
}

func encodeResult[O, E any](res Result[O, E]) outcome {
	if res.Err != nil {
		e := &Error{Code: CodeInternalError, Message: res.Err.Message}
		if res.Err.Data != nil {
			e.Data = mustMarshal(res.Err.Data)
		}
		return outcome{err: e}
	}
	return outcome{result: mustMarshal(res.Output)}
}

// mustMarshal panics: handler outputs are required to be serializable
func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("rpc: failed to marshal handler value %T: %v", v, err))
	}
	return b
}

var emptyObject = json.RawMessage("{}")

func decodeParams(raw json.RawMessage, into any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = emptyObject
	}
	return json.Unmarshal(trimmed, into)
}

// Registry maps method names to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under method. Registering the same method twice is a
// programming error and panics.
func (r *Registry) Register(method string, h Handler) {
	if method == "" {
		panic("rpc: empty method name")
	}
	if h == nil {
		panic("rpc: nil handler for " + method)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[method]; exists {
		panic("rpc: multiple registrations for " + method)
	}
	r.handlers[method] = h
}

// Lookup returns the handler registered for method
func (r *Registry) Lookup(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// Methods returns the registered method names in sorted order
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

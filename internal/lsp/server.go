// Package lsp implements the glint language server on top of the rpc
// dispatcher: document synchronisation, completion, completion resolve,
// hover, document symbols and published diagnostics.
package lsp

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.lsp.dev/protocol"

	"github.com/ctagard/glint-ls/internal/analysis"
	"github.com/ctagard/glint-ls/internal/config"
	glerrors "github.com/ctagard/glint-ls/internal/errors"
	"github.com/ctagard/glint-ls/internal/rpc"
	"github.com/ctagard/glint-ls/internal/version"
)

// errData is the payload attached to every failed request
type errData = glerrors.DebugError

// Server is the glint language server
type Server struct {
	cfg  config.LSPConfig
	docs *documentStore
	uris *uriTable
	log  zerolog.Logger

	exit         *rpc.ExitToken
	shuttingDown atomic.Bool

	connMu sync.RWMutex
	conn   *rpc.Server
}

// New creates a language server
func New(cfg config.LSPConfig, log zerolog.Logger) *Server {
	var opts []analysis.Option
	if !cfg.CompletionBuiltins {
		opts = append(opts, analysis.WithoutBuiltins())
	}
	return &Server{
		cfg:  cfg,
		docs: newDocumentStore(opts...),
		uris: newURITable(),
		log:  log.With().Str("component", "lsp").Logger(),
		exit: rpc.NewExitToken(),
	}
}

// Register adds the language server methods to reg
func (s *Server) Register(reg *rpc.Registry) {
	reg.Register("initialize", rpc.NewCommand[protocol.InitializeParams, protocol.InitializeResult, protocol.InitializeError](
		initializeCommand{s}))
	reg.Register("shutdown", rpc.NewCommand[struct{}, *struct{}, errData](
		rpc.CommandFunc[struct{}, *struct{}, errData](s.shutdown)))
	reg.Register("textDocument/completion", rpc.NewCommand[protocol.CompletionParams, []protocol.CompletionItem, errData](
		rpc.CommandFunc[protocol.CompletionParams, []protocol.CompletionItem, errData](s.completion)))
	reg.Register("completionItem/resolve", rpc.NewCommand[protocol.CompletionItem, protocol.CompletionItem, errData](
		rpc.CommandFunc[protocol.CompletionItem, protocol.CompletionItem, errData](s.resolve)))
	reg.Register("textDocument/hover", rpc.NewCommand[protocol.HoverParams, *protocol.Hover, errData](
		rpc.CommandFunc[protocol.HoverParams, *protocol.Hover, errData](s.hover)))
	reg.Register("textDocument/documentSymbol", rpc.NewCommand[protocol.DocumentSymbolParams, []protocol.DocumentSymbol, errData](
		rpc.CommandFunc[protocol.DocumentSymbolParams, []protocol.DocumentSymbol, errData](s.documentSymbol)))

	reg.Register("initialized", rpc.NewNotification[protocol.InitializedParams](
		rpc.NotificationFunc[protocol.InitializedParams](s.initialized)))
	reg.Register("exit", rpc.NewNotification[struct{}](
		rpc.NotificationFunc[struct{}](s.exitNotification)))
	reg.Register("textDocument/didOpen", rpc.NewNotification[protocol.DidOpenTextDocumentParams](
		rpc.NotificationFunc[protocol.DidOpenTextDocumentParams](s.didOpen)))
	reg.Register("textDocument/didChange", rpc.NewNotification[protocol.DidChangeTextDocumentParams](
		rpc.NotificationFunc[protocol.DidChangeTextDocumentParams](s.didChange)))
	reg.Register("textDocument/didClose", rpc.NewNotification[protocol.DidCloseTextDocumentParams](
		rpc.NotificationFunc[protocol.DidCloseTextDocumentParams](s.didClose)))
}

// Serve runs the language server over in and out until the client sends
// exit, the input ends or ctx is cancelled
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	reg := rpc.NewRegistry()
	s.Register(reg)

	d := rpc.NewDispatcher(reg, s.log)
	d.SetGuard(s.guard)

	conn := rpc.NewServer(in, out, d,
		rpc.WithExitToken(s.exit),
		rpc.WithRequestTransform(s.uris.mapRequest),
		rpc.WithResponseTransform(s.uris.mapResponse),
		rpc.WithLogger(s.log),
	)
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.log.Info().Msg("language server started")
	err := conn.Run(ctx)
	s.log.Info().Int("open_documents", s.docs.count()).Msg("language server stopped")
	return err
}

// guard rejects everything but exit once shutdown was received
func (s *Server) guard(method string) *rpc.Error {
	if !s.shuttingDown.Load() || method == "exit" {
		return nil
	}
	de := glerrors.ServerShutdown()
	return &rpc.Error{Code: rpc.CodeInvalidRequest, Message: de.Message}
}

func notOpen[O any](uri protocol.DocumentURI) rpc.Result[O, errData] {
	de := glerrors.DocumentNotFound(string(uri))
	return rpc.Fail[O](de.Message, de)
}

// initializeCommand answers initialize. Malformed params are rejected with
// an InitializeError telling the client not to retry.
type initializeCommand struct {
	s *Server
}

func (c initializeCommand) Execute(_ context.Context, params protocol.InitializeParams) <-chan rpc.Result[protocol.InitializeResult, protocol.InitializeError] {
	c.s.log.Info().Int32("client_pid", params.ProcessID).Str("root", string(params.RootURI)).Msg("initialize")

	return rpc.Resolved(rpc.Ok[protocol.InitializeResult, protocol.InitializeError](protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncKindFull,
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{"."},
				ResolveProvider:   true,
			},
			HoverProvider:          true,
			DocumentSymbolProvider: true,
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    version.Name,
			Version: version.Version,
		},
	}))
}

func (initializeCommand) InvalidParams() (protocol.InitializeError, bool) {
	return protocol.InitializeError{Retry: false}, true
}

func (s *Server) initialized(context.Context, protocol.InitializedParams) {
	s.log.Debug().Msg("client initialized")
}

func (s *Server) shutdown(context.Context, struct{}) <-chan rpc.Result[*struct{}, errData] {
	s.shuttingDown.Store(true)
	s.log.Info().Msg("shutdown requested")
	return rpc.Resolved(rpc.Ok[*struct{}, errData](nil))
}

func (s *Server) exitNotification(context.Context, struct{}) {
	s.exit.Set()
}

func (s *Server) didOpen(_ context.Context, params protocol.DidOpenTextDocumentParams) {
	item := params.TextDocument
	doc := s.docs.set(item.URI, item.Version, item.Text)
	s.log.Debug().Str("uri", string(item.URI)).Int32("version", item.Version).Msg("document opened")
	s.publishDiagnostics(doc)
}

func (s *Server) didChange(_ context.Context, params protocol.DidChangeTextDocumentParams) {
	uri := params.TextDocument.URI
	if len(params.ContentChanges) == 0 {
		return
	}
	if _, ok := s.docs.get(uri); !ok {
		s.log.Warn().Str("uri", string(uri)).Msg("change for a document that is not open")
		return
	}

	// full sync: the last change holds the whole text
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	doc := s.docs.set(uri, params.TextDocument.Version, text)
	s.publishDiagnostics(doc)
}

func (s *Server) didClose(_ context.Context, params protocol.DidCloseTextDocumentParams) {
	uri := params.TextDocument.URI
	s.docs.remove(uri)
	if s.cfg.Diagnostics {
		s.notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
			URI:         s.uris.restore(uri),
			Diagnostics: []protocol.Diagnostic{},
		})
	}
}

func (s *Server) publishDiagnostics(doc *document) {
	if !s.cfg.Diagnostics {
		return
	}
	found := doc.analysis.Diagnostics()
	diags := make([]protocol.Diagnostic, 0, len(found))
	for _, d := range found {
		diags = append(diags, protocol.Diagnostic{
			Range:    doc.fromRange(d.Range),
			Severity: protocol.DiagnosticSeverity(d.Severity),
			Source:   version.Name,
			Message:  d.Message,
		})
	}
	s.notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         s.uris.restore(doc.uri),
		Version:     uint32(doc.version),
		Diagnostics: diags,
	})
}

func (s *Server) notify(method string, params any) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		return
	}
	if err := conn.Notify(method, params); err != nil {
		s.log.Error().Err(err).Str("method", method).Msg("failed to send notification")
	}
}

func completionKind(k analysis.CompletionKind) protocol.CompletionItemKind {
	if k == analysis.CompletionFunction {
		return protocol.CompletionItemKindFunction
	}
	return protocol.CompletionItemKindVariable
}

func symbolKind(k analysis.CompletionKind) protocol.SymbolKind {
	if k == analysis.CompletionFunction {
		return protocol.SymbolKindFunction
	}
	return protocol.SymbolKindVariable
}

func (s *Server) completion(_ context.Context, params protocol.CompletionParams) <-chan rpc.Result[[]protocol.CompletionItem, errData] {
	return rpc.Go(func() rpc.Result[[]protocol.CompletionItem, errData] {
		uri := params.TextDocument.URI
		doc, ok := s.docs.get(uri)
		if !ok {
			return notOpen[[]protocol.CompletionItem](uri)
		}

		found := doc.analysis.Completions(doc.toPos(params.Position))
		items := make([]protocol.CompletionItem, 0, len(found))
		for _, it := range found {
			items = append(items, protocol.CompletionItem{
				Label:  it.Label,
				Kind:   completionKind(it.Kind),
				Detail: it.Detail,
				Data: CompletionData{
					TextDocumentURI: uri,
					Position:        params.Position,
				},
			})
		}
		return rpc.Ok[[]protocol.CompletionItem, errData](items)
	})
}

func (s *Server) resolve(_ context.Context, item protocol.CompletionItem) <-chan rpc.Result[protocol.CompletionItem, errData] {
	data, ok := completionData(item)
	if !ok {
		return rpc.Resolved(rpc.Ok[protocol.CompletionItem, errData](item))
	}
	return rpc.Go(func() rpc.Result[protocol.CompletionItem, errData] {
		doc, ok := s.docs.get(data.TextDocumentURI)
		if !ok {
			return notOpen[protocol.CompletionItem](data.TextDocumentURI)
		}

		resolved := doc.analysis.Resolve(analysis.CompletionItem{
			Label:  item.Label,
			Detail: item.Detail,
		}, doc.toPos(data.Position))
		if resolved.Documentation != "" {
			item.Documentation = resolved.Documentation
		}
		return rpc.Ok[protocol.CompletionItem, errData](item)
	})
}

func (s *Server) hover(_ context.Context, params protocol.HoverParams) <-chan rpc.Result[*protocol.Hover, errData] {
	return rpc.Go(func() rpc.Result[*protocol.Hover, errData] {
		uri := params.TextDocument.URI
		doc, ok := s.docs.get(uri)
		if !ok {
			return notOpen[*protocol.Hover](uri)
		}

		h, ok := doc.analysis.Hover(doc.toPos(params.Position))
		if !ok {
			return rpc.Ok[*protocol.Hover, errData](nil)
		}
		rng := doc.fromRange(h.Range)
		return rpc.Ok[*protocol.Hover, errData](&protocol.Hover{
			Contents: protocol.MarkupContent{Kind: protocol.PlainText, Value: h.Contents},
			Range:    &rng,
		})
	})
}

func (s *Server) documentSymbol(_ context.Context, params protocol.DocumentSymbolParams) <-chan rpc.Result[[]protocol.DocumentSymbol, errData] {
	return rpc.Go(func() rpc.Result[[]protocol.DocumentSymbol, errData] {
		uri := params.TextDocument.URI
		doc, ok := s.docs.get(uri)
		if !ok {
			return notOpen[[]protocol.DocumentSymbol](uri)
		}

		found := doc.analysis.Symbols()
		symbols := make([]protocol.DocumentSymbol, 0, len(found))
		for _, sym := range found {
			symbols = append(symbols, protocol.DocumentSymbol{
				Name:           sym.Name,
				Detail:         sym.Detail,
				Kind:           symbolKind(sym.Kind),
				Range:          doc.fromRange(sym.Range),
				SelectionRange: doc.fromRange(sym.Selection),
			})
		}
		return rpc.Ok[[]protocol.DocumentSymbol, errData](symbols)
	})
}

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/glint-ls/internal/analysis"
	"github.com/ctagard/glint-ls/internal/errors"
	"github.com/ctagard/glint-ls/internal/lang"
	"github.com/ctagard/glint-ls/pkg/types"
)

const defaultRunTimeout = 10 * time.Second

// Analysis Handlers

func (s *Server) handleComplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.analyze(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pos, err := position(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resolve := request.GetBool("resolve", false)
	items := doc.Completions(pos)
	result := make([]types.Completion, 0, len(items))
	for _, item := range items {
		if resolve {
			item = doc.Resolve(item, pos)
		}
		result = append(result, types.Completion{
			Label:         item.Label,
			Kind:          kindName(item.Kind),
			Detail:        item.Detail,
			Documentation: item.Documentation,
		})
	}

	return jsonResult(map[string]interface{}{
		"completions": result,
	})
}

func (s *Server) handleHover(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.analyze(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pos, err := position(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h, ok := doc.Hover(pos)
	if !ok {
		return jsonResult(map[string]interface{}{
			"found": false,
		})
	}
	return jsonResult(map[string]interface{}{
		"found": true,
		"hover": types.HoverInfo{Contents: h.Contents, Range: toRange(h.Range)},
	})
}

func (s *Server) handleSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.analyze(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	symbols := doc.Symbols()
	result := make([]types.Symbol, 0, len(symbols))
	for _, sym := range symbols {
		result = append(result, types.Symbol{
			Name:   sym.Name,
			Kind:   kindName(sym.Kind),
			Detail: sym.Detail,
			Range:  toRange(sym.Range),
		})
	}

	return jsonResult(map[string]interface{}{
		"symbols": result,
	})
}

func (s *Server) handleDiagnostics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.analyze(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	diags := doc.Diagnostics()
	result := make([]types.Diagnostic, 0, len(diags))
	for _, d := range diags {
		result = append(result, types.Diagnostic{
			Severity: severityName(d.Severity),
			Message:  d.Message,
			Range:    toRange(d.Range),
		})
	}

	return jsonResult(map[string]interface{}{
		"diagnostics": result,
		"count":       len(result),
	})
}

// Execution Handlers

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanRunPrograms() {
		return mcp.NewToolResultError(errors.PermissionDenied("glint_run", string(s.config.Mode)).Error()), nil
	}

	src, name, err := source(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prog, err := lang.Parse(src)
	if err != nil {
		return mcp.NewToolResultError(errors.ProgramLoadFailed(name, err).Error()), nil
	}

	timeout := defaultRunTimeout
	if secs := request.GetFloat("timeoutSeconds", 0); secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer
	in := lang.New(lang.WithOutput(&out), lang.WithMaxDepth(s.config.Engine.MaxCallDepth))

	start := time.Now()
	runErr := in.Run(ctx, prog)
	result := types.RunResult{
		Output:     out.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	var rerr *lang.RuntimeError
	switch {
	case runErr == nil:
	case stderrors.Is(runErr, lang.ErrInterrupted):
		result.Interrupted = true
		result.Error = fmt.Sprintf("program interrupted after %s", timeout)
	case stderrors.As(runErr, &rerr):
		result.Error = rerr.Msg
		result.Line = rerr.Line
	default:
		result.Error = runErr.Error()
	}

	s.log.Debug().Str("program", name).Int64("duration_ms", result.DurationMs).Bool("failed", result.Error != "").Msg("glint_run")
	return jsonResult(result)
}

// Debugging Handlers

func (s *Server) handleDebugListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"sessions": s.debug.Sessions(),
	})
}

func (s *Server) handleDebugTerminateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanRunPrograms() {
		return mcp.NewToolResultError(errors.PermissionDenied("debug_terminate_session", string(s.config.Mode)).Error()), nil
	}
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("sessionId", "Use debug_list_sessions to see active sessions.").Error()), nil
	}

	info, err := s.debug.Session(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.debug.TerminateSession(sessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"program":   info.Program,
		"status":    "terminated",
	})
}

// Helpers

// source returns the program text of a request and a name for it
func source(request mcp.CallToolRequest) (string, string, error) {
	if src := request.GetString("source", ""); src != "" {
		return src, "<source>", nil
	}
	path := request.GetString("path", "")
	if path == "" {
		return "", "", errors.MissingParameter("source",
			"Pass the program text as source, or the path of a .glint file as path.")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", errors.ProgramLoadFailed(path, err)
	}
	return string(data), path, nil
}

func (s *Server) analyze(request mcp.CallToolRequest) (*analysis.Document, error) {
	src, _, err := source(request)
	if err != nil {
		return nil, err
	}
	var opts []analysis.Option
	if !s.config.LSP.CompletionBuiltins {
		opts = append(opts, analysis.WithoutBuiltins())
	}
	return analysis.Analyze(src, opts...), nil
}

func position(request mcp.CallToolRequest) (lang.Pos, error) {
	line, err := request.RequireInt("line")
	if err != nil {
		return lang.Pos{}, errors.MissingParameter("line", "Specify the 1-based line of the cursor.")
	}
	column, err := request.RequireInt("column")
	if err != nil {
		return lang.Pos{}, errors.MissingParameter("column", "Specify the 1-based column of the cursor.")
	}
	if line < 1 {
		return lang.Pos{}, errors.InvalidParameter("line", line, "a line number of 1 or more")
	}
	if column < 1 {
		return lang.Pos{}, errors.InvalidParameter("column", column, "a column number of 1 or more")
	}
	return lang.Pos{Line: line, Col: column}, nil
}

func toRange(r analysis.Range) types.Range {
	return types.Range{
		Start: types.Position{Line: r.Start.Line, Column: r.Start.Col},
		End:   types.Position{Line: r.End.Line, Column: r.End.Col},
	}
}

func kindName(k analysis.CompletionKind) string {
	if k == analysis.CompletionFunction {
		return "function"
	}
	return "variable"
}

func severityName(sev analysis.Severity) string {
	if sev == analysis.SeverityWarning {
		return "warning"
	}
	return "error"
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

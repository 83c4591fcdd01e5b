package lsp

import (
	"encoding/json"

	"go.lsp.dev/protocol"
)

// CompletionData is attached to every completion item so that
// completionItem/resolve can find the document and position again.
type CompletionData struct {
	TextDocumentURI protocol.DocumentURI `json:"textDocumentUri"`
	Position        protocol.Position    `json:"position"`
}

// completionData recovers the CompletionData of an item sent back by the
// client, where it arrives as a generic JSON object
func completionData(item protocol.CompletionItem) (CompletionData, bool) {
	if item.Data == nil {
		return CompletionData{}, false
	}
	if d, ok := item.Data.(CompletionData); ok {
		return d, true
	}
	raw, err := json.Marshal(item.Data)
	if err != nil {
		return CompletionData{}, false
	}
	var d CompletionData
	if err := json.Unmarshal(raw, &d); err != nil || d.TextDocumentURI == "" {
		return CompletionData{}, false
	}
	return d, true
}

package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/formatter"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

// LSP Protocol constants
const (
	LSPVersion = "2.0"
)

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidParams  = -32602
	CodeMethodNotFound = -32601
	CodeRequestFailed  = -32803
)

// Server speaks the language server protocol over a byte stream.
type Server struct {
	in      *bufio.Reader
	out     io.Writer
	logger  *slog.Logger
	opts    []terbium.Option
	mu      sync.Mutex
	docs    map[string]*Document
	running bool
}

// Document is an open text document and its latest analysis.
type Document struct {
	URI     string
	Content string
	Version int

	program *parser.Program
	diags   terbium.Diagnostics
}

func NewServer(in io.Reader, out io.Writer, logger *slog.Logger, opts ...terbium.Option) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		in:     bufio.NewReader(in),
		out:    out,
		logger: logger,
		opts:   opts,
		docs:   make(map[string]*Document),
	}
}

// Start serves messages until exit, EOF or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.running = true

	for s.running {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.handleMessage(); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				s.logger.Warn("lsp message failed", "err", err)
			}
		}
	}
	return nil
}

// handleMessage reads and processes a single LSP message
func (s *Server) handleMessage() error {
	contentLength := 0
	for {
		line, err := s.in.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)

		if line == "" {
			break
		}

		if strings.HasPrefix(line, "Content-Length:") {
			lengthStr := strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:"))
			contentLength, err = strconv.Atoi(lengthStr)
			if err != nil {
				return errors.Wrap(err, "invalid Content-Length")
			}
		}
	}

	if contentLength == 0 {
		return nil
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(s.in, content); err != nil {
		return err
	}

	var msg Message
	if err := json.Unmarshal(content, &msg); err != nil {
		s.sendError(nil, CodeParseError, "parse error")
		return errors.Wrap(err, "failed to parse message")
	}

	s.logger.Debug("lsp request", "method", msg.Method)
	return s.dispatch(&msg)
}

// Message is a JSON-RPC request, response or notification.
type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *ResponseError   `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) dispatch(msg *Message) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.sendResponse(msg.ID, nil)
	case "exit":
		s.running = false
		return nil
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/completion":
		return s.handleCompletion(msg)
	case "textDocument/hover":
		return s.handleHover(msg)
	case "textDocument/definition":
		return s.handleDefinition(msg)
	case "textDocument/documentSymbol":
		return s.handleDocumentSymbol(msg)
	case "textDocument/formatting":
		return s.handleFormatting(msg)
	default:
		if msg.ID != nil {
			return s.sendError(msg.ID, CodeMethodNotFound, "Method not found: "+msg.Method)
		}
		return nil
	}
}

func (s *Server) sendResponse(id *json.RawMessage, result interface{}) error {
	return s.writeMessage(map[string]interface{}{
		"jsonrpc": LSPVersion,
		"id":      id,
		"result":  result,
	})
}

func (s *Server) sendError(id *json.RawMessage, code int, message string) error {
	return s.writeMessage(map[string]interface{}{
		"jsonrpc": LSPVersion,
		"id":      id,
		"error":   ResponseError{Code: code, Message: message},
	})
}

func (s *Server) sendNotification(method string, params interface{}) error {
	return s.writeMessage(map[string]interface{}{
		"jsonrpc": LSPVersion,
		"method":  method,
		"params":  params,
	})
}

// writeMessage writes a message with LSP headers
func (s *Server) writeMessage(msg interface{}) error {
	content, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.out, "Content-Length: %d\r\n\r\n", len(content)); err != nil {
		return err
	}
	_, err = s.out.Write(content)
	return err
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerCapabilities struct {
	TextDocumentSync           int                `json:"textDocumentSync"`
	CompletionProvider         *CompletionOptions `json:"completionProvider,omitempty"`
	HoverProvider              bool               `json:"hoverProvider"`
	DefinitionProvider         bool               `json:"definitionProvider"`
	DocumentSymbolProvider     bool               `json:"documentSymbolProvider"`
	DocumentFormattingProvider bool               `json:"documentFormattingProvider"`
}

type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters"`
	ResolveProvider   bool     `json:"resolveProvider"`
}

func (s *Server) handleInitialize(msg *Message) error {
	return s.sendResponse(msg.ID, InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync:           1, // full sync
			CompletionProvider:         &CompletionOptions{TriggerCharacters: []string{"("}},
			HoverProvider:              true,
			DefinitionProvider:         true,
			DocumentSymbolProvider:     true,
			DocumentFormattingProvider: true,
		},
		ServerInfo: ServerInfo{Name: "terbium", Version: terbium.Version},
	})
}

type DidOpenParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type DidChangeParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// DocumentParams covers every request that names a document and nothing
// else, plus those that add a cursor position.
type DocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

func (s *Server) handleDidOpen(msg *Message) error {
	var params DidOpenParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	doc := s.analyze(params.TextDocument.URI, params.TextDocument.Text, params.TextDocument.Version)
	return s.publishDiagnostics(doc)
}

func (s *Server) handleDidChange(msg *Message) error {
	var params DidChangeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	if len(params.ContentChanges) == 0 {
		return nil
	}
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	doc := s.analyze(params.TextDocument.URI, text, params.TextDocument.Version)
	return s.publishDiagnostics(doc)
}

func (s *Server) handleDidClose(msg *Message) error {
	var params DocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.docs, params.TextDocument.URI)
	s.mu.Unlock()

	return s.sendNotification("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []Diagnostic{},
	})
}

// analyze runs the front end over text and stores the result.
func (s *Server) analyze(uri, text string, version int) *Document {
	program, diags := terbium.Parse(uri, text, s.opts...)
	doc := &Document{URI: uri, Content: text, Version: version, program: program, diags: diags}
	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()
	return doc
}

func (s *Server) document(uri string) (*Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

// DiagnosticSeverity values
const (
	SeverityError   = 1
	SeverityWarning = 2
)

type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Source   string `json:"source"`
}

type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     int          `json:"version"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Position is zero-based. Character counts runes.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

func (s *Server) publishDiagnostics(doc *Document) error {
	out := make([]Diagnostic, 0, len(doc.diags))
	for _, d := range doc.diags {
		severity := SeverityError
		if d.Severity == diag.Warning {
			severity = SeverityWarning
		}
		out = append(out, Diagnostic{
			Range:    spanRange(doc.Content, d.Span),
			Severity: severity,
			Message:  d.Message,
			Source:   "terbium",
		})
	}
	return s.sendNotification("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:         doc.URI,
		Version:     doc.Version,
		Diagnostics: out,
	})
}

type CompletionItem struct {
	Label         string `json:"label"`
	Kind          int    `json:"kind"`
	Detail        string `json:"detail,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	InsertText    string `json:"insertText,omitempty"`
}

// CompletionItemKind values
const (
	CompletionItemKindFunction = 3
	CompletionItemKindVariable = 6
	CompletionItemKindKeyword  = 14
	CompletionItemKindConstant = 21
)

var keywordItems = []CompletionItem{
	{Label: "func", Kind: CompletionItemKindKeyword, Detail: "Function declaration", InsertText: "func ${1:name}(${2:params}) {\n\t$0\n}"},
	{Label: "let", Kind: CompletionItemKindKeyword, Detail: "Variable declaration"},
	{Label: "const", Kind: CompletionItemKindKeyword, Detail: "Constant declaration"},
	{Label: "mut", Kind: CompletionItemKindKeyword, Detail: "Mutable binding"},
	{Label: "if", Kind: CompletionItemKindKeyword, Detail: "Conditional expression", InsertText: "if ${1:condition} {\n\t$0\n}"},
	{Label: "else", Kind: CompletionItemKindKeyword, Detail: "Else branch"},
	{Label: "while", Kind: CompletionItemKindKeyword, Detail: "While loop", InsertText: "while ${1:condition} {\n\t$0\n}"},
	{Label: "for", Kind: CompletionItemKindKeyword, Detail: "For-in loop", InsertText: "for ${1:x} in ${2:0..n} {\n\t$0\n}"},
	{Label: "in", Kind: CompletionItemKindKeyword, Detail: "For-in separator"},
	{Label: "break", Kind: CompletionItemKindKeyword, Detail: "Leave the innermost loop"},
	{Label: "continue", Kind: CompletionItemKindKeyword, Detail: "Next loop iteration"},
	{Label: "return", Kind: CompletionItemKindKeyword, Detail: "Return from a function"},
	{Label: "true", Kind: CompletionItemKindConstant, Detail: "Boolean true"},
	{Label: "false", Kind: CompletionItemKindConstant, Detail: "Boolean false"},
	{Label: "null", Kind: CompletionItemKindConstant, Detail: "Null value"},
}

// builtinItems follows the builtin table order.
var builtinItems = []CompletionItem{
	{Label: "print", Kind: CompletionItemKindFunction, Detail: "func print(value)", Documentation: "Writes the value and a newline to stdout"},
	{Label: "len", Kind: CompletionItemKindFunction, Detail: "func len(value) -> int", Documentation: "Length of a string in bytes, an array or a range"},
	{Label: "push", Kind: CompletionItemKindFunction, Detail: "func push(array, value) -> array", Documentation: "Appends value to array and returns the array"},
	{Label: "str", Kind: CompletionItemKindFunction, Detail: "func str(value) -> string", Documentation: "Converts a value to its display string"},
	{Label: "int", Kind: CompletionItemKindFunction, Detail: "func int(value) -> int", Documentation: "Converts a float, bool or numeric string to int"},
	{Label: "float", Kind: CompletionItemKindFunction, Detail: "func float(value) -> float", Documentation: "Converts an int or numeric string to float"},
	{Label: "type", Kind: CompletionItemKindFunction, Detail: "func type(value) -> string", Documentation: "Returns the type name of a value"},
}

func (s *Server) handleCompletion(msg *Message) error {
	var params DocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, CodeInvalidParams, "Invalid params")
	}

	items := []CompletionItem{}
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return s.sendResponse(msg.ID, items)
	}

	prefix := wordAt(doc.Content, params.Position)
	for _, group := range [][]CompletionItem{keywordItems, builtinItems} {
		for _, item := range group {
			if strings.HasPrefix(item.Label, prefix) {
				items = append(items, item)
			}
		}
	}
	for _, b := range doc.program.Globals {
		if strings.HasPrefix(b.Name, prefix) {
			kind := CompletionItemKindVariable
			if b.Decl == parser.DeclFunc {
				kind = CompletionItemKindFunction
			}
			items = append(items, CompletionItem{Label: b.Name, Kind: kind, Detail: b.Decl.String()})
		}
	}
	return s.sendResponse(msg.ID, items)
}

type Hover struct {
	Contents MarkupContent `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (s *Server) handleHover(msg *Message) error {
	var params DocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, CodeInvalidParams, "Invalid params")
	}
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}

	if v := variableAt(doc, params.Position); v != nil && v.Binding != nil {
		b := root(v.Binding)
		if b.Kind == parser.Builtin {
			for _, item := range builtinItems {
				if item.Label == b.Name {
					return s.hover(msg, doc, v.Span, fmt.Sprintf("```terbium\n%s\n```\n\n%s", item.Detail, item.Documentation))
				}
			}
		}
		if b.Kind != parser.Undefined {
			mut := ""
			if b.Mutable {
				mut = "mutable "
			}
			return s.hover(msg, doc, v.Span, fmt.Sprintf("**%s** (%s%s, %s)", b.Name, mut, b.Decl, v.Binding))
		}
	}

	word := wordAround(doc.Content, params.Position)
	for _, kw := range keywordItems {
		if kw.Label == word {
			return s.sendResponse(msg.ID, Hover{Contents: MarkupContent{
				Kind:  "markdown",
				Value: fmt.Sprintf("**%s** (keyword)\n\n%s", kw.Label, kw.Detail),
			}})
		}
	}
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) hover(msg *Message, doc *Document, span diag.Span, text string) error {
	r := spanRange(doc.Content, span)
	return s.sendResponse(msg.ID, Hover{
		Contents: MarkupContent{Kind: "markdown", Value: text},
		Range:    &r,
	})
}

type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

func (s *Server) handleDefinition(msg *Message) error {
	var params DocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, CodeInvalidParams, "Invalid params")
	}
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}
	v := variableAt(doc, params.Position)
	if v == nil || v.Binding == nil {
		return s.sendResponse(msg.ID, nil)
	}
	b := root(v.Binding)
	if b.Kind == parser.Undefined || b.Kind == parser.Builtin {
		return s.sendResponse(msg.ID, nil)
	}
	return s.sendResponse(msg.ID, Location{URI: doc.URI, Range: spanRange(doc.Content, b.Span)})
}

type DocumentSymbol struct {
	Name           string           `json:"name"`
	Kind           int              `json:"kind"`
	Detail         string           `json:"detail,omitempty"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolKind values
const (
	SymbolKindFunction = 12
	SymbolKindVariable = 13
	SymbolKindConstant = 14
)

func (s *Server) handleDocumentSymbol(msg *Message) error {
	var params DocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, CodeInvalidParams, "Invalid params")
	}
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return s.sendResponse(msg.ID, []DocumentSymbol{})
	}
	return s.sendResponse(msg.ID, symbols(doc.Content, doc.program.Stmts))
}

// symbols lists declarations, nesting those made inside function bodies.
func symbols(source string, stmts []parser.Stmt) []DocumentSymbol {
	out := []DocumentSymbol{}
	for _, stmt := range stmts {
		switch st := stmt.(type) {
		case *parser.FunctionStmt:
			if st.Lambda == nil {
				continue
			}
			params := make([]string, len(st.Lambda.Params))
			for i, p := range st.Lambda.Params {
				params[i] = p.Name
			}
			out = append(out, DocumentSymbol{
				Name:           st.Name,
				Kind:           SymbolKindFunction,
				Detail:         "(" + strings.Join(params, ", ") + ")",
				Range:          spanRange(source, st.Span),
				SelectionRange: spanRange(source, st.NameSpan),
				Children:       symbols(source, st.Lambda.Body.Stmts),
			})
		case *parser.LetStmt:
			kind := SymbolKindVariable
			if st.Const {
				kind = SymbolKindConstant
			}
			out = append(out, DocumentSymbol{
				Name:           st.Name,
				Kind:           kind,
				Range:          spanRange(source, st.Span),
				SelectionRange: spanRange(source, st.NameSpan),
			})
		}
	}
	return out
}

type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

func (s *Server) handleFormatting(msg *Message) error {
	var params DocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, CodeInvalidParams, "Invalid params")
	}
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return s.sendResponse(msg.ID, []TextEdit{})
	}
	formatted, err := formatter.Format(doc.Content)
	if err != nil {
		return s.sendError(msg.ID, CodeRequestFailed, err.Error())
	}
	if formatted == doc.Content {
		return s.sendResponse(msg.ID, []TextEdit{})
	}
	whole := Range{End: offsetPosition(doc.Content, len(doc.Content))}
	return s.sendResponse(msg.ID, []TextEdit{{Range: whole, NewText: formatted}})
}

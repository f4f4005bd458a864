package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/kecaknoah/compiler"
	"github.com/chazu/kecaknoah/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "kecaknoah-lsp"

var log = commonlog.GetLogger("kecaknoah.server")

// LspServer provides editor features for Kecaknoah sources: parse
// diagnostics, completion, hover and go-to-definition. The most recently
// compiled document is loaded into the worker's VM so builtins and
// declared names resolve the way they would at run time.
type LspServer struct {
	worker *VMWorker
	opts   compiler.Options

	mu   sync.Mutex
	docs map[string]*document // URI → document state

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// document is an open text document. prog is the last successful parse;
// it survives later edits that do not parse.
type document struct {
	text string
	prog *compiler.Program
}

// NewLSP creates a new LSP server.
func NewLSP(opts compiler.Options) *LspServer {
	s := &LspServer{
		worker:  NewVMWorker(vm.New()),
		opts:    opts,
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.update(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update stores the new text, re-analyzes it and publishes diagnostics.
func (s *LspServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	prog, img, diagnostics := s.analyze(text)

	s.mu.Lock()
	doc, ok := s.docs[string(uri)]
	if !ok {
		doc = &document{}
		s.docs[string(uri)] = doc
	}
	doc.text = text
	if prog != nil {
		doc.prog = prog
	}
	s.mu.Unlock()

	if img != nil {
		fresh := vm.New()
		if err := fresh.Load(img); err == nil {
			s.worker.Replace(fresh)
		}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// analyze parses and compiles text. It returns the program when parsing
// succeeds, the image when compiling succeeds too, and the diagnostics to
// publish (empty, never nil).
func (s *LspServer) analyze(text string) (*compiler.Program, *vm.Image, []protocol.Diagnostic) {
	diagnostics := []protocol.Diagnostic{}

	prog, err := compiler.ParseSource(text)
	if err != nil {
		var perr *compiler.ParseError
		if errors.As(err, &perr) {
			diagnostics = append(diagnostics, diagnostic(perr.Line, perr.Column, perr.Message))
		} else {
			diagnostics = append(diagnostics, diagnostic(1, 1, err.Error()))
		}
		log.Debugf("parse failed: %s", err)
		return nil, nil, diagnostics
	}

	img, err := compiler.NewPrecompiler(s.opts).CompileProgram(prog)
	if err != nil {
		diagnostics = append(diagnostics, diagnostic(1, 1, err.Error()))
		return prog, nil, diagnostics
	}
	return prog, img, diagnostics
}

// diagnostic builds an error diagnostic at a 1-based line and column.
func diagnostic(line, column int, message string) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	pos := toPosition(compiler.Position{Line: line, Column: column})
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: pos, End: pos},
		Severity: &severity,
		Source:   &source,
		Message:  message,
	}
}

func toPosition(p compiler.Position) protocol.Position {
	line, col := p.Line-1, p.Column-1
	if line < 0 {
		line = 0
	}
	if col < 0 {
		col = 0
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
}

func toRange(sp compiler.Span) protocol.Range {
	return protocol.Range{Start: toPosition(sp.Start), End: toPosition(sp.End)}
}

// --- Language features ---

// snapshot returns the text and last parsed program of uri.
func (s *LspServer) snapshot(uri protocol.DocumentUri) (string, *compiler.Program, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	if !ok {
		return "", nil, false
	}
	return doc.text, doc.prog, true
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, prog, ok := s.snapshot(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return s.complete(v, prog, prefix)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, prog, ok := s.snapshot(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(v *vm.VM) interface{} {
		return s.hover(v, prog, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, prog, ok := s.snapshot(uri)
	if !ok || prog == nil {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	locations := definition(uri, prog, word)
	if len(locations) == 0 {
		return nil, nil
	}
	return locations, nil
}

// --- Analysis (VM access happens on the worker goroutine) ---

// complete offers keywords, names declared in prog, and every name the VM
// resolves (builtins and the loaded program), matching prefix.
func (s *LspServer) complete(v *vm.VM, prog *compiler.Program, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if seen[name] || !strings.HasPrefix(name, prefix) {
			return
		}
		seen[name] = true
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	if prog != nil {
		for _, cls := range prog.Classes {
			addClass(add, cls, "")
		}
		for _, fn := range prog.Functions {
			add(fn.Name, protocol.CompletionItemKindFunction, fn.Signature())
		}
	}

	for _, name := range v.Names() {
		switch {
		case v.Class(name) != nil:
			add(name, protocol.CompletionItemKindClass, "class")
		case v.Method(name) != nil:
			add(name, protocol.CompletionItemKindFunction, methodDetail(v.Method(name)))
		default:
			add(name, protocol.CompletionItemKindVariable, "global")
		}
	}

	for _, kw := range compiler.Keywords() {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func addClass(add func(string, protocol.CompletionItemKind, string), cls *compiler.ClassDecl, outer string) {
	add(cls.Name, protocol.CompletionItemKindClass, "class "+outer+cls.Name)
	for _, fn := range cls.Methods {
		add(fn.Name, protocol.CompletionItemKindMethod, cls.Name+"."+fn.Signature())
	}
	for _, fn := range cls.ClassMethods {
		add(fn.Name, protocol.CompletionItemKindMethod, cls.Name+"."+fn.Signature())
	}
	for _, f := range cls.Fields {
		add(f.Name, protocol.CompletionItemKindField, cls.Name+" field")
	}
	for _, inner := range cls.InnerClasses {
		addClass(add, inner, outer+cls.Name+".")
	}
}

func methodDetail(m vm.Method) string {
	kind := "func"
	if _, native := m.(*vm.NativeMethod); native {
		kind = "builtin"
	}
	if m.IsVararg() {
		return fmt.Sprintf("%s %s(%d+ args)", kind, m.MethodName(), m.ParamCount())
	}
	return fmt.Sprintf("%s %s(%d args)", kind, m.MethodName(), m.ParamCount())
}

// hover describes word: a declared function or class in prog first, then
// anything the VM resolves.
func (s *LspServer) hover(v *vm.VM, prog *compiler.Program, word string) *protocol.Hover {
	if prog != nil {
		for _, fn := range prog.Functions {
			if fn.Name == word {
				return markdown(fmt.Sprintf("```\n%s\n```", fn.Signature()))
			}
		}
		if cls := findClass(prog.Classes, word); cls != nil {
			return markdown(describeClass(cls))
		}
		for _, cls := range prog.Classes {
			if fn := findMethod(cls, word); fn != nil {
				return markdown(fmt.Sprintf("```\n%s\n```\n\nin class **%s**", fn.Signature(), cls.Name))
			}
		}
	}

	if m := v.Method(word); m != nil {
		return markdown(fmt.Sprintf("```\n%s\n```", methodDetail(m)))
	}
	if g, ok := v.Global(word); ok {
		return markdown(fmt.Sprintf("global **%s** = `%s`", word, g))
	}
	return nil
}

func markdown(value string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

func describeClass(cls *compiler.ClassDecl) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**class %s**\n\n", cls.Name)

	if len(cls.Fields) > 0 {
		names := make([]string, len(cls.Fields))
		for i, f := range cls.Fields {
			names[i] = f.Name
		}
		fmt.Fprintf(&b, "Fields: `%s`\n\n", strings.Join(names, ", "))
	}

	fmt.Fprintf(&b, "%d instance methods, %d class methods", len(cls.Methods), len(cls.ClassMethods))
	if len(cls.InnerClasses) > 0 {
		names := make([]string, len(cls.InnerClasses))
		for i, inner := range cls.InnerClasses {
			names[i] = inner.Name
		}
		fmt.Fprintf(&b, "\n\nInner classes: %s", strings.Join(names, ", "))
	}
	return b.String()
}

func findClass(classes []*compiler.ClassDecl, name string) *compiler.ClassDecl {
	for _, cls := range classes {
		if cls.Name == name {
			return cls
		}
		if inner := findClass(cls.InnerClasses, name); inner != nil {
			return inner
		}
	}
	return nil
}

func findMethod(cls *compiler.ClassDecl, name string) *compiler.FuncDecl {
	for _, fn := range cls.Methods {
		if fn.Name == name {
			return fn
		}
	}
	for _, fn := range cls.ClassMethods {
		if fn.Name == name {
			return fn
		}
	}
	for _, inner := range cls.InnerClasses {
		if fn := findMethod(inner, name); fn != nil {
			return fn
		}
	}
	return nil
}

// definition locates the declarations of word in prog.
func definition(uri protocol.DocumentUri, prog *compiler.Program, word string) []protocol.Location {
	var locations []protocol.Location
	at := func(sp compiler.Span) {
		locations = append(locations, protocol.Location{URI: uri, Range: toRange(sp)})
	}

	for _, fn := range prog.Functions {
		if fn.Name == word {
			at(fn.Span())
		}
	}
	var walk func(classes []*compiler.ClassDecl)
	walk = func(classes []*compiler.ClassDecl) {
		for _, cls := range classes {
			if cls.Name == word {
				at(cls.Span())
			}
			for _, fn := range cls.Methods {
				if fn.Name == word {
					at(fn.Span())
				}
			}
			for _, fn := range cls.ClassMethods {
				if fn.Name == word {
					at(fn.Span())
				}
			}
			for _, f := range cls.Fields {
				if f.Name == word {
					at(f.Span())
				}
			}
			walk(cls.InnerClasses)
		}
	}
	walk(prog.Classes)
	return locations
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}

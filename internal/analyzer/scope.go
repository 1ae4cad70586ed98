package analyzer

import (
	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

type scopeKind uint8

const (
	scopeModule scopeKind = iota
	scopeFunction
	scopeBlock
)

// scope is one entry of the analyzer's scope arena. Scopes refer to their
// parent by index; the module scope is always index 0.
type scope struct {
	kind   scopeKind
	parent int
	fn     int
	depth  int

	names    map[string]*parser.Binding
	declared []*parser.Binding
	pending  map[string]diag.Span

	// nextSlot is the first free local slot. Blocks start where their
	// parent left off, so sibling blocks reuse the same slots.
	nextSlot int
}

// function tracks one function body while it is being analyzed.
type function struct {
	info   *parser.FuncInfo
	parent int
	free   map[*parser.Binding]*parser.Binding
	loops  int
}

func (a *analyzer) pushScope(kind scopeKind) {
	parent := &a.scopes[a.current]
	sc := scope{
		kind:   kind,
		parent: a.current,
		fn:     a.fn,
		depth:  parent.depth + 1,
		names:  make(map[string]*parser.Binding),
	}
	if kind == scopeBlock && parent.kind != scopeModule {
		sc.nextSlot = parent.nextSlot
	}
	a.scopes = append(a.scopes, sc)
	a.current = len(a.scopes) - 1
}

// popScope closes the current scope and returns the locals it declared
// that nested functions captured.
func (a *analyzer) popScope() []*parser.Binding {
	sc := &a.scopes[a.current]
	var cells []*parser.Binding
	for _, b := range sc.declared {
		if b.Captured && b.Decl != parser.DeclParam {
			cells = append(cells, b)
		}
		if b.Kind == parser.Local && b.Uses == 0 && unusedCheck(b) {
			a.diags.Warnf(diag.StageAnalyze, b.Span, "unused %s %q", b.Decl, b.Name)
		}
	}
	a.current = sc.parent
	return cells
}

func unusedCheck(b *parser.Binding) bool {
	if len(b.Name) > 0 && b.Name[0] == '_' {
		return false
	}
	return b.Decl == parser.DeclLet || b.Decl == parser.DeclConst
}

// markPending records let and const names declared later in the current
// scope, so an early use can be reported as such.
func (a *analyzer) markPending(stmts []parser.Stmt) {
	sc := &a.scopes[a.current]
	for _, stmt := range stmts {
		if let, ok := stmt.(*parser.LetStmt); ok {
			if sc.pending == nil {
				sc.pending = make(map[string]diag.Span)
			}
			sc.pending[let.Name] = let.NameSpan
		}
	}
}

// declare adds name to the current scope. Module-scope names become
// globals; everything else takes the next local slot of the enclosing
// function. A duplicate gets an Undefined binding and no slot.
func (a *analyzer) declare(name string, span diag.Span, decl parser.DeclKind, mutable bool) *parser.Binding {
	sc := &a.scopes[a.current]
	b := &parser.Binding{
		Name:    name,
		Decl:    decl,
		Mutable: mutable,
		Depth:   sc.depth,
		Span:    span,
	}
	if prev, ok := sc.names[name]; ok {
		a.diags.Errorf(diag.StageAnalyze, span, "%q is already declared in this scope (previous declaration at %s)", name, prev.Span)
		b.Kind = parser.Undefined
		return b
	}
	if sc.kind == scopeModule {
		b.Kind = parser.Global
		b.Index = len(a.globals)
		a.globals = append(a.globals, b)
	} else {
		b.Kind = parser.Local
		b.Index = sc.nextSlot
		sc.nextSlot++
		info := a.funcs[a.fn].info
		if sc.nextSlot > info.NumLocals {
			info.NumLocals = sc.nextSlot
		}
	}

	sc.names[name] = b
	sc.declared = append(sc.declared, b)
	delete(sc.pending, name)
	return b
}

// resolve finds the binding for a use of name. Locals of an enclosing
// function are captured on the way out.
func (a *analyzer) resolve(name string, span diag.Span) *parser.Binding {
	for i := a.current; ; i = a.scopes[i].parent {
		sc := &a.scopes[i]
		if b, ok := sc.names[name]; ok {
			return a.capture(b, sc.fn)
		}
		if i == 0 {
			break
		}
	}
	if b, ok := a.builtins[name]; ok {
		return b
	}
	for i := a.current; ; i = a.scopes[i].parent {
		if _, ok := a.scopes[i].pending[name]; ok {
			a.diags.Errorf(diag.StageAnalyze, span, "%q is used before its declaration", name)
			return &parser.Binding{Name: name, Kind: parser.Undefined, Span: span}
		}
		if i == 0 {
			break
		}
	}
	a.diags.Errorf(diag.StageAnalyze, span, "unresolved identifier %q", name)
	return &parser.Binding{Name: name, Kind: parser.Undefined, Span: span}
}

func (a *analyzer) capture(b *parser.Binding, owner int) *parser.Binding {
	if b.Kind != parser.Local || owner == a.fn {
		return b
	}
	b.Captured = true
	return a.freeVar(a.fn, b, owner)
}

// freeVar returns fn's free binding for b, threading it through every
// function between fn and the owner of b.
func (a *analyzer) freeVar(fn int, b *parser.Binding, owner int) *parser.Binding {
	if fn == owner {
		return b
	}
	f := &a.funcs[fn]
	if fv, ok := f.free[b]; ok {
		return fv
	}
	outer := a.freeVar(f.parent, b, owner)
	fv := &parser.Binding{
		Name:    b.Name,
		Kind:    parser.Free,
		Decl:    b.Decl,
		Mutable: b.Mutable,
		Depth:   b.Depth,
		Index:   len(f.info.FreeVars),
		Outer:   outer,
		Span:    b.Span,
	}
	f.info.FreeVars = append(f.info.FreeVars, outer)
	f.free[b] = fv
	return fv
}

// root follows Free bindings back to the declaring local.
func root(b *parser.Binding) *parser.Binding {
	for b.Kind == parser.Free && b.Outer != nil {
		b = b.Outer
	}
	return b
}

package parser

import (
	"fmt"

	"github.com/Cryptex-github/Terbium/internal/diag"
)

// BindingKind says where a resolved name lives at run time.
type BindingKind uint8

const (
	Undefined BindingKind = iota // name could not be resolved
	Local                        // slot in the current frame
	Global                       // module-level slot
	Builtin                      // native function
	Free                         // captured from an enclosing function
)

var bindingKindNames = [...]string{
	Undefined: "undefined",
	Local:     "local",
	Global:    "global",
	Builtin:   "builtin",
	Free:      "free",
}

func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) {
		return bindingKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// DeclKind records what kind of declaration introduced a binding.
type DeclKind uint8

const (
	DeclLet DeclKind = iota
	DeclConst
	DeclParam
	DeclFunc
	DeclBuiltin
)

func (d DeclKind) String() string {
	switch d {
	case DeclLet:
		return "variable"
	case DeclConst:
		return "constant"
	case DeclParam:
		return "parameter"
	case DeclFunc:
		return "function"
	case DeclBuiltin:
		return "builtin"
	}
	return "declaration"
}

// Binding is the result of resolving a name.
//
// Index is the slot number for Local and Global bindings, the position in
// the function's free-variable list for Free bindings, and the builtin
// table position for Builtin bindings.
//
// A Local that a nested function refers to has Captured set and lives in a
// heap cell. A Free binding points at the binding it captures in the
// immediately enclosing function through Outer.
type Binding struct {
	Name     string
	Kind     BindingKind
	Decl     DeclKind
	Mutable  bool
	Depth    int
	Index    int
	Captured bool
	Outer    *Binding
	Span     diag.Span
	Uses     int
}

func (b *Binding) String() string {
	if b == nil {
		return "<nil>"
	}
	if b.Captured {
		return fmt.Sprintf("%s cell %d", b.Kind, b.Index)
	}
	return fmt.Sprintf("%s %d", b.Kind, b.Index)
}

// FuncInfo is the analyzer's summary of one function body.
type FuncInfo struct {
	// NumLocals is the high-water mark of local slots, parameters
	// included. Sibling blocks share slots.
	NumLocals int

	// FreeVars lists, for each free variable, the binding in the
	// enclosing function that supplies its cell.
	FreeVars []*Binding
}

package bytecode

// Builtins is the builtin function table. The analyzer resolves these
// names and the VM implements them in the same order, so the index is
// stable in serialized modules.
var Builtins = []string{
	"print",
	"len",
	"push",
	"str",
	"int",
	"float",
	"type",
}

// BuiltinIndex returns the table index of name, or -1.
func BuiltinIndex(name string) int {
	for i, b := range Builtins {
		if b == name {
			return i
		}
	}
	return -1
}

// Package conformance runs Terbium test cases written in Markdown.
//
// A case starts at a heading "Test: name" and holds one ```terbium fence
// with the program plus any number of assertion fences:
//
//	ast          the parsed program, as printed by parser.Print
//	result       the value of the program, as printed by print
//	output       everything the program printed
//	trap         "kind: message" of the runtime error it raises
//	diagnostics  one "line:col: severity: message" per line
package conformance

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/internal/parser"
	"github.com/Cryptex-github/Terbium/internal/vm"
)

// Fence languages.
const (
	FenceSource      = "terbium"
	FenceAST         = "ast"
	FenceResult      = "result"
	FenceOutput      = "output"
	FenceTrap        = "trap"
	FenceDiagnostics = "diagnostics"
)

type Assertion struct {
	Kind    string
	Content string
	Line    int
}

type Case struct {
	Name       string
	Source     string
	Line       int
	Assertions []Assertion
}

func isAssertion(lang string) bool {
	switch lang {
	case FenceAST, FenceResult, FenceOutput, FenceTrap, FenceDiagnostics:
		return true
	}
	return false
}

// Extract parses a Markdown document into cases. Fences without a language
// are prose and ignored; any other fence outside a case is an error.
func Extract(markdown []byte) ([]Case, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var cases []Case
	var current *Case
	finish := func() error {
		if current == nil {
			return nil
		}
		if current.Line == 0 {
			return errors.Errorf("test %q has no %s fence", current.Name, FenceSource)
		}
		if len(current.Assertions) == 0 {
			return errors.Errorf("test %q has no assertion fences", current.Name)
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			heading := headingText(n, markdown)
			if !strings.HasPrefix(heading, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := finish(); err != nil {
				return ast.WalkStop, err
			}
			current = &Case{Name: strings.TrimPrefix(heading, "Test: ")}

		case *ast.FencedCodeBlock:
			lang := string(n.Language(markdown))
			line := lineOf(n, markdown)
			if lang == "" {
				return ast.WalkContinue, nil
			}
			if current == nil {
				return ast.WalkStop, errors.Errorf("line %d: %s fence outside of a test", line, lang)
			}
			content := strings.TrimRight(fenceContent(n, markdown), "\n")
			switch {
			case lang == FenceSource:
				if current.Line != 0 {
					return ast.WalkStop, errors.Errorf("line %d: second %s fence in test %q", line, lang, current.Name)
				}
				current.Source = content
				current.Line = line
			case isAssertion(lang):
				current.Assertions = append(current.Assertions, Assertion{Kind: lang, Content: content, Line: line})
			default:
				return ast.WalkStop, errors.Errorf("line %d: unknown fence language %q in test %q", line, lang, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return cases, nil
}

func headingText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(n *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < n.Lines().Len(); i++ {
		line := n.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

// lineOf returns the 1-based line of the first content line of n, or of
// the document start for an empty fence.
func lineOf(n ast.Node, source []byte) int {
	if n.Lines().Len() == 0 {
		return 1
	}
	return bytes.Count(source[:n.Lines().At(0).Start], []byte("\n")) + 1
}

// Outcome is everything a case can assert on.
type Outcome struct {
	AST         string
	Result      string
	Output      string
	Trap        string
	Diagnostics string
}

// Execute compiles and, when compilation succeeds, runs the case source.
func Execute(c Case, opts ...terbium.Option) Outcome {
	var out Outcome
	program, diags := terbium.Parse(c.Name, c.Source, opts...)
	out.AST = parser.Print(program)

	lines := make([]string, len(diags))
	for i, d := range diags {
		lines[i] = d.Error()
	}
	out.Diagnostics = strings.Join(lines, "\n")
	if diags.HasErrors() {
		return out
	}

	var stdout bytes.Buffer
	v, _, err := terbium.Eval(c.Name, c.Source, append(opts, terbium.WithStdout(&stdout))...)
	out.Output = strings.TrimRight(stdout.String(), "\n")
	var rerr *vm.RuntimeError
	switch {
	case errors.As(err, &rerr):
		out.Trap = fmt.Sprintf("%s: %s", rerr.Kind, rerr.Message)
	case err != nil:
		out.Trap = "error: " + err.Error()
	default:
		out.Result = v.String()
	}
	return out
}

// Check runs c and returns one message per failed assertion.
func Check(c Case, opts ...terbium.Option) []string {
	out := Execute(c, opts...)
	var failures []string
	for _, a := range c.Assertions {
		var got string
		switch a.Kind {
		case FenceAST:
			got = out.AST
		case FenceResult:
			got = out.Result
		case FenceOutput:
			got = out.Output
		case FenceTrap:
			got = out.Trap
		case FenceDiagnostics:
			got = out.Diagnostics
		}
		if got != a.Content {
			failures = append(failures, fmt.Sprintf("line %d: %s mismatch\n got: %q\nwant: %q", a.Line, a.Kind, got, a.Content))
		}
	}
	// A case that traps or fails to compile must say so.
	if out.Trap != "" && !c.asserts(FenceTrap) {
		failures = append(failures, "unexpected trap: "+out.Trap)
	}
	if strings.Contains(out.Diagnostics, ": error: ") && !c.asserts(FenceDiagnostics) {
		failures = append(failures, "unexpected diagnostics:\n"+out.Diagnostics)
	}
	return failures
}

func (c Case) asserts(kind string) bool {
	for _, a := range c.Assertions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

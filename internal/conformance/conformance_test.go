package conformance

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestConformance(t *testing.T) {
	files, err := filepath.Glob("testdata/*_test.md")
	be.Err(t, err, nil)
	be.True(t, len(files) > 0)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".md")
		t.Run(name, func(t *testing.T) {
			content, err := os.ReadFile(file)
			be.Err(t, err, nil)
			cases, err := Extract(content)
			be.Err(t, err, nil)
			for _, c := range cases {
				t.Run(c.Name, func(t *testing.T) {
					for _, failure := range Check(c) {
						t.Errorf("%s:%s", file, failure)
					}
				})
			}
		})
	}
}

func TestExtract(t *testing.T) {
	doc := "# Title\n\nProse.\n\n```\nuntagged\n```\n\n" +
		"## Test: one\n\n```terbium\n1 + 1\n```\n\n```result\n2\n```\n\n" +
		"### Test: two\n\n```terbium\nprint(1)\n```\n\n```output\n1\n```\n\n```result\nnull\n```\n"
	cases, err := Extract([]byte(doc))
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)
	be.Equal(t, cases[0].Name, "one")
	be.Equal(t, cases[0].Source, "1 + 1")
	be.Equal(t, cases[0].Line, 12)
	be.Equal(t, cases[0].Assertions, []Assertion{{Kind: FenceResult, Content: "2", Line: 16}})
	be.Equal(t, len(cases[1].Assertions), 2)
}

func TestExtractRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"fence outside test", "```terbium\n1\n```\n", "fence outside of a test"},
		{"unknown language", "## Test: x\n\n```python\n1\n```\n", `unknown fence language "python"`},
		{"no source", "## Test: x\n\n```result\n1\n```\n", "has no terbium fence"},
		{"no assertions", "## Test: x\n\n```terbium\n1\n```\n", "has no assertion fences"},
		{"two sources", "## Test: x\n\n```terbium\n1\n```\n\n```terbium\n2\n```\n", "second terbium fence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract([]byte(tt.doc))
			be.True(t, err != nil)
			be.True(t, strings.Contains(err.Error(), tt.want))
		})
	}
}

func TestCheckReportsMismatch(t *testing.T) {
	c := Case{
		Name:   "wrong",
		Source: "1 / 0",
		Assertions: []Assertion{
			{Kind: FenceResult, Content: "1", Line: 3},
		},
	}
	failures := Check(c)
	be.Equal(t, len(failures), 2)
	be.True(t, strings.HasPrefix(failures[0], "line 3: result mismatch"))
	be.Equal(t, failures[1], "unexpected trap: division by zero: integer division by zero")
}

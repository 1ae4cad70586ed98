package diag

import (
	"encoding/json"
	"testing"

	"github.com/nalgeon/be"
)

func TestCollectorKeepsEmissionOrder(t *testing.T) {
	c := NewCollector()
	c.Errorf(StageParse, Span{Start: 4, End: 5, Line: 1, Column: 5}, "expected %s", "expression")
	c.Warnf(StageAnalyze, Span{Line: 2, Column: 1}, "unused variable %q", "x")
	c.Errorf(StageLex, Span{Line: 1, Column: 1}, "unterminated string literal")

	all := c.All()
	be.Equal(t, len(all), 3)
	be.Equal(t, all[0].Message, "expected expression")
	be.Equal(t, all[1].Severity, Warning)
	be.Equal(t, all[2].Stage, StageLex)
	be.Equal(t, c.ErrorCount(), 2)
	be.True(t, c.HasErrors())

	// All hands out a copy.
	all[0].Message = "changed"
	be.Equal(t, c.All()[0].Message, "expected expression")
}

func TestWarningsAreNotErrors(t *testing.T) {
	var c Collector
	c.Warnf(StageAnalyze, Span{}, "unused")
	be.Equal(t, c.HasErrors(), false)
	be.Equal(t, c.Len(), 1)
}

func TestDiagnosticError(t *testing.T) {
	d := Diagnostic{Severity: Error, Span: Span{Line: 3, Column: 7}, Message: "unresolved identifier \"y\""}
	be.Equal(t, d.Error(), `3:7: error: unresolved identifier "y"`)
}

func TestSpanThrough(t *testing.T) {
	a := Span{Start: 2, End: 3, Line: 1, Column: 3}
	b := Span{Start: 8, End: 10, Line: 1, Column: 9}
	got := a.Through(b)
	be.Equal(t, got, Span{Start: 2, End: 10, Line: 1, Column: 3})
	be.Equal(t, got.Len(), 8)
	be.Equal(t, b.Through(a), b)
}

func TestSummary(t *testing.T) {
	be.Equal(t, Summary(nil), "no diagnostics")
	be.Equal(t, Summary([]Diagnostic{{Severity: Error}, {Severity: Error}, {Severity: Warning}}), "2 errors, 1 warning")
}

func TestDiagnosticJSON(t *testing.T) {
	d := Diagnostic{Severity: Warning, Stage: StageAnalyze, Message: "m"}
	data, err := json.Marshal(d)
	be.Err(t, err, nil)
	be.Equal(t, string(data), `{"severity":"warning","stage":"analyze","span":{"start":0,"end":0,"line":0,"column":0},"message":"m"}`)
}

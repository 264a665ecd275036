package linear_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"go.trai.ch/kiln/internal/adapters/linear"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestRenderer_UnitLifecycle(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var out bytes.Buffer
	r := linear.NewRenderer(&out)

	r.OnPlan([]string{"src/b.ts", "src/a.ts"}, nil)
	if !strings.Contains(out.String(), "building 2 unit(s) for all units") {
		t.Errorf("Expected plan message, got: %s", out.String())
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.OnUnitStart("src/b.ts", start)
	r.OnUnitComplete("src/b.ts", start.Add(120*time.Millisecond), false, nil)
	r.OnUnitStart("src/a.ts", start)
	r.OnUnitComplete("src/a.ts", start, true, nil)
	r.Summary(time.Second)

	got := out.String()
	for _, want := range []string{
		"[src/b.ts] ✓ compiled in 120ms\n",
		"[src/a.ts] ≡ cached\n",
		"✓ 1 compiled, 1 cached, 0 failed in 1s\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in output, got: %s", want, got)
		}
	}
}

func TestRenderer_FailurePrintsDiagnostics(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var out bytes.Buffer
	r := linear.NewRenderer(&out)

	r.OnPlan([]string{"src/a.ts", "src/main.ts"}, []string{"src/main.ts"})
	r.OnUnitComplete("src/a.ts", time.Now(), false, &domain.CompileError{
		Kind: domain.ErrSyntaxError,
		Unit: "src/a.ts",
		Diagnostics: []domain.Diagnostic{
			{Unit: "src/a.ts", Line: 3, Column: 7, Message: "Expected \";\" but found \"}\""},
		},
	})
	r.OnUnitComplete("src/main.ts", time.Now(), false, errors.New("dependency failed to compile"))
	r.Summary(0)

	got := out.String()
	for _, want := range []string{
		"for src/main.ts",
		"[src/a.ts] ✗ failed\n",
		"    src/a.ts:3:7: Expected \";\" but found \"}\"\n",
		"    dependency failed to compile\n",
		"✗ 0 compiled, 0 cached, 2 failed",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in output, got: %s", want, got)
		}
	}
}

func TestRenderer_NilWriter(t *testing.T) {
	if linear.NewRenderer(nil) == nil {
		t.Fatal("Expected non-nil renderer")
	}
}

// Package compiler implements the Compiler port with esbuild for syntax and
// transformation and a link check over the unit graph for types.
package compiler

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"go.trai.ch/kiln/internal/core/domain"
)

const (
	esbuildVersion = "0.25.0"
	// revision changes whenever kiln's own processing of esbuild output changes.
	revision = "kiln1"
)

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// specifierRe matches a quoted relative module specifier after from, import or import(.
var specifierRe = regexp.MustCompile(`(\bfrom\s*|\bimport\s*\(?\s*)(["'])(\.{1,2}/[^"'\n]*)(["'])`)

// Compiler implements ports.Compiler.
type Compiler struct{}

// New creates a new Compiler.
func New() *Compiler {
	return &Compiler{}
}

// Version identifies the compiler in unit fingerprints.
func (c *Compiler) Version() string {
	return "esbuild-" + esbuildVersion + "+" + revision
}

// Compile transforms one unit to an ES module. Unparsable source fails with
// ErrSyntaxError. Imports that do not link against the graph or the lock
// file fail with ErrTypeError.
func (c *Compiler) Compile(ctx context.Context, req domain.CompileRequest) (domain.CompileOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.CompileOutput{}, err
	}
	unit := req.Unit
	unitPath := unit.Path.String()

	target, ok := targets[req.Options.Target]
	if !ok {
		return domain.CompileOutput{}, domain.WithMeta(domain.ErrConfigError, "option", domain.OptionTarget, "value", req.Options.Target)
	}

	opts := api.TransformOptions{
		Loader:            api.LoaderTS,
		Format:            api.FormatESModule,
		Target:            target,
		Sourcefile:        path.Base(unitPath),
		MinifyWhitespace:  req.Options.Minify,
		MinifyIdentifiers: req.Options.Minify,
		MinifySyntax:      req.Options.Minify,
		LogLevel:          api.LogLevelSilent,
	}
	if req.Options.Sourcemap {
		opts.Sourcemap = api.SourceMapExternal
	}

	result := api.Transform(string(unit.Source), opts)
	if len(result.Errors) > 0 {
		return domain.CompileOutput{}, &domain.CompileError{
			Kind:        domain.ErrSyntaxError,
			Unit:        unitPath,
			Diagnostics: toDiagnostics(unitPath, result.Errors, domain.SeverityError),
		}
	}

	if diags := linkCheck(req); len(diags) > 0 {
		return domain.CompileOutput{}, &domain.CompileError{
			Kind:        domain.ErrTypeError,
			Unit:        unitPath,
			Diagnostics: diags,
		}
	}

	code := rewriteSpecifiers(result.Code, unit)
	if req.Options.Sourcemap && len(result.Map) > 0 {
		mapName := path.Base(domain.OutputPath(unitPath)) + ".map"
		code = append(code, []byte("//# sourceMappingURL="+mapName+"\n")...)
	}

	return domain.CompileOutput{
		Code:        code,
		Map:         result.Map,
		Diagnostics: toDiagnostics(unitPath, result.Warnings, domain.SeverityWarning),
	}, nil
}

// linkCheck verifies every import of the unit against the graph and the lock file.
func linkCheck(req domain.CompileRequest) []domain.Diagnostic {
	unit := req.Unit
	unitPath := unit.Path.String()
	var diags []domain.Diagnostic

	report := func(line, col int, format string, args ...any) {
		diags = append(diags, domain.Diagnostic{
			Unit:     unitPath,
			Line:     line,
			Column:   col,
			Message:  fmt.Sprintf(format, args...),
			Severity: domain.SeverityError,
		})
	}

	for _, b := range unit.Bindings {
		switch {
		case b.Relative():
			if b.Target.IsZero() {
				report(b.Line, 1, "cannot find module %q", b.Specifier)
				continue
			}
			target, ok := req.Imports[b.Target]
			if !ok {
				report(b.Line, 1, "cannot find module %q", b.Specifier)
				continue
			}
			for _, name := range b.Names {
				if !target.Exported(name) {
					report(b.Line, 1, "module %q has no exported member %q", b.Target.String(), name)
				}
			}
		case b.Package != "":
			if _, ok := req.Lock.Get(b.Package); !ok {
				report(b.Line, 1, "package %q is not in %s; run kiln resolve", b.Package, domain.LockFileName)
			}
		}
	}

	if req.Options.Strict {
		for _, pos := range unit.AnyAnnotations {
			report(pos.Line, pos.Column, "explicit any is not allowed in strict mode")
		}
	}

	slices.SortStableFunc(diags, func(a, b domain.Diagnostic) int {
		if a.Line != b.Line {
			return a.Line - b.Line
		}
		return a.Column - b.Column
	})
	return diags
}

// rewriteSpecifiers points relative imports at the emitted .js files of their targets.
func rewriteSpecifiers(code []byte, unit *domain.Unit) []byte {
	replacements := make(map[string]string)
	dir := path.Dir(unit.Path.String())
	for _, b := range unit.Bindings {
		if !b.Relative() || b.Target.IsZero() {
			continue
		}
		rel := relativePath(dir, domain.OutputPath(b.Target.String()))
		replacements[b.Specifier] = rel
	}
	if len(replacements) == 0 {
		return code
	}

	return specifierRe.ReplaceAllFunc(code, func(match []byte) []byte {
		sub := specifierRe.FindSubmatch(match)
		replacement, ok := replacements[string(sub[3])]
		if !ok {
			return match
		}
		out := make([]byte, 0, len(match)+4)
		out = append(out, sub[1]...)
		out = append(out, sub[2]...)
		out = append(out, replacement...)
		return append(out, sub[4]...)
	})
}

// relativePath returns a "./" or "../" specifier for target as seen from dir.
func relativePath(dir, target string) string {
	fromParts := splitPath(dir)
	toParts := splitPath(target)

	common := 0
	for common < len(fromParts) && common < len(toParts)-1 && fromParts[common] == toParts[common] {
		common++
	}

	var prefix string
	for range fromParts[common:] {
		prefix += "../"
	}
	if prefix == "" {
		prefix = "./"
	}
	return prefix + path.Join(toParts[common:]...)
}

func splitPath(p string) []string {
	if p == "." || p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func toDiagnostics(unit string, msgs []api.Message, severity domain.Severity) []domain.Diagnostic {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]domain.Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		d := domain.Diagnostic{Unit: unit, Message: m.Text, Severity: severity}
		if m.Location != nil {
			d.Line = m.Location.Line
			d.Column = m.Location.Column + 1
		}
		out = append(out, d)
	}
	return out
}

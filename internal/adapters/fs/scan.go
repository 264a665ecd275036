package fs

import (
	"bytes"
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

const ident = `[A-Za-z_$][\w$]*`

var (
	importRe = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:type\s+)?` +
		`(?:(` + ident + `)\s*,?\s*)?` +
		`(?:\{([^}]*)\}|\*\s*as\s+(` + ident + `))?` +
		`\s*(?:from\s*)?["']([^"'\n]+)["']`)

	reexportRe = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:type\s+)?` +
		`(?:\*(?:\s*as\s+(` + ident + `))?|\{([^}]*)\})` +
		`\s*from\s*["']([^"'\n]+)["']`)

	localExportListRe = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:type\s+)?\{([^}]*)\}(\s*from\b)?`)

	declExportRe = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:declare\s+)?(?:async\s+)?(?:abstract\s+)?` +
		`(?:const\s+enum|const|let|var|function\s*\*?|class|interface|type|enum|namespace)\s+(` + ident + `)`)

	defaultExportRe = regexp.MustCompile(`(?m)^[ \t]*export\s+default\b`)

	anyRe = regexp.MustCompile(`(?::\s*|\bas\s+|<\s*)any\b`)
)

// scanResult is what a source scan learned about a unit.
type scanResult struct {
	bindings []domain.ImportBinding
	exports  []string
	anys     []domain.Position
}

// scanSource extracts import bindings and exported names from TypeScript source.
// Comments are blanked first so commented-out statements are ignored.
func scanSource(src []byte) scanResult {
	text := stripComments(src)
	var res scanResult

	for _, m := range importRe.FindAllSubmatchIndex(text, -1) {
		var names []string
		if m[2] >= 0 {
			names = append(names, "default")
		}
		if m[4] >= 0 {
			names = append(names, parseNameList(string(text[m[4]:m[5]]), false)...)
		}
		res.bindings = append(res.bindings, domain.ImportBinding{
			Specifier: string(text[m[8]:m[9]]),
			Names:     names,
			Line:      lineAt(text, m[0]),
		})
	}

	for _, m := range reexportRe.FindAllSubmatchIndex(text, -1) {
		var names []string
		switch {
		case m[4] >= 0:
			list := string(text[m[4]:m[5]])
			names = parseNameList(list, false)
			res.exports = append(res.exports, parseNameList(list, true)...)
		case m[2] >= 0:
			res.exports = append(res.exports, string(text[m[2]:m[3]]))
		default:
			res.exports = append(res.exports, domain.ExportAll)
		}
		res.bindings = append(res.bindings, domain.ImportBinding{
			Specifier: string(text[m[6]:m[7]]),
			Names:     names,
			Line:      lineAt(text, m[0]),
		})
	}

	for _, m := range localExportListRe.FindAllSubmatchIndex(text, -1) {
		if m[4] >= 0 {
			continue
		}
		res.exports = append(res.exports, parseNameList(string(text[m[2]:m[3]]), true)...)
	}
	for _, m := range declExportRe.FindAllSubmatch(text, -1) {
		res.exports = append(res.exports, string(m[1]))
	}
	if defaultExportRe.Match(text) {
		res.exports = append(res.exports, "default")
	}

	masked := maskStrings(text)
	for _, m := range anyRe.FindAllIndex(masked, -1) {
		start := m[1] - len("any")
		res.anys = append(res.anys, domain.Position{
			Line:   lineAt(masked, start),
			Column: start - bytes.LastIndexByte(masked[:start], '\n'),
		})
	}

	slices.SortStableFunc(res.bindings, func(a, b domain.ImportBinding) int { return a.Line - b.Line })
	slices.Sort(res.exports)
	res.exports = slices.Compact(res.exports)
	return res
}

// parseNameList parses "a, b as c, type d". With exported set it returns the
// names as seen by importers (c), otherwise the source names (b).
func parseNameList(list string, exported bool) []string {
	var names []string
	for part := range strings.SplitSeq(list, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "type ")
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		local, alias, found := strings.Cut(part, " as ")
		name := strings.TrimSpace(local)
		if exported && found {
			name = strings.TrimSpace(alias)
		}
		names = append(names, name)
	}
	return names
}

func lineAt(text []byte, offset int) int {
	return bytes.Count(text[:offset], []byte{'\n'}) + 1
}

// stripComments replaces comment bytes with spaces, keeping newlines so that
// offsets and line numbers are unchanged. String and template literals are
// skipped over.
func stripComments(src []byte) []byte {
	out := slices.Clone(src)
	for i := 0; i < len(out); i++ {
		switch c := out[i]; {
		case c == '"' || c == '\'' || c == '`':
			i = skipString(out, i)
		case c == '/' && i+1 < len(out) && out[i+1] == '/':
			for ; i < len(out) && out[i] != '\n'; i++ {
				out[i] = ' '
			}
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			for ; i < len(out); i++ {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i++
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
			}
		}
	}
	return out
}

// maskStrings blanks the contents of string and template literals in
// comment-free text, keeping the quotes and newlines.
func maskStrings(text []byte) []byte {
	out := slices.Clone(text)
	for i := 0; i < len(out); i++ {
		c := out[i]
		if c != '"' && c != '\'' && c != '`' {
			continue
		}
		end := skipString(out, i)
		for j := i + 1; j < end && j < len(out); j++ {
			if out[j] != '\n' {
				out[j] = ' '
			}
		}
		i = end
	}
	return out
}

// skipString returns the index of the closing quote of the literal starting at i.
func skipString(b []byte, i int) int {
	quote := b[i]
	for j := i + 1; j < len(b); j++ {
		switch b[j] {
		case '\\':
			j++
		case quote:
			return j
		case '\n':
			if quote != '`' {
				return j
			}
		}
	}
	return len(b)
}

// packageName returns the package a bare specifier refers to:
// "lodash/fp" is "lodash" and "@scope/pkg/sub" is "@scope/pkg".
func packageName(spec string) string {
	parts := strings.SplitN(spec, "/", 3)
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// isBare reports whether a specifier names a registry package.
func isBare(spec string) bool {
	if spec == "" || strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return false
	}
	return !strings.Contains(spec, ":")
}

package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Compiler option names accepted in kiln.yaml.
const (
	OptionTarget    = "target"
	OptionSourcemap = "sourcemap"
	OptionMinify    = "minify"
	OptionStrict    = "strict"
)

// SupportedTargets lists the accepted values of the target option.
var SupportedTargets = []string{
	"es2015", "es2016", "es2017", "es2018", "es2019", "es2020", "es2021", "es2022", "esnext",
}

// CompilerOptions is the active compiler configuration. It is part of every unit fingerprint.
type CompilerOptions struct {
	Target    string
	Sourcemap bool
	Minify    bool
	Strict    bool
}

// DefaultCompilerOptions returns the options used when kiln.yaml sets none.
func DefaultCompilerOptions() CompilerOptions {
	return CompilerOptions{
		Target:    "es2020",
		Sourcemap: true,
		Strict:    true,
	}
}

// ParseCompilerOptions applies raw option values on top of the defaults.
// Unrecognized names and ill-typed values are rejected with ErrConfigError.
func ParseCompilerOptions(raw map[string]any) (CompilerOptions, error) {
	opts := DefaultCompilerOptions()

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		value := raw[key]
		var err error
		switch key {
		case OptionTarget:
			opts.Target, err = parseTarget(value)
		case OptionSourcemap:
			opts.Sourcemap, err = parseBool(value)
		case OptionMinify:
			opts.Minify, err = parseBool(value)
		case OptionStrict:
			opts.Strict, err = parseBool(value)
		default:
			return CompilerOptions{}, WithMeta(ErrConfigError, "reason", "unrecognized compiler option", "option", key)
		}
		if err != nil {
			return CompilerOptions{}, WithMeta(ErrConfigError, "reason", err.Error(), "option", key)
		}
	}

	return opts, nil
}

func parseTarget(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", v)
	}
	s = strings.ToLower(s)
	if !slices.Contains(SupportedTargets, s) {
		return "", fmt.Errorf("unsupported target %q", s)
	}
	return s, nil
}

func parseBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	default:
		return false, fmt.Errorf("expected a boolean, got %T", v)
	}
}

// Key renders the options canonically, in name order.
func (o CompilerOptions) Key() string {
	return fmt.Sprintf("%s=%t;%s=%t;%s=%t;%s=%s",
		OptionMinify, o.Minify,
		OptionSourcemap, o.Sourcemap,
		OptionStrict, o.Strict,
		OptionTarget, o.Target,
	)
}

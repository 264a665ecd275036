// Package detector selects the log format from the environment.
package detector

import (
	"os"

	"golang.org/x/term"
)

// LogFormat is the rendering of log records on stderr.
type LogFormat int

const (
	// FormatAuto defers to DetectFormat.
	FormatAuto LogFormat = iota
	// FormatPretty renders colored, human-readable lines.
	FormatPretty
	// FormatJSON renders one JSON object per record.
	FormatJSON
)

// Environment is what DetectFormat looks at.
type Environment struct {
	IsTTY  bool
	Getenv func(string) string
}

// CurrentEnvironment describes the running process.
func CurrentEnvironment() Environment {
	return Environment{
		IsTTY:  term.IsTerminal(int(os.Stderr.Fd())),
		Getenv: os.Getenv,
	}
}

// DetectFormat returns the recommended log format. KILN_LOG_FORMAT wins;
// otherwise terminals and CI get pretty output and anything else gets JSON.
func DetectFormat(env Environment) LogFormat {
	if f := ParseFormat(env.Getenv("KILN_LOG_FORMAT")); f != FormatAuto {
		return f
	}

	ci := env.Getenv("CI")
	isCI := ci == "true" || ci == "1"

	if env.IsTTY || isCI {
		return FormatPretty
	}
	return FormatJSON
}

// ParseFormat maps a flag or environment value to a LogFormat.
// Unknown values mean FormatAuto.
func ParseFormat(value string) LogFormat {
	switch value {
	case "pretty", "text":
		return FormatPretty
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ResolveFormat applies a user override to auto-detection.
func ResolveFormat(detected LogFormat, userFlag string) LogFormat {
	if f := ParseFormat(userFlag); f != FormatAuto {
		return f
	}
	return detected
}

package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// Compiler defines the interface for type checking and compiling a single unit.
//
//go:generate mockgen -source=compiler.go -destination=mocks/mock_compiler.go -package=mocks
type Compiler interface {
	// Compile checks and transforms one unit.
	// Failures are returned as *domain.CompileError.
	Compile(ctx context.Context, req domain.CompileRequest) (domain.CompileOutput, error)

	// Version identifies the compiler implementation for fingerprinting.
	Version() string
}

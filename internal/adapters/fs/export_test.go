package fs

import "go.trai.ch/kiln/internal/core/domain"

// ScanSource exposes scanSource for tests.
func ScanSource(src []byte) ([]domain.ImportBinding, []string) {
	res := scanSource(src)
	return res.bindings, res.exports
}

// ScanAny exposes the positions of explicit any annotations found by scanSource.
func ScanAny(src []byte) []domain.Position {
	return scanSource(src).anys
}

// StripComments exposes stripComments for tests.
func StripComments(src []byte) []byte {
	return stripComments(src)
}

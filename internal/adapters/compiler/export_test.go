package compiler

// RelativePath exposes relativePath for tests.
func RelativePath(dir, target string) string {
	return relativePath(dir, target)
}

package testutils

import (
	"path/filepath"
	"runtime"
)

// ProjectRoot returns the absolute path to the root of the module.
func ProjectRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("could not locate the testutils source file")
	}
	// This file is in internal/testutils.
	return filepath.Join(filepath.Dir(file), "..", "..")
}

package codegen

import "time"

// SetNow overrides the clock of migration versions until the test ends.
func SetNow(t interface{ Cleanup(func()) }, fn func() time.Time) {
	old := now
	now = fn
	t.Cleanup(func() { now = old })
}

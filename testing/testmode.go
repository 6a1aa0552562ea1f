// Package testing flips binaries into test mode when imported by their
// tests, so calling main() returns before dialing any backend.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

// EnsureTestMode sets JNTIMS_TEST_MODE for the current process.
func EnsureTestMode() {
	once.Do(func() {
		_ = os.Setenv("JNTIMS_TEST_MODE", "1")
	})
}

func init() {
	EnsureTestMode()
}

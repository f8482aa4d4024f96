package app

import (
	"os"
	"sync"
)

// TestModeEnv is set by the testing package. Binaries check it and return
// before opening connections so package tests can import them safely.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the process runs under go test.
func InTestMode() bool {
	return inTestMode()
}

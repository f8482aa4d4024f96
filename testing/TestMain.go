// Package testing puts importing test binaries into test mode. Import it for
// side effects from package tests that touch app wiring.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// testDefaults keeps config loading deterministic and away from live services.
var testDefaults = map[string]string{
	"ODYSSEY_TEST_MODE":      "1",
	"GOTENBERG_URL":          "http://127.0.0.1:0",
	"REDIS_ADDR":             "127.0.0.1:0",
	"QUOTE_DEFAULT_CURRENCY": "IDR",
	"TZ":                     "UTC",
}

func ensureTestMode() {
	once.Do(func() {
		for key, value := range testDefaults {
			if _, ok := os.LookupEnv(key); !ok {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}

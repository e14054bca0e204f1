// Package guard flips the service into test mode for any test binary that
// imports it, so runtime side effects such as request logging stay quiet.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("NUTRITION_TEST_MODE") == "" {
			_ = os.Setenv("NUTRITION_TEST_MODE", "1")
		}
	})
}

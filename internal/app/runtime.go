package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "BACKOFFICE_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	return on
})

// InTestMode reports whether binaries should skip connecting to Postgres and
// Redis. The flag is read once per process.
func InTestMode() bool {
	return testMode()
}

package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes both binaries return before dialing Redis or the
// backend, so cmd packages can be exercised under go test.
const TestModeEnv = "XUANJI_TEST_MODE"

// InTestMode reports whether TestModeEnv is set to a true value.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}

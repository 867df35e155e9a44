// ABOUTME: Test entry point for the agent package.
// ABOUTME: Fails the run if any connection writer goroutine outlives its test.

package agent

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

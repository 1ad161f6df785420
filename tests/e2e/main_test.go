//go:build integration

package e2e

import (
	"os"
	"testing"

	"github.com/careline/careline/tests/testutil"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.Run(m))
}

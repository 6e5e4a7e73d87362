package testutil

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Test binaries importing this package only print logs when run with -v.
// Flags aren't parsed yet during init, so the raw args are scanned.
func init() {
	logrus.SetLevel(logrus.TraceLevel)

	for _, arg := range os.Args[1:] {
		if arg == "-test.v=true" || arg == "-test.v" {
			return
		}
	}
	logrus.StandardLogger().SetOutput(io.Discard)
}

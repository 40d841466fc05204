package subdomain

import (
	"io"
	"os"
	"testing"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
)

func TestMain(m *testing.M) {
	debug.SetOutput(io.Discard)
	os.Exit(m.Run())
}

package sqldirlog

import (
	"regexp"
	"testing"

	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/require"
)

func TestSubsystems(t *testing.T) {
	re := regexp.MustCompile(Subsystems)
	for _, name := range []string{"sqldir", "sqldir/cli", "sqlpool", "retry", "metrics"} {
		require.True(t, re.MatchString(name), name)
	}
	for _, name := range []string{"sqldirx", "rpc", "pubsub", "metrics/extra"} {
		require.False(t, re.MatchString(name), name)
	}
}

func TestSetLevel(t *testing.T) {
	for _, name := range []string{"sqldir", "sqlpool", "retry", "metrics"} {
		_ = logging.Logger(name)
	}
	require.NoError(t, SetLevel("debug"))
	require.Error(t, SetLevel("loud"))
}

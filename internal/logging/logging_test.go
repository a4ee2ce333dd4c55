package logging

import (
	"testing"

	jww "github.com/spf13/jwalterweatherman"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() { jww.SetStdoutThreshold(jww.LevelInfo) })

	require.Equal(t, jww.LevelDebug, Setup("DEBUG"))
	require.Equal(t, jww.LevelDebug, jww.StdoutThreshold())
	require.Equal(t, jww.LevelWarn, Setup(" warn "))
	require.Equal(t, jww.LevelInfo, Setup("chatty"))
	require.Equal(t, jww.LevelInfo, Setup(""))
}

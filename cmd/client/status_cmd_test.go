package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusCommand_FlagsAndDefaults(t *testing.T) {
	cmd := newStatusCmd()

	watch := cmd.Flags().Lookup("watch")
	require.NotNil(t, watch)
	require.Equal(t, "false", watch.DefValue)

	interval := cmd.Flags().Lookup("interval")
	require.NotNil(t, interval)
	require.Equal(t, "1s", interval.DefValue)

	raw := cmd.Flags().Lookup("raw")
	require.NotNil(t, raw)
	require.Equal(t, "false", raw.DefValue)
}

func TestForceReleaseCommand_RefusesWithoutConfirm(t *testing.T) {
	out, code := runCLI(t, "force-release", "parts/a.sldprt", "parts/b.sldprt")
	require.Equal(t, 1, code)
	require.Contains(t, stripANSI(out), "--confirm 2")
}

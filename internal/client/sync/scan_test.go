package sync

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	rig := newTestRig(t)

	rig.writeVaultFile(t, "parts/bracket.sldprt", "bracket")
	rig.writeVaultFile(t, "parts/shaft.sldprt", "shaft")
	rig.writeVaultFile(t, "assemblies/frame.sldasm", "frame")

	// Excluded: metadata dir, marker copies, CAD temp files.
	rig.writeVaultFile(t, "parts/bracket.conflict.sldprt", "conflict copy")
	rig.writeVaultFile(t, "parts/~$bracket.sldprt", "cad temp")

	state, err := rig.scanner.Scan()
	require.NoError(t, err)

	require.Len(t, state, 3)
	assert.Contains(t, state, "parts/bracket.sldprt")
	assert.Contains(t, state, "parts/shaft.sldprt")
	assert.Contains(t, state, "assemblies/frame.sldasm")

	entry := state["parts/bracket.sldprt"]
	assert.Equal(t, int64(len("bracket")), entry.Size)
	assert.NotEmpty(t, entry.ETag)
	assert.False(t, entry.ModTime.IsZero())
}

func TestScanFile(t *testing.T) {
	rig := newTestRig(t)
	etag := rig.writeVaultFile(t, "a.sldprt", "content")

	entry, err := rig.scanner.ScanFile("a.sldprt")
	require.NoError(t, err)
	assert.Equal(t, etag, entry.ETag)

	_, err = rig.scanner.ScanFile("missing.sldprt")
	require.Error(t, err)
}

func TestScanETagCache(t *testing.T) {
	rig := newTestRig(t)
	rig.writeVaultFile(t, "a.sldprt", "v1")

	first, err := rig.scanner.ScanFile("a.sldprt")
	require.NoError(t, err)

	// Rewrite with same size but different content, keeping the mtime, to
	// prove the (size, mtime) key serves from cache.
	absPath := rig.ws.AbsPath("a.sldprt")
	info, err := os.Stat(absPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(absPath, []byte("v2"), 0o644))
	require.NoError(t, os.Chtimes(absPath, time.Now(), info.ModTime()))

	cached, err := rig.scanner.ScanFile("a.sldprt")
	require.NoError(t, err)
	assert.Equal(t, first.ETag, cached.ETag)

	// Invalidate forces a re-hash.
	rig.scanner.Invalidate("a.sldprt")
	fresh, err := rig.scanner.ScanFile("a.sldprt")
	require.NoError(t, err)
	assert.NotEqual(t, first.ETag, fresh.ETag)
}

package sync

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapDest builds a DestLookup from a fixed set of existing entries.
// Values mark directories.
func mapDest(entries map[string]bool) DestLookup {
	return func(relPath string) (bool, bool) {
		isDir, ok := entries[relPath]
		return ok, isDir
	}
}

func TestParseConflictPolicy(t *testing.T) {
	p, err := ParseConflictPolicy(" Rename ")
	require.NoError(t, err)
	assert.Equal(t, PolicyRename, p)

	_, err = ParseConflictPolicy("clobber")
	assert.Error(t, err)
}

func TestDetectConflicts(t *testing.T) {
	dest := mapDest(map[string]bool{
		"parts/bracket.sldprt": false,
		"parts/fixtures":       true,
	})

	proposed := []ProposedItem{
		{SourcePath: "in/bracket.sldprt", DestPath: "parts/bracket.sldprt"},
		{SourcePath: "in/shaft.sldprt", DestPath: "parts/shaft.sldprt"},
		{SourcePath: "in/fixtures", DestPath: "parts/fixtures", IsDir: true},
	}

	candidates := DetectConflicts(proposed, dest)
	require.Len(t, candidates, 2)
	assert.Equal(t, "parts/bracket.sldprt", candidates[0].Path)
	assert.False(t, candidates[0].IsDir)
	assert.Equal(t, "parts/fixtures", candidates[1].Path)
	assert.True(t, candidates[1].IsDir)
}

func TestResolveBatchNoPolicy(t *testing.T) {
	dest := mapDest(map[string]bool{"a.sldprt": false})
	proposed := []ProposedItem{{SourcePath: "in/a.sldprt", DestPath: "a.sldprt"}}

	// No default, ever: an undecided collision fails the batch.
	_, err := ResolveBatch(proposed, dest, nil)
	require.ErrorIs(t, err, ErrConflictUnresolved)

	// ApplyToAll without a file policy is still undecided.
	_, err = ResolveBatch(proposed, dest, &ResolveOptions{ApplyToAll: true})
	require.ErrorIs(t, err, ErrConflictUnresolved)
}

func TestResolveBatchRename(t *testing.T) {
	// A 12-file drop where three names collide with existing vault files.
	existing := map[string]bool{
		"proj/bracket.sldprt": false,
		"proj/shaft.sldprt":   false,
		"proj/plate.sldprt":   false,
	}
	dest := mapDest(existing)

	var proposed []ProposedItem
	for _, name := range []string{"bracket", "shaft", "plate"} {
		proposed = append(proposed, ProposedItem{
			SourcePath: "drop/" + name + ".sldprt",
			DestPath:   "proj/" + name + ".sldprt",
		})
	}
	for i := 0; i < 9; i++ {
		name := fmt.Sprintf("gear-%02d.sldprt", i)
		proposed = append(proposed, ProposedItem{
			SourcePath: "drop/" + name,
			DestPath:   "proj/" + name,
		})
	}

	plan, err := ResolveBatch(proposed, dest, &ResolveOptions{
		FilePolicy: PolicyRename,
		ApplyToAll: true,
	})
	require.NoError(t, err)

	// All 12 items survive; only the colliding three are renamed.
	require.Len(t, plan.Items, 12)
	require.Len(t, plan.Renamed, 3)
	assert.Equal(t, "proj/bracket (1).sldprt", plan.Renamed["proj/bracket.sldprt"])
	assert.Equal(t, "proj/shaft (1).sldprt", plan.Renamed["proj/shaft.sldprt"])
	assert.Equal(t, "proj/plate (1).sldprt", plan.Renamed["proj/plate.sldprt"])
	assert.Empty(t, plan.Skipped)
	assert.Empty(t, plan.Overwrite)

	// The resolved batch is collision-free against both the destination
	// and itself.
	seen := make(map[string]bool)
	for _, item := range plan.Items {
		_, clash := existing[item.DestPath]
		assert.False(t, clash, "resolved destination %q still collides with the vault", item.DestPath)
		assert.False(t, seen[item.DestPath], "resolved destination %q collides within the batch", item.DestPath)
		seen[item.DestPath] = true
	}
}

func TestResolveBatchRenameCounter(t *testing.T) {
	// "bracket (1)" is already taken, so the generated name jumps to (2).
	dest := mapDest(map[string]bool{
		"bracket.sldprt":     false,
		"bracket (1).sldprt": false,
	})
	proposed := []ProposedItem{{SourcePath: "in/bracket.sldprt", DestPath: "bracket.sldprt"}}

	plan, err := ResolveBatch(proposed, dest, &ResolveOptions{FilePolicy: PolicyRename, ApplyToAll: true})
	require.NoError(t, err)
	assert.Equal(t, "bracket (2).sldprt", plan.Renamed["bracket.sldprt"])
}

func TestResolveBatchRenameAvoidsBatchSiblings(t *testing.T) {
	// The batch itself already claims "a (1).txt", so the rename for the
	// colliding "a.txt" must skip past it.
	dest := mapDest(map[string]bool{"a.txt": false})
	proposed := []ProposedItem{
		{SourcePath: "in/a.txt", DestPath: "a.txt"},
		{SourcePath: "in/a (1).txt", DestPath: "a (1).txt"},
	}

	plan, err := ResolveBatch(proposed, dest, &ResolveOptions{FilePolicy: PolicyRename, ApplyToAll: true})
	require.NoError(t, err)
	assert.Equal(t, "a (2).txt", plan.Renamed["a.txt"])
}

func TestResolveBatchFolderDecisions(t *testing.T) {
	dest := mapDest(map[string]bool{
		"fixtures":            true,
		"fixtures/jig.sldprt": false,
	})

	proposed := []ProposedItem{
		{SourcePath: "in/fixtures", DestPath: "fixtures", IsDir: true},
		{SourcePath: "in/fixtures/jig.sldprt", DestPath: "fixtures/jig.sldprt"},
		{SourcePath: "in/fixtures/clamp.sldprt", DestPath: "fixtures/clamp.sldprt"},
	}

	t.Run("skip drops children", func(t *testing.T) {
		plan, err := ResolveBatch(proposed, dest, &ResolveOptions{FolderPolicy: PolicySkip, ApplyToAll: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"fixtures"}, plan.Skipped)
		assert.Empty(t, plan.Items)
	})

	t.Run("merge recurses into children", func(t *testing.T) {
		plan, err := ResolveBatch(proposed, dest, &ResolveOptions{
			FilePolicy:   PolicyOverwrite,
			FolderPolicy: PolicyMerge,
			ApplyToAll:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"fixtures"}, plan.Merged)
		// Colliding child resolved by the file policy, new child passes through.
		assert.Equal(t, []string{"fixtures/jig.sldprt"}, plan.Overwrite)
		require.Len(t, plan.Items, 2)
	})

	t.Run("rename remaps children", func(t *testing.T) {
		plan, err := ResolveBatch(proposed, dest, &ResolveOptions{FolderPolicy: PolicyRename, ApplyToAll: true})
		require.NoError(t, err)
		assert.Equal(t, "fixtures (1)", plan.Renamed["fixtures"])

		var dests []string
		for _, item := range plan.Items {
			dests = append(dests, item.DestPath)
		}
		assert.ElementsMatch(t, []string{
			"fixtures (1)",
			"fixtures (1)/jig.sldprt",
			"fixtures (1)/clamp.sldprt",
		}, dests)
	})

	t.Run("cancel aborts the batch", func(t *testing.T) {
		_, err := ResolveBatch(proposed, dest, &ResolveOptions{FolderPolicy: PolicyCancel, ApplyToAll: true})
		require.ErrorIs(t, err, ErrBatchCancelled)
	})
}

func TestResolveBatchPerPathOverride(t *testing.T) {
	dest := mapDest(map[string]bool{
		"a.sldprt": false,
		"b.sldprt": false,
	})
	proposed := []ProposedItem{
		{SourcePath: "in/a.sldprt", DestPath: "a.sldprt"},
		{SourcePath: "in/b.sldprt", DestPath: "b.sldprt"},
	}

	plan, err := ResolveBatch(proposed, dest, &ResolveOptions{
		FilePolicy: PolicyRename,
		ApplyToAll: true,
		PerPath:    map[string]ConflictPolicy{"b.sldprt": PolicySkip},
	})
	require.NoError(t, err)
	assert.Equal(t, "a (1).sldprt", plan.Renamed["a.sldprt"])
	assert.Equal(t, []string{"b.sldprt"}, plan.Skipped)
	require.Len(t, plan.Items, 1)
}

func TestResolveBatchPolicyKindMismatch(t *testing.T) {
	// Overwrite never applies to folders.
	dest := mapDest(map[string]bool{"fixtures": true})
	proposed := []ProposedItem{{SourcePath: "in/fixtures", DestPath: "fixtures", IsDir: true}}

	_, err := ResolveBatch(proposed, dest, &ResolveOptions{FolderPolicy: PolicyOverwrite, ApplyToAll: true})
	require.ErrorIs(t, err, ErrConflictUnresolved)
}

func TestNextFreeName(t *testing.T) {
	taken := func(tk ...string) func(string) bool {
		set := make(map[string]bool, len(tk))
		for _, s := range tk {
			set[s] = true
		}
		return func(p string) bool { return set[p] }
	}

	assert.Equal(t, "a (1).txt", nextFreeName("a.txt", false, taken()))
	assert.Equal(t, "a (3).txt", nextFreeName("a.txt", false, taken("a (1).txt", "a (2).txt")))
	assert.Equal(t, "dir/a (1).txt", nextFreeName("dir/a.txt", false, taken()))
	assert.Equal(t, "fixtures (1)", nextFreeName("fixtures", true, taken()))
}

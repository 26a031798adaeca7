package sync

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

var (
	// ErrConflictUnresolved means a collision had no explicit policy. There
	// is no default: callers must decide, never the resolver.
	ErrConflictUnresolved = errors.New("conflict unresolved: no resolution policy supplied")

	// ErrBatchCancelled means a folder collision was resolved with
	// PolicyCancel, aborting the entire batch.
	ErrBatchCancelled = errors.New("batch cancelled by conflict policy")
)

// ConflictPolicy is the closed set of resolution decisions.
type ConflictPolicy int

const (
	PolicyUnset ConflictPolicy = iota
	PolicyOverwrite
	PolicyRename
	PolicySkip
	PolicyMerge
	PolicyCancel
)

func (p ConflictPolicy) String() string {
	switch p {
	case PolicyOverwrite:
		return "overwrite"
	case PolicyRename:
		return "rename"
	case PolicySkip:
		return "skip"
	case PolicyMerge:
		return "merge"
	case PolicyCancel:
		return "cancel"
	default:
		return "unset"
	}
}

// ParseConflictPolicy maps a config string to a policy. Unknown strings are
// an error, not a fallback.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overwrite":
		return PolicyOverwrite, nil
	case "rename":
		return PolicyRename, nil
	case "skip":
		return PolicySkip, nil
	case "merge":
		return PolicyMerge, nil
	case "cancel":
		return PolicyCancel, nil
	default:
		return PolicyUnset, fmt.Errorf("unknown conflict policy %q", s)
	}
}

// validFor reports whether the policy applies to the given entry kind.
// Overwrite is file-only; merge and cancel are folder-only.
func (p ConflictPolicy) validFor(isDir bool) bool {
	switch p {
	case PolicyRename, PolicySkip:
		return true
	case PolicyOverwrite:
		return !isDir
	case PolicyMerge, PolicyCancel:
		return isDir
	default:
		return false
	}
}

// ConflictCandidate is one proposed destination that collides with an
// existing entry. Transient: produced by detection, consumed by one
// resolution decision.
type ConflictCandidate struct {
	Path  string
	IsDir bool
}

// DestLookup reports whether a vault-relative path exists at the
// destination, and whether it is a directory.
type DestLookup func(relPath string) (exists bool, isDir bool)

// DetectConflicts returns a candidate for every proposed path that collides
// with an existing destination entry, and none for non-colliding paths.
// Proposed folder paths collide with any existing entry of the same name.
func DetectConflicts(proposed []ProposedItem, dest DestLookup) []ConflictCandidate {
	var candidates []ConflictCandidate
	for _, item := range proposed {
		if exists, _ := dest(item.DestPath); exists {
			candidates = append(candidates, ConflictCandidate{Path: item.DestPath, IsDir: item.IsDir})
		}
	}
	return candidates
}

// ProposedItem is one item of a copy/move batch: a source and its proposed
// destination, both vault-relative.
type ProposedItem struct {
	SourcePath string
	DestPath   string
	IsDir      bool
}

// ResolveOptions carries the caller's resolution decisions. PerPath wins
// over the batch-wide defaults; the defaults apply only when ApplyToAll is
// set. A collision with no applicable decision fails the batch with
// ErrConflictUnresolved.
type ResolveOptions struct {
	FilePolicy   ConflictPolicy
	FolderPolicy ConflictPolicy
	ApplyToAll   bool
	PerPath      map[string]ConflictPolicy
}

func (o *ResolveOptions) policyFor(c *ConflictCandidate) (ConflictPolicy, error) {
	if p, ok := o.PerPath[c.Path]; ok {
		if !p.validFor(c.IsDir) {
			return PolicyUnset, fmt.Errorf("policy %s does not apply to %q: %w", p, c.Path, ErrConflictUnresolved)
		}
		return p, nil
	}

	if !o.ApplyToAll {
		return PolicyUnset, fmt.Errorf("collision at %q: %w", c.Path, ErrConflictUnresolved)
	}

	p := o.FilePolicy
	if c.IsDir {
		p = o.FolderPolicy
	}
	if p == PolicyUnset {
		return PolicyUnset, fmt.Errorf("collision at %q: %w", c.Path, ErrConflictUnresolved)
	}
	if !p.validFor(c.IsDir) {
		return PolicyUnset, fmt.Errorf("policy %s does not apply to %q: %w", p, c.Path, ErrConflictUnresolved)
	}
	return p, nil
}

// ResolvePlan is the deterministic outcome of resolving a batch. Renamed
// maps original destination paths to their collision-free replacements;
// folder renames are reflected in the destinations of all their children.
type ResolvePlan struct {
	Items     []ProposedItem
	Renamed   map[string]string
	Overwrite []string
	Skipped   []string
	Merged    []string
}

// ResolveBatch applies resolution policies to a batch of proposed items.
// Generated names are guaranteed collision-free against both the existing
// destination and every other item in the resolved batch.
func ResolveBatch(proposed []ProposedItem, dest DestLookup, opts *ResolveOptions) (*ResolvePlan, error) {
	if opts == nil {
		opts = &ResolveOptions{}
	}

	plan := &ResolvePlan{
		Renamed: make(map[string]string),
	}

	// Names already claimed by this batch. Seeded as items resolve so a
	// rename never collides with a pending sibling.
	taken := make(map[string]struct{})
	for _, item := range proposed {
		taken[item.DestPath] = struct{}{}
	}

	// Folders first, in path order, so children of a renamed or skipped
	// folder inherit the decision.
	ordered := make([]ProposedItem, len(proposed))
	copy(ordered, proposed)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].IsDir != ordered[j].IsDir {
			return ordered[i].IsDir
		}
		return ordered[i].DestPath < ordered[j].DestPath
	})

	// Destination prefixes dropped (skip) or remapped (rename) by a parent
	// folder decision.
	dropped := make(map[string]struct{})
	remapped := make(map[string]string)

	for _, item := range ordered {
		destPath := item.DestPath

		if parentDropped(destPath, dropped) {
			continue
		}
		destPath = applyRemap(destPath, remapped)

		exists, _ := dest(destPath)
		if !exists {
			item.DestPath = destPath
			plan.Items = append(plan.Items, item)
			continue
		}

		candidate := &ConflictCandidate{Path: destPath, IsDir: item.IsDir}
		policy, err := opts.policyFor(candidate)
		if err != nil {
			return nil, err
		}

		switch policy {
		case PolicyCancel:
			return nil, fmt.Errorf("collision at %q: %w", destPath, ErrBatchCancelled)

		case PolicySkip:
			plan.Skipped = append(plan.Skipped, destPath)
			if item.IsDir {
				dropped[destPath+"/"] = struct{}{}
			}

		case PolicyOverwrite:
			plan.Overwrite = append(plan.Overwrite, destPath)
			item.DestPath = destPath
			plan.Items = append(plan.Items, item)

		case PolicyMerge:
			// The folder itself is not copied; children union into the
			// existing folder and recurse through their own collisions.
			plan.Merged = append(plan.Merged, destPath)

		case PolicyRename:
			renamed := nextFreeName(destPath, item.IsDir, func(p string) bool {
				if _, ok := taken[p]; ok {
					return true
				}
				exists, _ := dest(p)
				return exists
			})
			taken[renamed] = struct{}{}
			plan.Renamed[destPath] = renamed
			if item.IsDir {
				remapped[destPath+"/"] = renamed + "/"
			}
			item.DestPath = renamed
			plan.Items = append(plan.Items, item)

		default:
			return nil, fmt.Errorf("collision at %q: %w", destPath, ErrConflictUnresolved)
		}
	}

	return plan, nil
}

func parentDropped(destPath string, dropped map[string]struct{}) bool {
	for prefix := range dropped {
		if strings.HasPrefix(destPath, prefix) {
			return true
		}
	}
	return false
}

func applyRemap(destPath string, remapped map[string]string) string {
	for prefix, replacement := range remapped {
		if strings.HasPrefix(destPath, prefix) {
			return replacement + strings.TrimPrefix(destPath, prefix)
		}
	}
	return destPath
}

// nextFreeName appends " (n)" with the lowest unused n. For files the
// suffix goes before the extension, for folders at the end.
func nextFreeName(destPath string, isDir bool, taken func(string) bool) string {
	dir := path.Dir(destPath)
	name := path.Base(destPath)

	ext := ""
	if !isDir {
		ext = path.Ext(name)
		name = strings.TrimSuffix(name, ext)
	}

	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", name, n, ext)
		if dir != "." {
			candidate = dir + "/" + candidate
		}
		if !taken(candidate) {
			return candidate
		}
	}
}

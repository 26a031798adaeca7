package sync

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/partvault/partvault/internal/vaultsdk"
)

// DiffStatus is the closed set of per-file states a vault path can be in.
// Exactly one status holds per path at any observation instant, and it is
// always recomputed from (local, remote, journal), never patched in place.
type DiffStatus int

const (
	// StatusNone means there is nothing to reconcile for the path: either
	// both sides are gone, or the file exists only on the server.
	StatusNone DiffStatus = iota
	StatusUnmodified
	StatusAdded
	StatusCheckedOutByMe
	StatusCheckedOutByOther
	StatusOutdatedLocal
	StatusDeletedRemote
	StatusStagedForCheckin
)

var diffStatusNames = map[DiffStatus]string{
	StatusNone:              "none",
	StatusUnmodified:        "unmodified",
	StatusAdded:             "added",
	StatusCheckedOutByMe:    "checkedOutByMe",
	StatusCheckedOutByOther: "checkedOutByOther",
	StatusOutdatedLocal:     "outdatedLocal",
	StatusDeletedRemote:     "deletedRemote",
	StatusStagedForCheckin:  "stagedForCheckin",
}

func (s DiffStatus) String() string {
	if name, ok := diffStatusNames[s]; ok {
		return name
	}
	return "none"
}

func (s DiffStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Classification pairs a path's computed status with the inputs that
// produced it, so downstream consumers can partition without re-querying.
type Classification struct {
	Path   string
	Status DiffStatus
	Local  *LocalEntry
	Remote *vaultsdk.FileRecord
	Synced *JournalEntry
}

// MissingLocally reports whether the server holds a live copy that has no
// local counterpart. Distinct from Added (the inverse) and surfaced by the
// reconciler as "missing locally", never as a reupload candidate.
func (c *Classification) MissingLocally() bool {
	return c.Local == nil && c.Remote != nil && !c.Remote.Deleted
}

// Classifier computes DiffStatus for vault paths. It carries only the
// caller's identity; classification itself is pure and side-effect free.
type Classifier struct {
	user      string
	machineID string
}

func NewClassifier(user, machineID string) *Classifier {
	return &Classifier{user: user, machineID: machineID}
}

// Classify maps one (local, remote, last-synced) triple to its status.
//
// Precedence is fixed: existence and deletion first, then checkout state,
// then version staleness. Checkout is evaluated before staleness so a
// checked-out file is never treated as an auto-update candidate.
func (c *Classifier) Classify(local *LocalEntry, remote *vaultsdk.FileRecord, synced *JournalEntry) DiffStatus {
	switch {
	case local == nil && remote == nil:
		return StatusNone

	case remote == nil:
		return StatusAdded

	case remote.Deleted && local == nil:
		// Deleted on the server and already gone locally.
		return StatusNone

	case remote.Deleted:
		// Orphan: someone deleted the server copy while ours survives.
		return StatusDeletedRemote

	case remote.IsCheckedOutBy(c.user):
		return StatusCheckedOutByMe

	case remote.IsCheckedOut():
		return StatusCheckedOutByOther

	case local == nil:
		// Live on the server, absent here. Nothing local to diff; the
		// reconciler reports these as missing locally.
		return StatusNone

	case synced == nil || remote.Version > synced.Version:
		return StatusOutdatedLocal

	default:
		return StatusUnmodified
	}
}

// StagedLookup reports whether a path has a queued offline check-in.
type StagedLookup func(relPath string) bool

// ClassifyAll classifies the union of all observed paths. Paths with a
// staged check-in report StatusStagedForCheckin regardless of the pure
// classification: the queued operation is the user's pending intent, and
// replay will surface any conflict it runs into.
func (c *Classifier) ClassifyAll(
	localState map[string]*LocalEntry,
	remoteState map[string]*vaultsdk.FileRecord,
	journalState map[string]*JournalEntry,
	staged StagedLookup,
) map[string]*Classification {
	paths := mapset.NewThreadUnsafeSet[string]()
	for path := range localState {
		paths.Add(path)
	}
	for path := range remoteState {
		paths.Add(path)
	}
	for path := range journalState {
		paths.Add(path)
	}

	result := make(map[string]*Classification, paths.Cardinality())
	for path := range paths.Iter() {
		cls := &Classification{
			Path:   path,
			Local:  localState[path],
			Remote: remoteState[path],
			Synced: journalState[path],
		}

		if staged != nil && staged(path) {
			cls.Status = StatusStagedForCheckin
		} else {
			cls.Status = c.Classify(cls.Local, cls.Remote, cls.Synced)
		}

		result[path] = cls
	}

	return result
}

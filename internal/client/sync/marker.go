package sync

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/partvault/partvault/internal/utils"
)

// MarkerType is a dot-suffix inserted before the file extension to flag a
// file in the working tree. Plain suffixes keep the marked files openable
// in CAD tools and visible in the vault folder.
type MarkerType string

const (
	// Conflict marks a sibling copy holding edits that lost a concurrent
	// update, e.g. a staged check-in whose lock was force-released.
	Conflict MarkerType = ".conflict"
	// Rejected marks content the server refused at check-in.
	Rejected MarkerType = ".rejected"
)

var allMarkers = []MarkerType{Conflict, Rejected}

// Rotation timestamps sort lexicographically by time.
const (
	markerTimeFormat = "20060102150405"
	timestampPattern = `\d{14}`
)

var markerRegexes = make(map[MarkerType]*regexp.Regexp)

func init() {
	for _, marker := range allMarkers {
		// marker suffix, optionally followed by .<14-digit timestamp>
		pattern := fmt.Sprintf(`%s(\.%s)?`, regexp.QuoteMeta(string(marker)), timestampPattern)
		markerRegexes[marker] = regexp.MustCompile(pattern)
	}
}

// SetMarker renames the file at path to its marked name. An existing marked
// file is rotated aside with its timestamp first, so earlier conflict copies
// are never overwritten. Returns the marked path.
func SetMarker(path string, mtype MarkerType) (string, error) {
	if !utils.FileExists(path) {
		return "", fmt.Errorf("cannot mark file: source file does not exist: %s", path)
	}

	markedPath := asMarkedPath(path, mtype)

	if utils.FileExists(markedPath) {
		rotatedPath := asRotatedPath(markedPath, time.Now())
		if err := os.Rename(markedPath, rotatedPath); err != nil {
			return "", fmt.Errorf("failed to rotate marked file %s: %w", markedPath, err)
		}
		slog.Debug("rotated marked file", "from", markedPath, "to", rotatedPath)
	}

	if err := os.Rename(path, markedPath); err != nil {
		return "", fmt.Errorf("failed to mark file %s: %w", path, err)
	}

	return markedPath, nil
}

// PlaceMarkerCopy copies srcPath next to destPath under destPath's marked
// name, rotating any existing marked file. Used by staged replay to surface
// a losing snapshot without touching the current working copy.
func PlaceMarkerCopy(srcPath, destPath string, mtype MarkerType) (string, error) {
	if !utils.FileExists(srcPath) {
		return "", fmt.Errorf("cannot place marker copy: source does not exist: %s", srcPath)
	}

	markedPath := asMarkedPath(destPath, mtype)

	if utils.FileExists(markedPath) {
		rotatedPath := asRotatedPath(markedPath, time.Now())
		if err := os.Rename(markedPath, rotatedPath); err != nil {
			return "", fmt.Errorf("failed to rotate marked file %s: %w", markedPath, err)
		}
	}

	if err := utils.CopyFile(srcPath, markedPath); err != nil {
		return "", fmt.Errorf("failed to place marker copy at %s: %w", markedPath, err)
	}

	return markedPath, nil
}

// RemoveMarker renames a marked file back to its original name. Fails if
// the original name is occupied.
func RemoveMarker(path string) (string, error) {
	if !IsMarkedPath(path) {
		return path, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("cannot unmark file: source file does not exist: %s", path)
	}

	originalPath := UnmarkedPath(path)

	if _, err := os.Stat(originalPath); err == nil {
		return "", fmt.Errorf("cannot unmark file: destination already exists: %s", originalPath)
	}

	if err := os.Rename(path, originalPath); err != nil {
		return "", fmt.Errorf("failed to unmark file %s: %w", path, err)
	}

	return originalPath, nil
}

// IsMarkedPath checks if a path string carries any known marker, including
// rotated variants.
func IsMarkedPath(path string) bool {
	return strings.Contains(path, string(Conflict)) || strings.Contains(path, string(Rejected))
}

// IsConflictPath checks if a path is specifically marked as a conflict.
func IsConflictPath(path string) bool {
	return slices.Contains(Markers(path), Conflict)
}

// IsRejectedPath checks if a path is specifically marked as rejected.
func IsRejectedPath(path string) bool {
	return slices.Contains(Markers(path), Rejected)
}

// ConflictCopyExists checks the filesystem for any conflict copy of
// basePath, including rotated ones.
func ConflictCopyExists(basePath string) bool {
	return markerFileExists(basePath, Conflict)
}

func markerFileExists(basePath string, mtype MarkerType) bool {
	if IsMarkedPath(basePath) {
		basePath = UnmarkedPath(basePath)
	}

	ext := filepath.Ext(basePath)
	base := strings.TrimSuffix(basePath, ext)

	globPattern := base + string(mtype) + "*" + ext
	matches, err := filepath.Glob(globPattern)
	if err != nil {
		slog.Error("failed to glob for marked files", "pattern", globPattern, "error", err)
		return false
	}

	return len(matches) > 0
}

// UnmarkedPath strips all markers and rotation timestamps from a path,
// revealing the original name.
func UnmarkedPath(path string) string {
	originalPath := path
	for _, marker := range allMarkers {
		if re, ok := markerRegexes[marker]; ok {
			originalPath = re.ReplaceAllString(originalPath, "")
		}
	}
	return originalPath
}

// Markers finds all known markers in a path string.
func Markers(path string) []MarkerType {
	var found []MarkerType
	for _, marker := range allMarkers {
		if re, ok := markerRegexes[marker]; ok && re.MatchString(path) {
			found = append(found, marker)
		}
	}
	return found
}

// asMarkedPath inserts the marker before the extension.
// "bracket.sldprt" -> "bracket.conflict.sldprt"
func asMarkedPath(path string, marker MarkerType) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + string(marker) + ext
}

// asRotatedPath inserts a timestamp before the extension.
// "bracket.conflict.sldprt" -> "bracket.conflict.20260815093000.sldprt"
func asRotatedPath(path string, t time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.%s%s", base, t.Format(markerTimeFormat), ext)
}

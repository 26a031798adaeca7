package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/partvault/partvault/internal/utils"
)

// IgnoreFileName is a plain gitignore-style file at the vault root for
// user-defined exclusions.
const IgnoreFileName = "pvignore"

var defaultIgnoreLines = []string{
	// partvault
	"pvignore",
	".partvault/",
	"**/*.conflict.*",
	"**/*.rejected.*",
	// CAD temp and lock files
	"*.swp",
	"*.lck",
	"*.tmp",
	"*.bak",
	"*.log",
	// IDE/Editor-specific
	".vscode",
	".idea",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	"Icon",
}

// IgnoreList decides which working-tree paths are excluded from scanning and
// sync. Matching is gitignore semantics against vault-relative paths.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	il := &IgnoreList{baseDir: baseDir}
	il.Load()
	return il
}

// Load compiles the default rules plus any pvignore file at the vault root.
func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	ignoreLines := defaultIgnoreLines

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open pvignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading pvignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded pvignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// cadLockPrefix marks the transient lock files CAD tools drop next to an
// open document, e.g. ~$assembly.sldasm. Matched in code: gitignore
// compilation leaves $ as a regex anchor, so no pattern can express it.
const cadLockPrefix = "~$"

func (s *IgnoreList) ShouldIgnore(relPath string) bool {
	if strings.HasPrefix(filepath.Base(relPath), cadLockPrefix) {
		return true
	}
	return s.ignore.MatchesPath(relPath)
}

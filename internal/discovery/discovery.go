// Package discovery walks the Claude Code transcript roots and turns the
// directory layout into a flat, sorted list of session files, and
// package-local incremental readers tail those files by byte offset.
package discovery

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// SessionFileInfo describes one JSONL transcript file on disk.
type SessionFileInfo struct {
	Path        string
	ProjectPath string // decoded absolute project path, "" for history.jsonl
	SessionID   string // file base name without extension, agent- prefix stripped for subagents
	IsSubagent  bool
	IsHistory   bool
	ModTime     int64 // unix nanoseconds, for descending sort
	Size        int64
}

// DefaultRoots returns the transcript roots searched in order, per
// spec.md §6: $HOME/.claude/projects, then the platform data dir, then
// the platform config dir variant of "Claude"/"claude" projects. On
// macOS and Windows the data and config dirs coincide, so one root
// covers both.
func DefaultRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	roots := []string{filepath.Join(home, ".claude", "projects")}
	switch runtime.GOOS {
	case "darwin":
		roots = append(roots, filepath.Join(home, "Library", "Application Support", "Claude", "projects"))
	case "windows":
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			roots = append(roots, filepath.Join(appdata, "Claude", "projects"))
		}
	default:
		if data := os.Getenv("XDG_DATA_HOME"); data != "" {
			roots = append(roots, filepath.Join(data, "Claude", "projects"))
		} else {
			roots = append(roots, filepath.Join(home, ".local", "share", "Claude", "projects"))
		}
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			roots = append(roots, filepath.Join(xdg, "claude", "projects"))
		} else {
			roots = append(roots, filepath.Join(home, ".config", "claude", "projects"))
		}
	}
	return roots
}

// DefaultHistoryPath returns the optional global history.jsonl path.
func DefaultHistoryPath() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".claude", "history.jsonl"), true
}

// Walk scans every root and the optional global history file, returning
// SessionFileInfo entries sorted by mtime descending.
func Walk(roots []string, historyPath string) ([]SessionFileInfo, error) {
	var out []SessionFileInfo

	for _, root := range roots {
		entries, err := walkRoot(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out = append(out, entries...)
	}

	if historyPath != "" {
		if info, err := os.Stat(historyPath); err == nil && !info.IsDir() {
			out = append(out, SessionFileInfo{
				Path:      historyPath,
				SessionID: "history",
				IsHistory: true,
				ModTime:   info.ModTime().UnixNano(),
				Size:      info.Size(),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ModTime > out[j].ModTime
	})
	return out, nil
}

func walkRoot(root string) ([]SessionFileInfo, error) {
	projectDirs, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var out []SessionFileInfo
	for _, projectDir := range projectDirs {
		if !projectDir.IsDir() {
			continue
		}
		projectPath := decodeProjectPath(projectDir.Name())
		projectAbs := filepath.Join(root, projectDir.Name())

		sessionEntries, err := os.ReadDir(projectAbs)
		if err != nil {
			continue // unreadable project dir: skip, never abort the walk
		}

		for _, sessionEntry := range sessionEntries {
			name := sessionEntry.Name()
			if sessionEntry.IsDir() {
				if name != "" {
					out = append(out, subagentFiles(projectAbs, name, projectPath)...)
				}
				continue
			}
			if !strings.HasSuffix(name, ".jsonl") {
				continue
			}
			info, err := sessionEntry.Info()
			if err != nil {
				continue
			}
			out = append(out, SessionFileInfo{
				Path:        filepath.Join(projectAbs, name),
				ProjectPath: projectPath,
				SessionID:   strings.TrimSuffix(name, ".jsonl"),
				ModTime:     info.ModTime().UnixNano(),
				Size:        info.Size(),
			})
		}
	}
	return out, nil
}

// subagentFiles collects <project>/<session>/subagents/*.jsonl files for
// one session subdirectory.
func subagentFiles(projectAbs, sessionDirName, projectPath string) []SessionFileInfo {
	subDir := filepath.Join(projectAbs, sessionDirName, "subagents")
	entries, err := os.ReadDir(subDir)
	if err != nil {
		return nil
	}

	var out []SessionFileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sessionID := strings.TrimSuffix(name, ".jsonl")
		sessionID = strings.TrimPrefix(sessionID, "agent-")
		out = append(out, SessionFileInfo{
			Path:        filepath.Join(subDir, name),
			ProjectPath: projectPath,
			SessionID:   sessionID,
			IsSubagent:  true,
			ModTime:     info.ModTime().UnixNano(),
			Size:        info.Size(),
		})
	}
	return out
}

// decodeProjectPath reverses the project directory name encoding: '-'
// becomes '/', with a leading '/' added if absent.
func decodeProjectPath(dirName string) string {
	decoded := strings.ReplaceAll(dirName, "-", "/")
	if !strings.HasPrefix(decoded, "/") {
		decoded = "/" + decoded
	}
	return decoded
}

// Podbox data storage
//
// Everything lives as indented JSON under a single data directory:
// players.json, settings.json, history.json, plus timestamped folders under
// backups/. Files are written to a temp file and renamed so a crash never
// leaves a half-written document behind.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
)

const snapshotVersion = "1.0"

// ErrBackupNotFound is returned when restoring a backup that does not exist.
var ErrBackupNotFound = errors.New("backup not found")

// Settings are the user-adjustable options persisted in settings.json.
type Settings struct {
	SizeConfig
	AutoSave        bool `json:"auto_save"`
	KeepHistory     bool `json:"keep_history"`
	MaxHistoryItems int  `json:"max_history_items"`
}

func defaultSettings() Settings {
	return Settings{
		SizeConfig: SizeConfig{
			MinSize:    3,
			TargetSize: 4,
			MaxSize:    8,
		},
		AutoSave:        true,
		KeepHistory:     true,
		MaxHistoryItems: 50,
	}
}

// HistoryEntry is one saved pod assignment. Entries are immutable once
// appended.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Pods      []Pod     `json:"pods"`
}

// Snapshot is the single-file export format used for manual transfer
// between devices.
type Snapshot struct {
	Players         []string       `json:"players"`
	Settings        Settings       `json:"settings"`
	History         []HistoryEntry `json:"history"`
	ExportTimestamp time.Time      `json:"export_timestamp"`
	Version         string         `json:"version"`
}

type playersFile struct {
	Players   []string  `json:"players"`
	Count     int       `json:"count"`
	LastSaved time.Time `json:"last_saved"`
}

type historyFile struct {
	History   []HistoryEntry `json:"history"`
	Count     int            `json:"count"`
	LastSaved time.Time      `json:"last_saved"`
}

// Store reads and writes the data directory.
type Store struct {
	dataDir      string
	backupDir    string
	playersPath  string
	settingsPath string
	historyPath  string
}

func newStore(dataDir string) (*Store, error) {
	s := &Store{
		dataDir:      dataDir,
		backupDir:    filepath.Join(dataDir, "backups"),
		playersPath:  filepath.Join(dataDir, "players.json"),
		settingsPath: filepath.Join(dataDir, "settings.json"),
		historyPath:  filepath.Join(dataDir, "history.json"),
	}

	for _, dir := range []string{s.dataDir, s.backupDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	return s, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}

	return nil
}

// readJSON decodes path into v. A missing file is not an error; v is left
// untouched and false is returned.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}

	return true, nil
}

func (s *Store) SavePlayers(players []string) error {
	return writeJSON(s.playersPath, playersFile{
		Players:   players,
		Count:     len(players),
		LastSaved: time.Now(),
	})
}

func (s *Store) LoadPlayers() ([]string, error) {
	var f playersFile
	if _, err := readJSON(s.playersPath, &f); err != nil {
		return nil, err
	}
	return f.Players, nil
}

func (s *Store) SaveSettings(settings Settings) error {
	return writeJSON(s.settingsPath, settings)
}

// LoadSettings returns the saved settings layered over the defaults, so
// fields added after a file was written still get sane values.
func (s *Store) LoadSettings() (Settings, error) {
	settings := defaultSettings()
	if _, err := readJSON(s.settingsPath, &settings); err != nil {
		return defaultSettings(), err
	}

	settings.SizeConfig = settings.SizeConfig.normalized()
	if settings.MaxHistoryItems < 1 {
		settings.MaxHistoryItems = defaultSettings().MaxHistoryItems
	}

	return settings, nil
}

func (s *Store) SaveHistory(history []HistoryEntry) error {
	return writeJSON(s.historyPath, historyFile{
		History:   history,
		Count:     len(history),
		LastSaved: time.Now(),
	})
}

func (s *Store) LoadHistory() ([]HistoryEntry, error) {
	var f historyFile
	if _, err := readJSON(s.historyPath, &f); err != nil {
		return nil, err
	}
	return f.History, nil
}

// AppendHistory adds entry to the saved history, discarding the oldest
// entries once more than max are retained.
func (s *Store) AppendHistory(entry HistoryEntry, max int) error {
	history, err := s.LoadHistory()
	if err != nil {
		return err
	}

	history = append(history, entry)
	if max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}

	return s.SaveHistory(history)
}

// CreateBackup copies the data files into a timestamped folder under
// backups/ and returns the backup name.
func (s *Store) CreateBackup() (string, error) {
	name := "backup_" + time.Now().Format("20060102_150405")
	dir := filepath.Join(s.backupDir, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	for _, path := range []string{s.playersPath, s.settingsPath, s.historyPath} {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("backing up %s: %w", filepath.Base(path), err)
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(path)), data, 0o644); err != nil {
			return "", fmt.Errorf("backing up %s: %w", filepath.Base(path), err)
		}
	}

	return name, nil
}

// ListBackups returns available backup names, most recent first.
func (s *Store) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(s.backupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "backup_") {
			backups = append(backups, entry.Name())
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	return backups, nil
}

// RestoreBackup copies the named backup's files back over the live data
// files.
func (s *Store) RestoreBackup(name string) error {
	dir := filepath.Join(s.backupDir, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}

	for _, base := range []string{"players.json", "settings.json", "history.json"} {
		data, err := os.ReadFile(filepath.Join(dir, base))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("restoring %s: %w", base, err)
		}
		if err := os.WriteFile(filepath.Join(s.dataDir, base), data, 0o644); err != nil {
			return fmt.Errorf("restoring %s: %w", base, err)
		}
	}

	return nil
}

// BuildSnapshot assembles the current data into an export snapshot.
func (s *Store) BuildSnapshot() (Snapshot, error) {
	players, err := s.LoadPlayers()
	if err != nil {
		return Snapshot{}, err
	}
	settings, err := s.LoadSettings()
	if err != nil {
		return Snapshot{}, err
	}
	history, err := s.LoadHistory()
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Players:         players,
		Settings:        settings,
		History:         history,
		ExportTimestamp: time.Now(),
		Version:         snapshotVersion,
	}, nil
}

// Export writes a snapshot of all data to a single file.
func (s *Store) Export(path string) error {
	snapshot, err := s.BuildSnapshot()
	if err != nil {
		return err
	}
	return writeJSON(path, snapshot)
}

// ApplySnapshot stores an imported snapshot. With merge set, players are
// unioned with the existing list (imported names appended, case-insensitive
// dedup) and imported settings win; otherwise the snapshot replaces all
// three files.
func (s *Store) ApplySnapshot(snapshot Snapshot, merge bool) error {
	if merge {
		current, err := s.LoadPlayers()
		if err != nil {
			return err
		}

		merged := slices.Clone(current)
		for _, name := range snapshot.Players {
			name = strings.TrimSpace(name)
			exists := slices.ContainsFunc(merged, func(p string) bool {
				return strings.EqualFold(p, name)
			})
			if name != "" && !exists {
				merged = append(merged, name)
			}
		}

		if err := s.SavePlayers(merged); err != nil {
			return err
		}
		return s.SaveSettings(snapshot.Settings)
	}

	if err := s.SavePlayers(snapshot.Players); err != nil {
		return err
	}
	if err := s.SaveSettings(snapshot.Settings); err != nil {
		return err
	}
	return s.SaveHistory(snapshot.History)
}

// Import reads a snapshot file and applies it.
func (s *Store) Import(path string, merge bool) error {
	var snapshot Snapshot
	found, err := readJSON(path, &snapshot)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("import file not found: %s", path)
	}

	return s.ApplySnapshot(snapshot, merge)
}

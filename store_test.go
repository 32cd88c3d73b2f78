package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite
	store *Store
}

func (s *StoreSuite) SetupTest() {
	store, err := newStore(s.T().TempDir())
	s.Require().NoError(err)
	s.store = store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) entry(podSizes ...int) HistoryEntry {
	entry := HistoryEntry{Timestamp: time.Now()}
	names := namedPlayers(24)
	next := 0
	for i, size := range podSizes {
		entry.Pods = append(entry.Pods, Pod{ID: i + 1, Members: names[next : next+size], Size: size})
		next += size
	}
	return entry
}

func (s *StoreSuite) TestPlayersRoundTrip() {
	s.Run("missing file yields empty list", func() {
		players, err := s.store.LoadPlayers()
		s.Require().NoError(err)
		s.Empty(players)
	})

	s.Run("saved players are read back in order", func() {
		s.Require().NoError(s.store.SavePlayers([]string{"Alice", "Bob", "Carol"}))

		players, err := s.store.LoadPlayers()
		s.Require().NoError(err)
		s.Equal([]string{"Alice", "Bob", "Carol"}, players)
	})
}

func (s *StoreSuite) TestSettings() {
	s.Run("missing file yields defaults", func() {
		settings, err := s.store.LoadSettings()
		s.Require().NoError(err)
		s.Equal(defaultSettings(), settings)
	})

	s.Run("saved settings override defaults", func() {
		settings := defaultSettings()
		settings.TargetSize = 5
		settings.KeepHistory = false
		s.Require().NoError(s.store.SaveSettings(settings))

		loaded, err := s.store.LoadSettings()
		s.Require().NoError(err)
		s.Equal(5, loaded.TargetSize)
		s.False(loaded.KeepHistory)
		s.True(loaded.AutoSave)
	})

	s.Run("out-of-range sizes are clamped on load", func() {
		settings := defaultSettings()
		settings.MinSize = 1
		settings.MaxSize = 2
		s.Require().NoError(s.store.SaveSettings(settings))

		loaded, err := s.store.LoadSettings()
		s.Require().NoError(err)
		s.GreaterOrEqual(loaded.MinSize, 3)
		s.GreaterOrEqual(loaded.MaxSize, loaded.TargetSize)
	})
}

func (s *StoreSuite) TestHistoryAppendAndTrim() {
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.AppendHistory(s.entry(4, 4), 3))
	}

	history, err := s.store.LoadHistory()
	s.Require().NoError(err)
	s.Len(history, 3, "oldest entries are discarded first")
}

func (s *StoreSuite) TestBackupAndRestore() {
	s.Require().NoError(s.store.SavePlayers([]string{"Alice", "Bob"}))

	name, err := s.store.CreateBackup()
	s.Require().NoError(err)

	backups, err := s.store.ListBackups()
	s.Require().NoError(err)
	s.Contains(backups, name)

	s.Require().NoError(s.store.SavePlayers([]string{"Mallory"}))
	s.Require().NoError(s.store.RestoreBackup(name))

	players, err := s.store.LoadPlayers()
	s.Require().NoError(err)
	s.Equal([]string{"Alice", "Bob"}, players)
}

func (s *StoreSuite) TestRestoreUnknownBackup() {
	err := s.store.RestoreBackup("backup_19700101_000000")
	s.Require().ErrorIs(err, ErrBackupNotFound)
}

func (s *StoreSuite) TestExportImportReplace() {
	s.Require().NoError(s.store.SavePlayers([]string{"Alice", "Bob"}))
	s.Require().NoError(s.store.AppendHistory(s.entry(3), 50))

	path := filepath.Join(s.T().TempDir(), "export.json")
	s.Require().NoError(s.store.Export(path))

	other, err := newStore(s.T().TempDir())
	s.Require().NoError(err)
	s.Require().NoError(other.SavePlayers([]string{"Mallory"}))

	s.Require().NoError(other.Import(path, false))

	players, err := other.LoadPlayers()
	s.Require().NoError(err)
	s.Equal([]string{"Alice", "Bob"}, players)

	history, err := other.LoadHistory()
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *StoreSuite) TestImportMergeUnionsPlayers() {
	s.Require().NoError(s.store.SavePlayers([]string{"Alice", "Bob"}))

	path := filepath.Join(s.T().TempDir(), "export.json")
	s.Require().NoError(s.store.Export(path))

	s.Require().NoError(s.store.SavePlayers([]string{"bob", "Carol"}))
	s.Require().NoError(s.store.Import(path, true))

	players, err := s.store.LoadPlayers()
	s.Require().NoError(err)
	s.Equal([]string{"bob", "Carol", "Alice"}, players)
}

func (s *StoreSuite) TestImportMissingFile() {
	err := s.store.Import(filepath.Join(s.T().TempDir(), "nope.json"), false)
	s.Require().Error(err)
}

func (s *StoreSuite) TestWriteLeavesNoTempFiles() {
	s.Require().NoError(s.store.SavePlayers([]string{"Alice"}))

	_, err := os.Stat(s.store.playersPath + ".tmp")
	s.Require().ErrorIs(err, os.ErrNotExist)
}

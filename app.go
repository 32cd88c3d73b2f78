package main

import (
	"sync"
	"time"
)

// App bundles the store, roster, and settings shared by the terminal and
// web interfaces. Settings and history writes go through its mutex; the
// roster carries its own lock.
type App struct {
	mu       sync.Mutex
	store    *Store
	roster   *Roster
	settings Settings
}

func newApp(cfg *Config) (*App, error) {
	store, err := newStore(cfg.dataDir)
	if err != nil {
		return nil, err
	}

	players, err := store.LoadPlayers()
	if err != nil {
		return nil, err
	}

	settings, err := store.LoadSettings()
	if err != nil {
		return nil, err
	}

	return &App{
		store:    store,
		roster:   newRoster(players),
		settings: settings,
	}, nil
}

// Settings returns a copy of the current settings.
func (a *App) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.settings
}

// UpdateSettings normalizes, stores, and persists new settings.
func (a *App) UpdateSettings(settings Settings) (Settings, error) {
	settings.SizeConfig = settings.SizeConfig.normalized()
	if settings.MaxHistoryItems < 1 {
		settings.MaxHistoryItems = defaultSettings().MaxHistoryItems
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.settings = settings

	return settings, a.store.SaveSettings(settings)
}

// SaveRoster persists the current roster.
func (a *App) SaveRoster() error {
	return a.store.SavePlayers(a.roster.Players())
}

// CreatePods runs the distribution engine over the current roster using
// the saved settings, with optional target and max size overrides
// (0 keeps the saved value). The result is appended to history when
// history keeping is enabled.
func (a *App) CreatePods(targetSize, maxSize int) ([]Pod, error) {
	a.mu.Lock()
	cfg := a.settings.SizeConfig
	keepHistory := a.settings.KeepHistory
	maxItems := a.settings.MaxHistoryItems
	a.mu.Unlock()

	if targetSize > 0 {
		cfg.TargetSize = targetSize
	}
	if maxSize > 0 {
		cfg.MaxSize = maxSize
	}

	pods, err := Distribute(a.roster.Players(), cfg, nil)
	if err != nil {
		return nil, err
	}

	if keepHistory {
		entry := HistoryEntry{
			Timestamp: time.Now(),
			Pods:      pods,
		}

		a.mu.Lock()
		err = a.store.AppendHistory(entry, maxItems)
		a.mu.Unlock()

		if err != nil {
			return pods, err
		}
	}

	return pods, nil
}

// Reload re-reads players and settings from disk, for use after a restore
// or import replaced the data files.
func (a *App) Reload() error {
	players, err := a.store.LoadPlayers()
	if err != nil {
		return err
	}

	settings, err := a.store.LoadSettings()
	if err != nil {
		return err
	}

	a.roster.Replace(players)

	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()

	return nil
}

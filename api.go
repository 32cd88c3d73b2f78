// Podbox JSON API
//
// The embedded web client drives the same App as the terminal interface
// through these endpoints. Roster mutations persist immediately when
// auto-save is enabled.

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSONResponse(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(cfg *Config, w http.ResponseWriter, status int, err error) {
	writeJSONResponse(cfg, w, status, errorResponse{Error: err.Error()})
}

func saveRosterIfAuto(cfg *Config, app *App) {
	if !app.Settings().AutoSave {
		return
	}
	if err := app.SaveRoster(); err != nil {
		logf(cfg, "STORE: Failed to save players: %v", err)
	}
}

func listPlayers(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		players := app.roster.Players()

		writeJSONResponse(cfg, w, http.StatusOK, map[string]any{
			"players": players,
			"count":   len(players),
		})
	}
}

func addPlayer(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(cfg, w, http.StatusBadRequest, err)
			return
		}

		switch err := app.roster.Add(body.Name); {
		case errors.Is(err, ErrEmptyName):
			writeJSONError(cfg, w, http.StatusBadRequest, err)
			return
		case errors.Is(err, ErrDuplicatePlayer):
			writeJSONError(cfg, w, http.StatusConflict, err)
			return
		}

		saveRosterIfAuto(cfg, app)
		logf(cfg, "ROSTER: Added player %q for %s", body.Name, realIP(r))

		writeJSONResponse(cfg, w, http.StatusCreated, map[string]any{
			"players": app.roster.Players(),
			"count":   app.roster.Count(),
		})
	}
}

func importPlayers(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			Players []string `json:"players"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(cfg, w, http.StatusBadRequest, err)
			return
		}

		added := app.roster.Import(body.Players)
		if added > 0 {
			saveRosterIfAuto(cfg, app)
		}
		logf(cfg, "ROSTER: Imported %d player(s) for %s", added, realIP(r))

		writeJSONResponse(cfg, w, http.StatusOK, map[string]any{
			"added": added,
			"count": app.roster.Count(),
		})
	}
}

func removePlayer(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		name := p.ByName("name")

		if !app.roster.Remove(name) {
			writeJSONError(cfg, w, http.StatusNotFound, errors.New("player not found"))
			return
		}

		saveRosterIfAuto(cfg, app)
		logf(cfg, "ROSTER: Removed player %q for %s", name, realIP(r))

		w.WriteHeader(http.StatusNoContent)
	}
}

func clearPlayers(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		app.roster.Clear()
		saveRosterIfAuto(cfg, app)
		logf(cfg, "ROSTER: Cleared all players for %s", realIP(r))

		w.WriteHeader(http.StatusNoContent)
	}
}

func getSettings(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSONResponse(cfg, w, http.StatusOK, app.Settings())
	}
}

func putSettings(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		settings := app.Settings()
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeJSONError(cfg, w, http.StatusBadRequest, err)
			return
		}

		updated, err := app.UpdateSettings(settings)
		if err != nil {
			writeJSONError(cfg, w, http.StatusInternalServerError, err)
			return
		}

		writeJSONResponse(cfg, w, http.StatusOK, updated)
	}
}

func createPods(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var body struct {
			TargetSize int `json:"target_size"`
			MaxSize    int `json:"max_size"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeJSONError(cfg, w, http.StatusBadRequest, err)
				return
			}
		}

		pods, err := app.CreatePods(body.TargetSize, body.MaxSize)
		if errors.Is(err, ErrInsufficientPlayers) {
			writeJSONError(cfg, w, http.StatusUnprocessableEntity, err)
			return
		}
		if err != nil {
			writeJSONError(cfg, w, http.StatusInternalServerError, err)
			return
		}

		stats := Summarize(pods)
		logf(cfg, "PODS: Dealt %d pod(s) for %d player(s) to %s in %s",
			stats.TotalPods, stats.TotalPlayers, realIP(r),
			time.Since(startTime).Round(time.Microsecond))

		writeJSONResponse(cfg, w, http.StatusOK, map[string]any{
			"pods":  pods,
			"stats": stats,
		})
	}
}

func getHistory(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		history, err := app.store.LoadHistory()
		if err != nil {
			writeJSONError(cfg, w, http.StatusInternalServerError, err)
			return
		}

		// Newest first.
		for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
			history[i], history[j] = history[j], history[i]
		}

		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(history) {
			history = history[:limit]
		}

		writeJSONResponse(cfg, w, http.StatusOK, map[string]any{
			"history": history,
			"count":   len(history),
		})
	}
}

func clearHistory(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := app.store.SaveHistory(nil); err != nil {
			writeJSONError(cfg, w, http.StatusInternalServerError, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func exportData(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		snapshot, err := app.store.BuildSnapshot()
		if err != nil {
			writeJSONError(cfg, w, http.StatusInternalServerError, err)
			return
		}

		w.Header().Set("Content-Disposition", `attachment; filename="podbox_export.json"`)
		writeJSONResponse(cfg, w, http.StatusOK, snapshot)
	}
}

func importData(cfg *Config, app *App) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var snapshot Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
			writeJSONError(cfg, w, http.StatusBadRequest, err)
			return
		}

		merge := r.URL.Query().Get("merge") == "true"

		if err := app.store.ApplySnapshot(snapshot, merge); err != nil {
			writeJSONError(cfg, w, http.StatusInternalServerError, err)
			return
		}
		if err := app.Reload(); err != nil {
			writeJSONError(cfg, w, http.StatusInternalServerError, err)
			return
		}

		logf(cfg, "STORE: Imported snapshot (merge=%t) from %s", merge, realIP(r))

		writeJSONResponse(cfg, w, http.StatusOK, map[string]any{
			"count": app.roster.Count(),
		})
	}
}

func registerAPI(cfg *Config, app *App, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/api/players", listPlayers(cfg, app))
	mux.POST(cfg.prefix+"/api/players", addPlayer(cfg, app))
	mux.POST(cfg.prefix+"/api/players/import", importPlayers(cfg, app))
	mux.DELETE(cfg.prefix+"/api/players/:name", removePlayer(cfg, app))
	mux.DELETE(cfg.prefix+"/api/players", clearPlayers(cfg, app))

	mux.GET(cfg.prefix+"/api/settings", getSettings(cfg, app))
	mux.PUT(cfg.prefix+"/api/settings", putSettings(cfg, app))

	mux.POST(cfg.prefix+"/api/pods", createPods(cfg, app))

	mux.GET(cfg.prefix+"/api/history", getHistory(cfg, app))
	mux.DELETE(cfg.prefix+"/api/history", clearHistory(cfg, app))

	mux.GET(cfg.prefix+"/api/export", exportData(cfg, app))
	mux.POST(cfg.prefix+"/api/import", importData(cfg, app))
}

// Podbox terminal interface
//
// A menu-driven stdin loop covering the same operations as the web API:
// roster management, pod creation, history, settings, and data management.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

type terminal struct {
	cfg *Config
	app *App
	in  *bufio.Scanner
	out *os.File
}

// RunTerminal drives the interactive terminal interface until the user
// quits or stdin closes.
func RunTerminal(cfg *Config, app *App) error {
	t := &terminal{
		cfg: cfg,
		app: app,
		in:  bufio.NewScanner(os.Stdin),
		out: os.Stdout,
	}

	fmt.Fprintf(t.out, "podbox v%s — pod randomizer\n\n", releaseVersion)

	for {
		fmt.Fprintln(t.out, "1) Manage players  2) Create pods  3) History  4) Settings  5) Data  6) Statistics  7) Quick randomize  q) Quit")

		switch t.prompt("Select an option") {
		case "1":
			t.managePlayers()
		case "2":
			t.createPods()
		case "3":
			t.viewHistory()
		case "4":
			t.settingsMenu()
		case "5":
			t.dataMenu()
		case "6":
			t.showStatistics()
		case "7":
			t.quickRandomize()
		case "q", "Q", "":
			fmt.Fprintln(t.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(t.out, "Invalid choice. Please try again.")
		}
	}
}

// prompt prints a prompt and returns the trimmed next line of input.
// Returns "" once stdin is closed.
func (t *terminal) prompt(label string) string {
	fmt.Fprintf(t.out, "%s: ", label)
	if !t.in.Scan() {
		return ""
	}
	return strings.TrimSpace(t.in.Text())
}

func (t *terminal) promptInt(label string, fallback int) int {
	answer := t.prompt(fmt.Sprintf("%s [%d]", label, fallback))
	if answer == "" {
		return fallback
	}
	n, err := strconv.Atoi(answer)
	if err != nil {
		fmt.Fprintln(t.out, "Invalid number, using default.")
		return fallback
	}
	return n
}

func (t *terminal) confirm(label string) bool {
	answer := strings.ToLower(t.prompt(label + " (y/N)"))
	return answer == "y" || answer == "yes"
}

func (t *terminal) managePlayers() {
	for {
		fmt.Fprintf(t.out, "\nPlayers: %d\n", t.app.roster.Count())
		t.printPlayers(t.app.roster.Players())

		fmt.Fprintln(t.out, "1) Add  2) Add multiple  3) Remove  4) Search  5) Clear all  b) Back")

		switch t.prompt("Select an option") {
		case "1":
			name := t.prompt("Player name")
			if err := t.app.roster.Add(name); err != nil {
				fmt.Fprintf(t.out, "Failed to add player: %v\n", err)
				continue
			}
			t.saveRoster()
			fmt.Fprintf(t.out, "Added: %s\n", name)
		case "2":
			fmt.Fprintln(t.out, "Enter one name per line; blank line finishes.")
			var names []string
			for {
				name := t.prompt("Player name")
				if name == "" {
					break
				}
				names = append(names, name)
			}
			added := t.app.roster.Import(names)
			if added > 0 {
				t.saveRoster()
			}
			fmt.Fprintf(t.out, "Added %d player(s)\n", added)
		case "3":
			name := t.prompt("Player name to remove")
			if t.app.roster.Remove(name) {
				t.saveRoster()
				fmt.Fprintf(t.out, "Removed: %s\n", name)
			} else {
				fmt.Fprintf(t.out, "Player not found: %s\n", name)
			}
		case "4":
			query := t.prompt("Search term")
			matches := t.app.roster.Search(query)
			if len(matches) == 0 {
				fmt.Fprintln(t.out, "No players found")
				continue
			}
			t.printPlayers(matches)
		case "5":
			if !t.confirm("Clear all players?") {
				continue
			}
			t.app.roster.Clear()
			t.saveRoster()
			fmt.Fprintln(t.out, "All players cleared")
		case "b", "":
			return
		}
	}
}

func (t *terminal) saveRoster() {
	if !t.app.Settings().AutoSave {
		return
	}
	if err := t.app.SaveRoster(); err != nil {
		fmt.Fprintf(t.out, "Failed to save players: %v\n", err)
	}
}

func (t *terminal) printPlayers(players []string) {
	if len(players) == 0 {
		return
	}

	w := tabwriter.NewWriter(t.out, 2, 4, 2, ' ', 0)
	for i, name := range players {
		fmt.Fprintf(w, "%d.\t%s\n", i+1, name)
	}
	w.Flush()
}

func (t *terminal) createPods() {
	settings := t.app.Settings()

	target := t.promptInt(fmt.Sprintf("Target pod size (3-%d)", settings.MaxSize), settings.TargetSize)

	pods, err := t.app.CreatePods(target, 0)
	if err != nil {
		fmt.Fprintf(t.out, "Cannot create pods: %v\n", err)
		return
	}

	t.printPods(pods)
}

func (t *terminal) quickRandomize() {
	pods, err := t.app.CreatePods(0, 0)
	if err != nil {
		fmt.Fprintf(t.out, "Cannot create pods: %v\n", err)
		return
	}

	t.printPods(pods)
}

func (t *terminal) printPods(pods []Pod) {
	fmt.Fprintln(t.out, "\nPod assignment:")

	for _, pod := range pods {
		fmt.Fprintf(t.out, "  Pod %d (%d players): %s\n", pod.ID, pod.Size, strings.Join(pod.Members, ", "))
	}

	stats := Summarize(pods)
	fmt.Fprintf(t.out, "Total: %d players | %d pods | avg %.1f per pod\n\n",
		stats.TotalPlayers, stats.TotalPods, stats.AvgPodSize)
}

func (t *terminal) viewHistory() {
	history, err := t.app.store.LoadHistory()
	if err != nil {
		fmt.Fprintf(t.out, "Failed to load history: %v\n", err)
		return
	}

	if len(history) == 0 {
		fmt.Fprintln(t.out, "No history available")
		return
	}

	fmt.Fprintln(t.out, "\nPod assignment history (most recent first):")

	shown := 0
	for i := len(history) - 1; i >= 0 && shown < 10; i-- {
		entry := history[i]
		players := 0
		for _, pod := range entry.Pods {
			players += pod.Size
		}
		shown++
		fmt.Fprintf(t.out, "  %d. %s — %d pods, %d players\n",
			shown, entry.Timestamp.Format("2006-01-02 15:04:05"), len(entry.Pods), players)
	}
	fmt.Fprintln(t.out)
}

func (t *terminal) settingsMenu() {
	for {
		settings := t.app.Settings()

		fmt.Fprintf(t.out, "\n1) Target pod size: %d  2) Max pod size: %d  3) Keep history: %t  b) Back\n",
			settings.TargetSize, settings.MaxSize, settings.KeepHistory)

		switch t.prompt("Select an option") {
		case "1":
			settings.TargetSize = t.promptInt("Target pod size (3-8)", settings.TargetSize)
		case "2":
			settings.MaxSize = t.promptInt("Max pod size (4-8)", settings.MaxSize)
		case "3":
			settings.KeepHistory = !settings.KeepHistory
		case "b", "":
			return
		default:
			continue
		}

		updated, err := t.app.UpdateSettings(settings)
		if err != nil {
			fmt.Fprintf(t.out, "Failed to save settings: %v\n", err)
			continue
		}
		fmt.Fprintf(t.out, "Settings saved (target %d, max %d, history %t)\n",
			updated.TargetSize, updated.MaxSize, updated.KeepHistory)
	}
}

func (t *terminal) dataMenu() {
	for {
		fmt.Fprintln(t.out, "\n1) Create backup  2) Restore backup  3) Export  4) Import  b) Back")

		switch t.prompt("Select an option") {
		case "1":
			name, err := t.app.store.CreateBackup()
			if err != nil {
				fmt.Fprintf(t.out, "Backup failed: %v\n", err)
				continue
			}
			fmt.Fprintf(t.out, "Backup created: %s\n", name)
		case "2":
			t.restoreBackup()
		case "3":
			path := t.prompt("Export filename")
			if path == "" {
				path = "podbox_export.json"
			}
			if err := t.app.store.Export(path); err != nil {
				fmt.Fprintf(t.out, "Export failed: %v\n", err)
				continue
			}
			fmt.Fprintf(t.out, "Data exported to %s\n", path)
		case "4":
			path := t.prompt("Import filename")
			if path == "" {
				continue
			}
			merge := t.confirm("Merge with existing data?")
			if err := t.app.store.Import(path, merge); err != nil {
				fmt.Fprintf(t.out, "Import failed: %v\n", err)
				continue
			}
			if err := t.app.Reload(); err != nil {
				fmt.Fprintf(t.out, "Reload failed: %v\n", err)
				continue
			}
			fmt.Fprintln(t.out, "Data imported")
		case "b", "":
			return
		}
	}
}

func (t *terminal) restoreBackup() {
	backups, err := t.app.store.ListBackups()
	if err != nil {
		fmt.Fprintf(t.out, "Failed to list backups: %v\n", err)
		return
	}
	if len(backups) == 0 {
		fmt.Fprintln(t.out, "No backups available")
		return
	}

	for i, name := range backups {
		fmt.Fprintf(t.out, "  %d. %s\n", i+1, name)
	}

	index := t.promptInt("Select backup number", 1)
	if index < 1 || index > len(backups) {
		fmt.Fprintln(t.out, "Invalid selection")
		return
	}

	if err := t.app.store.RestoreBackup(backups[index-1]); err != nil {
		fmt.Fprintf(t.out, "Restore failed: %v\n", err)
		return
	}
	if err := t.app.Reload(); err != nil {
		fmt.Fprintf(t.out, "Reload failed: %v\n", err)
		return
	}

	fmt.Fprintln(t.out, "Backup restored")
}

func (t *terminal) showStatistics() {
	history, err := t.app.store.LoadHistory()
	if err != nil {
		fmt.Fprintf(t.out, "Failed to load history: %v\n", err)
		return
	}

	settings := t.app.Settings()

	fmt.Fprintf(t.out, "\nCurrent players: %d\n", t.app.roster.Count())
	fmt.Fprintf(t.out, "History entries: %d\n", len(history))
	fmt.Fprintf(t.out, "Target pod size: %d\n", settings.TargetSize)
	fmt.Fprintf(t.out, "Max pod size: %d\n", settings.MaxSize)

	if len(history) > 0 {
		pods := 0
		for _, entry := range history {
			pods += len(entry.Pods)
		}
		fmt.Fprintf(t.out, "Total assignments: %d\n", len(history))
		fmt.Fprintf(t.out, "Avg pods per assignment: %.1f\n", float64(pods)/float64(len(history)))
	}
	fmt.Fprintln(t.out)
}

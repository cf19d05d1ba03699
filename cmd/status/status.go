// Package status implements the status command: it queries a running
// orchestrator's HTTP API and renders pool, scheduler, session, and task
// snapshots as tables.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/internal/pool"
	"github.com/jonesrussell/goharvest/internal/scheduler"
	"github.com/jonesrussell/goharvest/internal/session"
	"github.com/jonesrussell/goharvest/internal/store"
)

const (
	defaultAPIURL     = "http://localhost:8070"
	requestTimeout    = 10 * time.Second
	recentTasksLimit  = 20
	percentMultiplier = 100
)

// Command returns the status command.
func Command() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pool, scheduler, session, and task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(apiURL)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", defaultAPIURL, "orchestrator API base URL")
	return cmd
}

func run(apiURL string) error {
	client := &http.Client{Timeout: requestTimeout}

	var snap pool.Snapshot
	if err := fetch(client, apiURL+"/api/v1/pool", &snap); err != nil {
		return fmt.Errorf("fetch pool status: %w", err)
	}
	renderPool(&snap)

	var stats scheduler.Stats
	if err := fetch(client, apiURL+"/api/v1/scheduler", &stats); err != nil {
		return fmt.Errorf("fetch scheduler status: %w", err)
	}
	renderScheduler(&stats)

	var sessions struct {
		Accounts []session.AccountHealth `json:"accounts"`
	}
	if err := fetch(client, apiURL+"/api/v1/sessions", &sessions); err != nil {
		return fmt.Errorf("fetch session status: %w", err)
	}
	renderSessions(sessions.Accounts)

	var tasks struct {
		Tasks []store.Record `json:"tasks"`
	}
	url := fmt.Sprintf("%s/api/v1/tasks?limit=%d", apiURL, recentTasksLimit)
	if err := fetch(client, url, &tasks); err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}
	renderTasks(tasks.Tasks)

	return nil
}

// fetch performs a GET request and decodes the JSON response into out.
func fetch(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func renderPool(snap *pool.Snapshot) {
	t := newTable("Resource Pool")
	t.AppendHeader(table.Row{"Tier", "Total", "Available", "Cooling", "In Use"})
	for _, tier := range []string{"tier1", "tier2", "tier3"} {
		ts := snap.Tiers[tier]
		t.AppendRow(table.Row{tier, ts.Total, ts.Available, ts.Cooling, ts.InUse})
	}
	t.AppendFooter(table.Row{"all", snap.Total, snap.Available, snap.Cooling, snap.InUse})
	t.Render()

	if snap.Total > 0 {
		fmt.Printf("resources with failure pressure: %d (%d%%)\n\n",
			snap.Failed, snap.Failed*percentMultiplier/snap.Total)
	}
}

func renderScheduler(stats *scheduler.Stats) {
	t := newTable("Scheduler")
	t.AppendHeader(table.Row{"Active", "Queued", "Cooling Off", "Stale"})
	t.AppendRow(table.Row{stats.Active, stats.Queued, stats.CoolingOff, stats.Stale})
	t.Render()
	fmt.Println()
}

func renderSessions(accounts []session.AccountHealth) {
	t := newTable("Sessions")
	t.AppendHeader(table.Row{"Account", "Health", "Cached", "Last Used"})
	for _, a := range accounts {
		lastUsed := ""
		if !a.LastUsedAt.IsZero() {
			lastUsed = a.LastUsedAt.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{a.AccountKey, a.Score, a.Cached, lastUsed})
	}
	if len(accounts) == 0 {
		t.AppendRow(table.Row{"(none)", "", "", ""})
	}
	t.Render()
	fmt.Println()
}

func renderTasks(records []store.Record) {
	t := newTable("Recent Tasks")
	t.AppendHeader(table.Row{"Task", "Status", "Attempt", "Updated", "Result / Error"})
	for _, rec := range records {
		detail := rec.ResultRef
		if rec.ErrorMessage != "" {
			detail = rec.ErrorMessage
		}
		t.AppendRow(table.Row{
			rec.TaskID,
			string(rec.Status),
			rec.Attempt,
			rec.UpdatedAt.Format(time.RFC3339),
			detail,
		})
	}
	if len(records) == 0 {
		t.AppendRow(table.Row{"(none)", "", "", "", ""})
	}
	t.Render()
}

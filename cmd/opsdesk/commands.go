package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsdesk/opsdesk/internal/assistant"
	"github.com/opsdesk/opsdesk/internal/config"
	"github.com/opsdesk/opsdesk/internal/kb"
	"github.com/opsdesk/opsdesk/internal/memory"
	"github.com/opsdesk/opsdesk/internal/storage"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		userID, _ := cmd.Flags().GetString("user")

		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/query", map[string]string{
			"query":   query,
			"user_id": userID,
		})
		if err != nil {
			return err
		}

		var result assistant.Response
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Printf("\n%s %s\n", colorize(colorBold, "Sources:"), strings.Join(result.Sources, ", "))
		}
		fmt.Fprintf(os.Stderr, "%s\n", colorize(colorCyan,
			fmt.Sprintf("[%s, confidence %.1f, log %d]", result.QueryType, result.Confidence, result.LogID)))
		return nil
	},
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load team data from JSON files into the server",
	Long: `Load team data into the server from a directory containing any of
employees.json, tickets.json, and deployments.json.

Example:
  opsdesk seed --dir ./testdata`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")

		var req struct {
			Employees   []storage.Employee   `json:"employees,omitempty"`
			Tickets     []storage.Ticket     `json:"tickets,omitempty"`
			Deployments []storage.Deployment `json:"deployments,omitempty"`
		}

		loaded := 0
		if readSeedFile(filepath.Join(dir, "employees.json"), &req.Employees) {
			loaded++
		}
		if readSeedFile(filepath.Join(dir, "tickets.json"), &req.Tickets) {
			loaded++
		}
		if readSeedFile(filepath.Join(dir, "deployments.json"), &req.Deployments) {
			loaded++
		}
		if loaded == 0 {
			return fmt.Errorf("no seed files found in %s", dir)
		}

		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/seed", req)
		if err != nil {
			return err
		}

		var counts map[string]int
		if err := decodeJSON(resp, &counts); err != nil {
			return err
		}

		printSuccess("Seeded %d employees, %d tickets, %d deployments",
			counts["employees"], counts["tickets"], counts["deployments"])
		return nil
	},
}

// readSeedFile loads one optional JSON seed file. A missing file is skipped
// silently; a malformed one gets a warning.
func readSeedFile(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		printWarning("skipping %s: %v", path, err)
		return false
	}
	return true
}

// --- reindex ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the documentation index",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		printStep("Reindexing documentation...")
		resp, err := client.post(cmd.Context(), "/reindex", nil)
		if err != nil {
			return err
		}

		var result kb.Result
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %d files (%d chunks, %d skipped)", result.Files, result.Chunks, result.Skipped)
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/history?user_id=%s&limit=%d", userID, limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var entries []storage.LogEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, e := range entries {
			query := e.Query
			if len(query) > 80 {
				query = query[:80] + "..."
			}
			fmt.Printf("%s  %s  %s  %s\n",
				colorize(colorCyan, strconv.FormatInt(e.ID, 10)),
				e.CreatedAt.Format("2006-01-02 15:04"),
				colorize(colorBold, e.QueryType),
				query,
			)
		}
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show conversation statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/stats?user_id="+userID)
		if err != nil {
			return err
		}

		var stats memory.Stats
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Total conversations", "%d", stats.TotalConversations)
		printStatus("Last 24h", "%d", stats.Recent24h)
		for qt, n := range stats.QueryTypeDistribution {
			printStatus("  "+qt, "%d", n)
		}
		return nil
	},
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <log-id>",
	Short: "Attach feedback to a logged answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid log id %q: %w", args[0], err)
		}
		helpful, _ := cmd.Flags().GetBool("helpful")
		text, _ := cmd.Flags().GetString("text")

		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/feedback", map[string]any{
			"log_id":        logID,
			"helpful":       helpful,
			"feedback_text": text,
		})
		if err != nil {
			return err
		}

		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if !result["success"] {
			printWarning("No interaction with log id %d", logID)
			return nil
		}
		printSuccess("Feedback recorded for log %d", logID)
		return nil
	},
}

func init() {
	askCmd.Flags().String("user", "", "user id for conversation memory")
	seedCmd.Flags().String("dir", ".", "directory containing seed JSON files")
	historyCmd.Flags().String("user", "", "filter by user id")
	historyCmd.Flags().Int("limit", 10, "maximum number of entries")
	statsCmd.Flags().String("user", "", "filter by user id")
	feedbackCmd.Flags().Bool("helpful", true, "whether the answer was helpful")
	feedbackCmd.Flags().String("text", "", "optional feedback text")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

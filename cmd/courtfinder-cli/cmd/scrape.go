package cmd

import (
	"log"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var scrapeAllWait bool
var scrapeAllExclude []string

func init() {
	scrapeAllCmd.Flags().BoolVar(&scrapeAllWait, "wait", false, "block until the run finishes and print the report")
	scrapeAllCmd.Flags().StringSliceVar(&scrapeAllExclude, "exclude", nil, "extra facilities to skip")
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(scrapeAllCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <facility>",
	Short: "Asks the service to scrape one facility (subject to its budgets).",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var body struct {
			Facility   string   `json:"facility"`
			Scraped    bool     `json:"scraped"`
			Reason     string   `json:"reason"`
			SlotCount  int      `json:"slot_count"`
			FailedDays []string `json:"failed_days"`
		}
		res, err := client.R().
			SetResult(&body).
			SetBody(map[string]string{"facility": args[0]}).
			Post("/api/scrape")
		if err != nil {
			log.Fatal(err)
		}
		if res.IsError() {
			log.Fatalf("%s: %s", res.Status(), res.String())
		}

		if body.Scraped {
			cmd.Printf("scraped %s: %d slots (%s)\n", body.Facility, body.SlotCount, body.Reason)
		} else {
			cmd.Printf("served cache for %s: %d slots (%s)\n", body.Facility, body.SlotCount, body.Reason)
		}
		for _, day := range body.FailedDays {
			cmd.Printf("  day failed: %s\n", day)
		}
	},
}

var scrapeAllCmd = &cobra.Command{
	Use:   "scrape-all",
	Short: "Asks the service to refresh every facility.",
	Run: func(cmd *cobra.Command, args []string) {
		payload := map[string]any{
			"exclude": scrapeAllExclude,
			"wait":    scrapeAllWait,
		}

		if !scrapeAllWait {
			var started struct {
				Status     string   `json:"status"`
				Facilities []string `json:"facilities"`
				Excluded   []string `json:"excluded"`
			}
			res, err := client.R().SetResult(&started).SetBody(payload).Post("/api/scrape-all")
			if err != nil {
				log.Fatal(err)
			}
			if res.IsError() {
				log.Fatalf("%s: %s", res.Status(), res.String())
			}
			if started.Status == "no_facilities" {
				cmd.Println("nothing to scrape, everything is excluded")
				return
			}
			cmd.Printf("scrape-all started: %s\n", strings.Join(started.Facilities, ", "))
			return
		}

		var report struct {
			RunID   string `json:"run_id"`
			Results []struct {
				Facility  string `json:"facility"`
				Scraped   bool   `json:"scraped"`
				Reason    string `json:"reason"`
				SlotCount int    `json:"slot_count"`
			} `json:"results"`
			Skipped  []string          `json:"skipped"`
			Failures map[string]string `json:"failures"`
		}
		res, err := client.R().SetResult(&report).SetBody(payload).Post("/api/scrape-all")
		if err != nil {
			log.Fatal(err)
		}
		if res.IsError() {
			log.Fatalf("%s: %s", res.Status(), res.String())
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Facility", "Scraped", "Slots", "Reason"})
		for _, r := range report.Results {
			t.AppendRow(table.Row{r.Facility, r.Scraped, r.SlotCount, r.Reason})
		}
		for _, name := range report.Skipped {
			t.AppendRow(table.Row{name, false, "", "excluded"})
		}
		for name, msg := range report.Failures {
			t.AppendRow(table.Row{name, false, "", msg})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

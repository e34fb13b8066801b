package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(facilitiesCmd)
	rootCmd.AddCommand(statsCmd)
}

var facilitiesCmd = &cobra.Command{
	Use:   "facilities",
	Short: "Lists the facilities the service knows about.",
	Run: func(cmd *cobra.Command, args []string) {
		var body struct {
			Facilities  []string           `json:"facilities"`
			LastUpdated map[string]*string `json:"last_updated"`
		}
		res, err := client.R().SetResult(&body).Get("/api/facilities")
		if err != nil {
			log.Fatal(err)
		}
		if res.IsError() {
			log.Fatalf("%s: %s", res.Status(), res.String())
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Facility", "Last updated"})
		for _, name := range body.Facilities {
			updated := "never"
			if at := body.LastUpdated[name]; at != nil {
				updated = *at
			}
			t.AppendRow(table.Row{name, updated})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <facility>",
	Short: "Prints scrape bookkeeping for one facility.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var body struct {
			Name                 string `json:"name"`
			LastScrapedAt        *int64 `json:"last_scraped_at"`
			ScrapeCountToday     int    `json:"scrape_count_today"`
			LastScrapeDate       string `json:"last_scrape_date"`
			ConsecutiveErrors    int    `json:"consecutive_errors"`
			CachedSlots          int    `json:"cached_slots"`
			CircuitBreakerActive bool   `json:"circuit_breaker_active"`
		}
		res, err := client.R().
			SetResult(&body).
			SetPathParam("name", args[0]).
			Get("/api/facility/{name}/stats")
		if err != nil {
			log.Fatal(err)
		}
		if res.IsError() {
			log.Fatalf("%s: %s", res.Status(), res.String())
		}

		lastScraped := "never"
		if body.LastScrapedAt != nil {
			lastScraped = time.Unix(*body.LastScrapedAt, 0).Format(time.ANSIC)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"Facility", body.Name},
			{"Last scraped", lastScraped},
			{"Scrapes today", fmt.Sprintf("%d (%s)", body.ScrapeCountToday, body.LastScrapeDate)},
			{"Consecutive errors", body.ConsecutiveErrors},
			{"Slots cached", body.CachedSlots},
			{"Breaker active", body.CircuitBreakerActive},
		})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

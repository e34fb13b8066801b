package cmd

import (
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	availabilityDate      string
	availabilityStartTime string
	availabilityEndTime   string
)

func init() {
	availabilityCmd.Flags().StringVar(&availabilityDate, "date", "", "only this date (YYYY-MM-DD)")
	availabilityCmd.Flags().StringVar(&availabilityStartTime, "start-time", "", "slots starting at or after HH:MM")
	availabilityCmd.Flags().StringVar(&availabilityEndTime, "end-time", "", "slots ending at or before HH:MM")
	rootCmd.AddCommand(availabilityCmd)
}

var availabilityCmd = &cobra.Command{
	Use:   "availability <facility>",
	Short: "Prints the cached available slots for a facility.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var body struct {
			Facility string `json:"facility"`
			Count    int    `json:"count"`
			Data     []struct {
				Date        string  `json:"date"`
				DayName     string  `json:"day_name"`
				StartTime   string  `json:"start_time"`
				EndTime     string  `json:"end_time"`
				CourtNumber *string `json:"court_number"`
				ScrapedAt   string  `json:"scraped_at"`
			} `json:"data"`
		}

		req := client.R().
			SetResult(&body).
			SetQueryParam("facility", args[0])
		if availabilityDate != "" {
			req.SetQueryParam("date", availabilityDate)
		}
		if availabilityStartTime != "" {
			req.SetQueryParam("start_time", availabilityStartTime)
		}
		if availabilityEndTime != "" {
			req.SetQueryParam("end_time", availabilityEndTime)
		}

		res, err := req.Get("/api/availability")
		if err != nil {
			log.Fatal(err)
		}
		if res.IsError() {
			log.Fatalf("%s: %s", res.Status(), res.String())
		}

		cmd.Printf("%s: %d slots\n", body.Facility, body.Count)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Date", "Day", "Start", "End", "Court", "Scraped at"})
		for _, slot := range body.Data {
			court := ""
			if slot.CourtNumber != nil {
				court = *slot.CourtNumber
			}
			t.AppendRow(table.Row{slot.Date, slot.DayName, slot.StartTime, slot.EndTime, court, slot.ScrapedAt})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

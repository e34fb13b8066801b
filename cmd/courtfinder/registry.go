package main

import (
	"time"

	"courtfinder-backend/lib/navigate"
	"courtfinder-backend/lib/scrapers/anglian"
	"courtfinder-backend/lib/scrapers/gladstone"
	"courtfinder-backend/lib/scrapers/legend"
	"courtfinder-backend/services/courts"
)

// SiteCredentials is the login shared by config and environment for one
// booking platform.
type SiteCredentials struct {
	Username string `json:"username" env:"USERNAME"`
	Password string `json:"password" env:"PASSWORD"`
}

// buildAdapters wires the four known facilities. Facility names are load
// bearing: rows are stored and queried under them.
func buildAdapters(cfg Config) map[string]courts.NavigatorFactory {
	return map[string]courts.NavigatorFactory{
		"Hill Roads Sport and Tennis Centre": func() (navigate.Navigator, error) {
			return legend.NewNavigator(legend.Config{
				FacilityName: "Hill Roads Sport and Tennis Centre",
				HallName:     "Sports Hall",
				BaseUrl:      "https://hillsroad.legendonlineservices.co.uk",
				Flow:         legend.FlowMakeABooking,
				Hall:         "Sports Hall",
				Activity:     "Badminton",
				MaxDays:      5,
				SlotDuration: time.Hour,
				Credentials: legend.Credentials{
					Username: cfg.Legend.Username,
					Password: cfg.Legend.Password,
				},
			})
		},
		"Trumpington Sport": func() (navigate.Navigator, error) {
			return legend.NewNavigator(legend.Config{
				FacilityName: "Trumpington Sport",
				HallName:     "Sports Hall",
				BaseUrl:      "https://abbeycroft.legendonlineservices.co.uk",
				Flow:         legend.FlowDropIns,
				Club:         "Trumpington Sport",
				Category:     "Court Bookings",
				Activity:     "Badminton",
				MaxDays:      14,
				SlotDuration: time.Hour,
				Credentials: legend.Credentials{
					Username: cfg.Legend.Username,
					Password: cfg.Legend.Password,
				},
			})
		},
		"Linton Village College": func() (navigate.Navigator, error) {
			return anglian.NewNavigator(anglian.Config{
				FacilityName:   "Linton Village College",
				HallName:       "Sports Hall",
				BaseUrl:        "https://lvc.org/sportscentre/badminton-hire/",
				Activity:       "badminton",
				RejectActivity: "basketball",
				MaxDays:        14,
				Credentials: anglian.Credentials{
					Username: cfg.Anglian.Username,
					Password: cfg.Anglian.Password,
				},
			})
		},
		"One Leisure St Ives": func() (navigate.Navigator, error) {
			return gladstone.NewNavigator(gladstone.Config{
				FacilityName: "One Leisure St Ives",
				HallName:     "Sports Hall",
				BaseUrl:      "https://oneleisure.gladstonego.cloud",
				BookPath:     "/book",
				Activity:     "Badminton",
				MaxDays:      7,
			})
		},
	}
}

package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/London")
	if err != nil {
		panic(err)
	}
}

// every booking site we scrape is a UK venue, so dates shown in their
// timetables ("TODAY", "TOMORROW", day tabs) are London-local. pin the
// process to that zone so Year()/Month()/Day() arithmetic lines up with
// what the site displays no matter where the server runs.
func Now() time.Time {
	return time.Now().In(Location)
}

// Today returns the current London calendar date as YYYY-MM-DD.
func Today() string {
	return Now().Format(time.DateOnly)
}

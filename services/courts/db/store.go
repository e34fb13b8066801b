package db

import (
	"context"
	"database/sql"
	"time"

	"courtfinder-backend/lib/slotextract"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
)

type Facility struct {
	ID                int64          `db:"id"`
	Name              string         `db:"name"`
	LastScrapedAt     sql.NullInt64  `db:"last_scraped_at"`
	ScrapeCountToday  int            `db:"scrape_count_today"`
	LastScrapeDate    sql.NullString `db:"last_scrape_date"`
	ConsecutiveErrors int            `db:"consecutive_errors"`
}

type Slot struct {
	ID          int64          `db:"id"`
	FacilityID  int64          `db:"facility_id"`
	Date        string         `db:"date"`
	DayName     string         `db:"day_name"`
	StartTime   string         `db:"start_time"`
	EndTime     string         `db:"end_time"`
	CourtNumber sql.NullString `db:"court_number"`
	Available   bool           `db:"available"`
	ScrapedAt   int64          `db:"scraped_at"`
}

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// UpsertFacility returns the facility row with the given name, creating it
// with zeroed counters when it does not exist yet.
func (s *Store) UpsertFacility(ctx context.Context, name string) (Facility, error) {
	_, err := s.db.ExecContext(ctx,
		`insert into facilities (name) values (?) on conflict (name) do nothing`,
		name)
	if err != nil {
		return Facility{}, errors.Wrap(err, "upsert facility")
	}
	return s.GetFacility(ctx, name)
}

// GetFacility returns sql.ErrNoRows when the facility is unknown.
func (s *Store) GetFacility(ctx context.Context, name string) (Facility, error) {
	var f Facility
	err := s.db.GetContext(ctx, &f, `select * from facilities where name = ?`, name)
	return f, err
}

func (s *Store) ListFacilities(ctx context.Context) ([]Facility, error) {
	var out []Facility
	err := s.db.SelectContext(ctx, &out, `select * from facilities order by name`)
	return out, err
}

// UpdateFacilityMeta writes back the scrape bookkeeping columns.
func (s *Store) UpdateFacilityMeta(ctx context.Context, f Facility) error {
	_, err := s.db.ExecContext(ctx,
		`update facilities
         set last_scraped_at = ?, scrape_count_today = ?,
             last_scrape_date = ?, consecutive_errors = ?
         where id = ?`,
		f.LastScrapedAt, f.ScrapeCountToday, f.LastScrapeDate,
		f.ConsecutiveErrors, f.ID)
	return errors.Wrap(err, "update facility meta")
}

// ReplaceSlots swaps the facility's availability for a fresh scrape in one
// transaction, so readers never see a half written window.
func (s *Store) ReplaceSlots(ctx context.Context, facilityID int64, slots []slotextract.Slot, scrapedAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin replace slots")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`delete from court_availability where facility_id = ?`, facilityID)
	if err != nil {
		return errors.Wrap(err, "clear old slots")
	}

	at := scrapedAt.Unix()
	for _, slot := range slots {
		court := sql.NullString{String: slot.CourtNumber, Valid: slot.CourtNumber != ""}
		_, err = tx.ExecContext(ctx,
			`insert into court_availability
             (facility_id, date, day_name, start_time, end_time, court_number, available, scraped_at)
             values (?, ?, ?, ?, ?, ?, ?, ?)`,
			facilityID, slot.Date, slot.DayName, slot.StartTime, slot.EndTime,
			court, slot.Available, at)
		if err != nil {
			return errors.Wrap(err, "insert slot")
		}
	}
	return errors.Wrap(tx.Commit(), "commit replace slots")
}

type SlotQuery struct {
	FacilityID int64
	// inclusive lower bound on date, YYYY-MM-DD; empty means no bound
	FromDate string
	// inclusive upper bound on date
	ToDate string
	// exact date match, applied on top of the range when set
	Date string
	// slots starting at or after this HH:MM
	StartAfter string
	// slots ending at or before this HH:MM
	EndBefore     string
	AvailableOnly bool
}

func (s *Store) QuerySlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	query := `select * from court_availability where facility_id = ?`
	args := []any{q.FacilityID}

	if q.FromDate != "" {
		query += ` and date >= ?`
		args = append(args, q.FromDate)
	}
	if q.ToDate != "" {
		query += ` and date <= ?`
		args = append(args, q.ToDate)
	}
	if q.Date != "" {
		query += ` and date = ?`
		args = append(args, q.Date)
	}
	if q.StartAfter != "" {
		query += ` and start_time >= ?`
		args = append(args, q.StartAfter)
	}
	if q.EndBefore != "" {
		query += ` and end_time <= ?`
		args = append(args, q.EndBefore)
	}
	if q.AvailableOnly {
		query += ` and available = 1`
	}
	query += ` order by date, start_time, court_number`

	var out []Slot
	err := s.db.SelectContext(ctx, &out, query, args...)
	return out, err
}

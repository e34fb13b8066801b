// Package dbconn opens the canonical store from a config struct, picking
// between a local sqlite file (or :memory:) and a networked libsql database.
package dbconn

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"

	"github.com/jmoiron/sqlx"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type Struct struct {
	// path of a local sqlite database file, or ":memory:"
	File string `json:"file"`
	// libsql url of a networked database, takes precedence over File
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Struct) open() (*sql.DB, error) {
	if config.Url != "" {
		u, err := url.Parse(config.Url)
		if err != nil {
			return nil, err
		}
		if config.AuthToken != "" {
			q := u.Query()
			q.Set("authToken", config.AuthToken)
			u.RawQuery = q.Encode()
		}
		return sql.Open("libsql", u.String())
	}

	if config.File == "" {
		return nil, fmt.Errorf("a database path was not specified")
	}
	if config.File != ":memory:" {
		_, err := os.Stat(config.File)
		if os.IsNotExist(err) {
			f, err := os.Create(config.File)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	db, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// modernc sqlite misbehaves under concurrent writers, see
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if config.File != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			return nil, err
		}
	}
	return db, nil
}

// OpenDB opens the configured database and executes `schema` against it.
// The schema is expected to be idempotent (CREATE TABLE IF NOT EXISTS).
func (config Struct) OpenDB(schema string) (*sqlx.DB, error) {
	db, err := config.open()
	if err != nil {
		return nil, err
	}
	if schema != "" {
		_, err = db.Exec(schema)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	driver := "sqlite"
	if config.Url != "" {
		driver = "libsql"
	}
	return sqlx.NewDb(db, driver), nil
}

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"courtfinder-backend/lib/configutil"
	"courtfinder-backend/lib/configutil/dbconn"
	"courtfinder-backend/lib/serviceutil"
	"courtfinder-backend/lib/telemetry"
	"courtfinder-backend/services/courts"
	courtsdb "courtfinder-backend/services/courts/db"

	"github.com/caarlos0/env/v11"
	"github.com/lmittmann/tint"
)

// Config is the file half of configuration: database and logins, the
// things that should never live in env vars on a shared box. Scrape
// budgets and the port come from the environment.
type Config struct {
	Database dbconn.Struct   `json:"database"`
	Legend   SiteCredentials `json:"legend" envPrefix:"LOGIN_"`
	Anglian  SiteCredentials `json:"anglian" envPrefix:"LVC_"`
}

type EnvConfig struct {
	Port                 int      `env:"PORT" envDefault:"8080"`
	ConfigFile           string   `env:"CONFIG_FILE" envDefault:"config.json5"`
	MaxScrapesPerDay     int      `env:"MAX_SCRAPES_PER_DAY" envDefault:"3"`
	MaxScrapesPerHour    int      `env:"MAX_SCRAPES_PER_HOUR" envDefault:"1"`
	MinCacheAgeSeconds   int      `env:"MIN_CACHE_AGE_SECONDS" envDefault:"3600"`
	InterFacilityDelay   int      `env:"SCRAPE_DELAY_BETWEEN_FACILITIES_SECONDS" envDefault:"120"`
	ExcludeFacilities    []string `env:"EXCLUDE_SCRAPE_FACILITIES" envDefault:"Linton Village College"`
	ScrapeAllEveryMins   int      `env:"SCRAPE_ALL_INTERVAL_MINUTES" envDefault:"0"`
}

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: slog.LevelDebug,
	})))

	ctx := serviceutil.SignalContext()

	envCfg, err := env.ParseAs[EnvConfig]()
	if err != nil {
		serviceutil.Fatal("failed to parse environment", err)
	}
	config, err := configutil.ReadConfig[Config](envCfg.ConfigFile)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	// logins may also come from the environment, taking precedence
	err = env.Parse(&config)
	if err != nil {
		serviceutil.Fatal("failed to parse credential env vars", err)
	}

	db, err := config.Database.OpenDB(courtsdb.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	t, err := telemetry.SetupFromEnv(ctx, "courtfinder")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	limits := courts.Limits{
		MaxScrapesPerDay:     envCfg.MaxScrapesPerDay,
		MaxScrapesPerHour:    envCfg.MaxScrapesPerHour,
		MinCacheAge:          time.Duration(envCfg.MinCacheAgeSeconds) * time.Second,
		MaxConsecutiveErrors: courts.DefaultLimits().MaxConsecutiveErrors,
		InterFacilityDelay:   time.Duration(envCfg.InterFacilityDelay) * time.Second,
		Exclude:              envCfg.ExcludeFacilities,
	}

	service := courts.NewService(
		courtsdb.NewStore(db),
		buildAdapters(config),
		limits,
	)

	if envCfg.ScrapeAllEveryMins > 0 {
		go scrapeAllLoop(ctx, service, time.Duration(envCfg.ScrapeAllEveryMins)*time.Minute)
	}

	go serviceutil.StartHttpServer(envCfg.Port, courts.NewHandler(service))
	<-ctx.Done()
}

// scrapeAllLoop refreshes every facility on a fixed cadence. The gate
// checks inside the service still apply, so a short interval just means
// more "Cache fresh" denials, not more scraping.
func scrapeAllLoop(ctx context.Context, service *courts.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		report, err := service.ScrapeAll(ctx, nil)
		if err != nil {
			slog.ErrorContext(ctx, "scheduled scrape-all failed", "err", err)
			continue
		}
		slog.InfoContext(ctx, "scheduled scrape-all finished",
			"run_id", report.RunID, "scraped", len(report.Results))
	}
}

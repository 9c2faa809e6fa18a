package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/subham/flightsearch/internal/amadeus"
	"github.com/subham/flightsearch/internal/cache"
	"github.com/subham/flightsearch/internal/config"
	"github.com/subham/flightsearch/internal/field"
	"github.com/subham/flightsearch/internal/logger"
	"github.com/subham/flightsearch/internal/lookup"
	"github.com/subham/flightsearch/internal/provider"
	"github.com/subham/flightsearch/internal/query"
	"github.com/subham/flightsearch/internal/search"
	"github.com/subham/flightsearch/internal/storage"
	"github.com/subham/flightsearch/internal/ui"
)

func main() {
	env := flag.String("env", "", "config environment (defaults to FLIGHTSEARCH_ENV or development)")
	rawQuery := flag.String("query", "", `initial query string, e.g. "origin=LHR&destination=PAR"`)
	flag.Parse()

	cfg, err := config.Load(*env)
	if err != nil {
		slog.Error("loading config failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)
	log.Info("flight search starting", slog.String("env", cfg.Environment), slog.Any("providers", cfg.Lookup.Providers))

	store, err := openStorage(cfg.Storage)
	if err != nil {
		log.Error("opening storage failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	index := cache.NewCodeIndex(store,
		cache.WithCapacity(cfg.Index.Capacity),
		cache.WithStorageKey(cfg.Index.StorageKey),
		cache.WithLogger(log),
	)

	locations, err := buildProvider(cfg, log)
	if err != nil {
		log.Error("building providers failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	svc := lookup.New(locations, index,
		lookup.WithTTL(cfg.Lookup.CacheTTL),
		lookup.WithMinQueryLength(cfg.Search.MinQueryLength),
		lookup.WithLogger(log),
	)
	defer svc.Close()

	q := query.New(*rawQuery)
	newField := func(slot string) *field.Controller {
		engine := search.New(svc, search.Options{
			QuietPeriod:    cfg.Search.QuietPeriod,
			MinQueryLength: cfg.Search.MinQueryLength,
			Logger:         log.With(slog.String("field", slot)),
		})
		return field.New(field.Config{
			Slot:     slot,
			Query:    q,
			Index:    index,
			Resolver: svc,
			Engine:   engine,
			Logger:   log,

			MinQueryLength: cfg.Search.MinQueryLength,
		})
	}
	origin := newField(query.Origin)
	defer origin.Close()
	destination := newField(query.Destination)
	defer destination.Close()

	game := ui.NewGame(origin, destination,
		ui.WithLogger(log),
		ui.WithSubmit(func(o, d string) {
			log.Info("flight search requested", slog.String("query", q.Encode()),
				slog.String("origin", index.FormatCode(o)), slog.String("destination", index.FormatCode(d)))
		}),
	)

	ebiten.SetWindowTitle("Flight Search")
	ebiten.SetWindowSize(800, 480)
	ebiten.SetTPS(30)
	ebiten.SetVsyncEnabled(true)

	if err := ebiten.RunGame(game); err != nil {
		log.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Type == "file" {
		return storage.NewFile(cfg.Path)
	}
	return storage.NewMemory(), nil
}

// buildProvider creates the configured providers in failover order behind a
// MultiProvider.
func buildProvider(cfg *config.Config, log *slog.Logger) (provider.LocationProvider, error) {
	var providers []provider.LocationProvider
	for _, name := range cfg.Lookup.Providers {
		switch name {
		case "amadeus":
			client := amadeus.NewClient(amadeus.Config{
				BaseURL:      cfg.Amadeus.BaseURL,
				ClientID:     cfg.Amadeus.ClientID,
				ClientSecret: cfg.Amadeus.ClientSecret,
				Timeout:      cfg.Amadeus.Timeout,
			})
			if !client.Configured() {
				log.Warn("amadeus credentials missing, skipping provider")
				continue
			}
			providers = append(providers, provider.NewAmadeusProvider(client))
		case "aviationstack":
			if cfg.AviationStack.APIKey == "" {
				log.Warn("aviationstack key missing, skipping provider")
				continue
			}
			providers = append(providers, provider.NewAviationStackProvider(cfg.AviationStack.APIKey, cfg.AviationStack.BaseURL))
		case "static":
			static, err := provider.NewStaticProvider()
			if err != nil {
				return nil, err
			}
			log.Debug("static dataset loaded", slog.Int("locations", static.Len()))
			providers = append(providers, static)
		}
	}
	if len(providers) == 0 {
		static, err := provider.NewStaticProvider()
		if err != nil {
			return nil, err
		}
		log.Warn("no provider configured, using the built-in dataset")
		providers = append(providers, static)
	}

	multi := provider.NewMultiProvider(log, providers...)
	for _, rl := range cfg.Lookup.RateLimits {
		multi.SetRateLimit(rl.Provider, rl.Requests, rl.Window)
	}
	return multi, nil
}

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/pedestrian_tracker/internal/config"
	"github.com/relabs-tech/pedestrian_tracker/internal/osm"
	"github.com/relabs-tech/pedestrian_tracker/internal/scenario"
	"github.com/relabs-tech/pedestrian_tracker/internal/store"
)

// RunReplay plays the scenario files in paths and prints a summary of each.
// With online set, address lookups and reroutes go to the configured OSM
// services instead of the scenario's scripted route. With archive set,
// finished walks are written to the session database.
func RunReplay(paths []string, online, archive bool) error {
	cfg := config.Get()
	if cfg == nil {
		cfg = config.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := scenario.Options{Engine: cfg.Engine()}
	if online {
		lookups := osm.NewClient(osm.Options{
			GeocoderURL: cfg.GeocoderURL,
			RouterURL:   cfg.RouterURL,
			UserAgent:   cfg.UserAgent,
			Language:    cfg.Language,
			Timeout:     cfg.HTTPTimeout(),
		})
		opts.Geocoder = lookups
		opts.Router = lookups
	}
	if archive {
		db, err := store.NewDB(cfg.SessionDBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Archiver = db
	}

	failed := 0
	for _, path := range paths {
		sc, err := scenario.Load(path)
		if err != nil {
			return err
		}
		log.Printf("replay: %s (%d events)", sc.Name, len(sc.Events))

		res, err := scenario.Run(ctx, sc, opts)
		if err != nil {
			return fmt.Errorf("replay %s: %w", path, err)
		}
		fmt.Print(res.Summary(sc.Name))
		if !res.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("replay: %d of %d scenarios failed", failed, len(paths))
	}
	return nil
}

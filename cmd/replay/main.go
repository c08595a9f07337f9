package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/pedestrian_tracker/internal/app"
	"github.com/relabs-tech/pedestrian_tracker/internal/config"
)

func main() {
	configPath := flag.String("config", "tracker_config.txt", "config file; defaults are used when it is missing")
	online := flag.Bool("online", false, "use the configured geocoder and router")
	archive := flag.Bool("archive", false, "store finished walks in the session database")
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatalf("usage: replay [-online] [-archive] scenario.yaml...")
	}

	if _, err := os.Stat(*configPath); err == nil {
		if err := config.InitGlobal(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	if err := app.RunReplay(flag.Args(), *online, *archive); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

package main

import (
	"log"

	"github.com/relabs-tech/pedestrian_tracker/internal/app"
	"github.com/relabs-tech/pedestrian_tracker/internal/config"
)

func main() {
	log.Println("starting pedestrian tracker console (MQTT subscriber)")

	if err := config.InitGlobal("tracker_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

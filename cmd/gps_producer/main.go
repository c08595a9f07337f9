package main

import (
	"log"

	"github.com/relabs-tech/pedestrian_tracker/internal/app"
	"github.com/relabs-tech/pedestrian_tracker/internal/config"
)

func main() {
	log.Println("starting pedestrian tracker GPS producer (NMEA → MQTT)")

	if err := config.InitGlobal("tracker_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunGPSProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

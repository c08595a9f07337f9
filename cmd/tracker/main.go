// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/pedestrian_tracker/internal/app"
	"github.com/relabs-tech/pedestrian_tracker/internal/config"
)

func main() {
	log.Println("starting pedestrian tracker (sensors + GPS + commands → snapshots)")

	if err := config.InitGlobal("tracker_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunTracker(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

package app

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/pedestrian_tracker/internal/config"
	"github.com/relabs-tech/pedestrian_tracker/internal/gps"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

// RunConsoleMQTT prints tracker snapshots, events and GPS fixes as they
// arrive.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("console: config not initialised")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	// Snapshots arrive at tick rate; only print when something visible changes.
	throttle := &snapshotThrottle{interval: snapshotInterval * 10}
	if err := subscribeJSON(client, cfg.TopicSnapshot, "console", func(s nav.Snapshot) {
		if !throttle.allow(s, s.Time) {
			return
		}
		fmt.Println(formatSnapshot(s))
	}); err != nil {
		return err
	}

	if err := subscribeJSON(client, cfg.TopicEvents, "console", func(e nav.Event) {
		fmt.Println(formatEvent(e))
	}); err != nil {
		return err
	}

	if err := subscribeJSON(client, cfg.TopicGPS, "console", func(f gps.Fix) {
		fmt.Printf(
			"[GPS ]  time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° validity=%s sats=%d\n",
			f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.Validity, f.Satellites,
		)
	}); err != nil {
		return err
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func formatSnapshot(s nav.Snapshot) string {
	line := fmt.Sprintf(
		"[SNAP]  %-9s HDG=%6.2f  STEPS=%4d  WALKED=%7.1fm  POS=%.6f,%.6f",
		s.Mode, s.Heading, s.Steps, s.DistanceWalked, s.Position.Lat, s.Position.Lng,
	)
	if len(s.PlannedRoute) > 0 {
		line += fmt.Sprintf("  REMAINING=%.1fm", s.RemainingRoute)
	}
	if s.Destination != nil {
		line += "  TO=" + s.Destination.Label
	}
	return line
}

func formatEvent(e nav.Event) string {
	line := "[EVT ]  " + e.Type
	if e.CommandID != "" {
		line += " (" + e.CommandID + ")"
	}
	if e.Message != "" {
		line += ": " + e.Message
	}
	return line
}

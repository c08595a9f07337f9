package app

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/relabs-tech/pedestrian_tracker/internal/config"
	"github.com/relabs-tech/pedestrian_tracker/internal/gps"
	"github.com/relabs-tech/pedestrian_tracker/internal/imu"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
	"github.com/relabs-tech/pedestrian_tracker/internal/osm"
	"github.com/relabs-tech/pedestrian_tracker/internal/store"
)

// snapshotInterval caps how often tick-driven snapshots go out over MQTT.
// Mode, step and generation changes are always published.
const snapshotInterval = 100 * time.Millisecond

// commandTimeout bounds a single command, including its lookups.
const commandTimeout = 30 * time.Second

// snapshotThrottle decides which snapshots are worth publishing.
type snapshotThrottle struct {
	interval time.Duration
	last     time.Time
	mode     nav.Mode
	steps    int
	gen      uint64
	primed   bool
}

func (t *snapshotThrottle) allow(s nav.Snapshot, now time.Time) bool {
	changed := !t.primed || s.Mode != t.mode || s.Steps != t.steps || s.Generation != t.gen
	if !changed && now.Sub(t.last) < t.interval {
		return false
	}
	t.primed = true
	t.last = now
	t.mode, t.steps, t.gen = s.Mode, s.Steps, s.Generation
	return true
}

// executeCommand runs cmd and reports the outcome as an event.
func executeCommand(ctx context.Context, loop *nav.Loop, cmd nav.Command, now time.Time) nav.Event {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	ev := nav.Event{Type: nav.EventCommandOK, CommandID: cmd.ID, Message: cmd.Type, Time: now}
	if err := loop.Execute(ctx, cmd); err != nil {
		log.Printf("tracker: command %s (%s) failed: %v", cmd.Type, cmd.ID, err)
		ev.Type = nav.EventCommandFailed
		ev.Message = cmd.Type + ": " + err.Error()
	}
	return ev
}

// RunTracker runs the navigation engine: sensor, GPS and command topics feed
// the loop; snapshots and events are published back.
func RunTracker() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("tracker: config not initialised")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDTracker)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	var archiver nav.Archiver
	if cfg.SessionDBPath != "" {
		db, err := store.NewDB(cfg.SessionDBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		archiver = db
		log.Printf("tracker: archiving walks to %s", cfg.SessionDBPath)
	}

	lookups := osm.NewClient(osm.Options{
		GeocoderURL: cfg.GeocoderURL,
		RouterURL:   cfg.RouterURL,
		UserAgent:   cfg.UserAgent,
		Language:    cfg.Language,
		Timeout:     cfg.HTTPTimeout(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()

	throttle := &snapshotThrottle{interval: snapshotInterval}
	publishEvent := func(e nav.Event) {
		if err := publishJSON(client, cfg.TopicEvents, false, e); err != nil {
			log.Printf("tracker: event publish error: %v", err)
		}
	}

	loop := nav.NewLoop(nav.NewEngine(cfg.Engine()), nav.LoopOptions{
		Geocoder: lookups,
		Router:   lookups,
		Archiver: archiver,
		Ticks:    ticker.C,
		OnSnapshot: func(s nav.Snapshot) {
			if !throttle.allow(s, time.Now()) {
				return
			}
			if err := publishJSON(client, cfg.TopicSnapshot, true, s); err != nil {
				log.Printf("tracker: snapshot publish error: %v", err)
			}
		},
		OnEvent: publishEvent,
	})

	var commands sync.WaitGroup
	defer commands.Wait()
	if err := subscribeTracker(ctx, client, cfg, loop, &commands, publishEvent); err != nil {
		return err
	}

	log.Printf("tracker: running, tick %s", cfg.TickInterval())
	err = loop.Run(ctx)
	loop.Wait()
	if errors.Is(err, context.Canceled) {
		log.Println("tracker: shutting down")
		return nil
	}
	return err
}

func subscribeTracker(ctx context.Context, client mqtt.Client, cfg *config.Config, loop *nav.Loop, commands *sync.WaitGroup, publishEvent func(nav.Event)) error {
	if err := subscribeJSON(client, cfg.TopicCompass, "tracker", func(r CompassReading) {
		_ = loop.Compass(ctx, r.Heading)
	}); err != nil {
		return err
	}

	if err := subscribeJSON(client, cfg.TopicAccel, "tracker", func(s imu.Sample) {
		_ = loop.Motion(ctx, s)
	}); err != nil {
		return err
	}

	if err := subscribeJSON(client, cfg.TopicGPS, "tracker", func(f gps.Fix) {
		if !f.Valid() {
			return
		}
		_ = loop.Fix(ctx, f.Coordinate())
	}); err != nil {
		return err
	}

	// commands may block on lookups, so each runs on its own goroutine
	return subscribeJSON(client, cfg.TopicCommand, "tracker", func(cmd nav.Command) {
		commands.Add(1)
		go func() {
			defer commands.Done()
			cctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()
			publishEvent(executeCommand(cctx, loop, cmd, time.Now()))
		}()
	})
}

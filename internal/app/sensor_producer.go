// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/pedestrian_tracker/internal/config"
	"github.com/relabs-tech/pedestrian_tracker/internal/imu"
	"github.com/relabs-tech/pedestrian_tracker/internal/orientation"
)

// RunSensorProducer publishes a simulated walker: compass headings and
// accelerometer samples on their MQTT topics, until interrupted.
func RunSensorProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("sensors: config not initialised")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDSensors)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(cfg.SensorSampleIntervalMS) * time.Millisecond
	log.Printf("sensors: publishing mock compass and accel every %s", interval)

	err = produceSensors(ctx, interval, orientation.NewMockSource(), imu.NewMockSource(),
		func(r CompassReading) error { return publishJSON(client, cfg.TopicCompass, false, r) },
		func(s imu.Sample) error { return publishJSON(client, cfg.TopicAccel, false, s) },
	)
	if errors.Is(err, context.Canceled) {
		log.Println("sensors: shutting down")
		return nil
	}
	return err
}

func produceSensors(
	ctx context.Context,
	interval time.Duration,
	compass orientation.Source,
	accel imu.SampleSource,
	sendCompass func(CompassReading) error,
	sendAccel func(imu.Sample) error,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			heading, err := compass.Next()
			if err != nil {
				return err
			}
			if err := sendCompass(CompassReading{Heading: heading, Time: now}); err != nil {
				log.Printf("sensors: compass publish error: %v", err)
			}

			s, err := accel.NextSample()
			if err != nil {
				return err
			}
			if err := sendAccel(s); err != nil {
				log.Printf("sensors: accel publish error: %v", err)
			}
		}
	}
}

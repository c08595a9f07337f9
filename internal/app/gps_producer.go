package app

import (
	"bufio"
	"errors"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/pedestrian_tracker/internal/config"
	"github.com/relabs-tech/pedestrian_tracker/internal/gps"
)

// RunGPSProducer opens the GPS serial port, decodes NMEA sentences, and
// publishes each RMC fix as JSON to the GPS topic.
func RunGPSProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("gps: config not initialised")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("gps: serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	return streamFixes(port, func(f gps.Fix) error {
		return publishJSONWait(client, cfg.TopicGPS, true, f)
	})
}

// streamFixes decodes lines from r until it fails and hands every completed
// fix to publish. Publish errors are logged and skipped.
func streamFixes(r io.Reader, publish func(gps.Fix) error) error {
	reader := bufio.NewReader(r)
	var dec gps.Decoder
	bad := 0

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			fix, ok, derr := dec.Decode(line)
			switch {
			case derr != nil:
				// noisy receivers produce partial sentences; only log occasionally
				bad++
				if bad%100 == 1 {
					log.Printf("gps: %d bad sentences, last: %v", bad, derr)
				}
			case ok:
				if perr := publish(fix); perr != nil {
					log.Printf("gps: publish error: %v", perr)
				} else {
					log.Printf("gps: fix %.6f,%.6f validity=%s sats=%d", fix.Latitude, fix.Longitude, fix.Validity, fix.Satellites)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Printf("gps: read error: %v", err)
			return err
		}
	}
}

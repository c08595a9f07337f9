package gps

import (
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// Decoder accumulates NMEA sentences into a Fix. RMC sentences complete a
// fix; GGA sentences only refine quality fields for the next one.
type Decoder struct {
	current Fix
}

// Decode feeds one line from the receiver. It returns the updated fix and
// true when the line was an RMC sentence. Blank lines, non-NMEA noise and
// partial sentences are skipped without error; checksum and parse failures
// are returned so callers can count them.
func (d *Decoder) Decode(line string) (Fix, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return Fix{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false, err
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		d.current.Time = m.Time.String()
		d.current.Date = m.Date.String()
		d.current.Latitude = m.Latitude
		d.current.Longitude = m.Longitude
		d.current.SpeedKnots = m.Speed
		d.current.CourseDeg = m.Course
		d.current.Validity = m.Validity
		return d.current, true, nil

	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		d.current.Quality = m.FixQuality
		d.current.Satellites = m.NumSatellites
		d.current.HDOP = m.HDOP
	}
	return Fix{}, false, nil
}

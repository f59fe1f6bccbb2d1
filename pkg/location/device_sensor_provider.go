package location

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// ErrNoFix is returned when the sensor stream ends without a usable GGA sentence.
var ErrNoFix = errors.New("no valid GPS data found")

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication

	mu      sync.Mutex
	conn    io.ReadCloser
	scanner *bufio.Scanner
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
	}
}

// GetLocation reads GPS data from the device and returns the device's location.
// The serial port stays open between calls and is reopened after a read failure.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Location, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		s, err := serial.OpenPort(&serial.Config{Name: d.port, Baud: d.baudRate})
		if err != nil {
			return Location{}, err
		}
		d.conn = s
		d.scanner = bufio.NewScanner(s)
	}

	loc, err := readFix(ctx, d.scanner)
	if err != nil {
		d.conn.Close()
		d.conn = nil
		d.scanner = nil
		return Location{}, err
	}
	return loc, nil
}

// Close releases the serial port.
func (d *DeviceSensorProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.scanner = nil
	return err
}

// readFix scans NMEA lines until a GGA sentence with a valid fix is found.
// Lines that fail to parse are skipped; receivers emit partial lines on startup.
func readFix(ctx context.Context, scanner *bufio.Scanner) (Location, error) {
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Location{}, err
		}

		sentence, err := nmea.Parse(scanner.Text())
		if err != nil {
			continue
		}
		if sentence.DataType() != nmea.TypeGGA {
			continue
		}

		gga, ok := sentence.(nmea.GGA)
		if !ok || gga.FixQuality == nmea.Invalid {
			continue
		}
		return Location{
			Latitude:  gga.Latitude,
			Longitude: gga.Longitude,
			Accuracy:  gga.HDOP, // Use HDOP as a proxy for accuracy
		}, nil
	}

	if err := scanner.Err(); err != nil {
		return Location{}, err
	}
	return Location{}, ErrNoFix
}

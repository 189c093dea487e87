// Package location provides the coordinates the timer computes sun times
// from.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when no location could be obtained
var ErrUnavailable = errors.New("location unavailable")

// Static reports a fixed location, for systems without GeoClue or a user
// configured location
type Static struct {
	Latitude  float64
	Longitude float64
}

// Track reports the location once
func (s Static) Track(ctx context.Context, onUpdate func(latitude, longitude float64)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	onUpdate(s.Latitude, s.Longitude)
	return func() {}, nil
}

// Unavailable always fails, as a disabled location service would
type Unavailable struct{}

// Track returns ErrUnavailable
func (Unavailable) Track(ctx context.Context, onUpdate func(latitude, longitude float64)) (func(), error) {
	return nil, ErrUnavailable
}

const (
	geoclueDest      = "org.freedesktop.GeoClue2"
	geoclueManager   = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerInterface = "org.freedesktop.GeoClue2.Manager"
	clientInterface  = "org.freedesktop.GeoClue2.Client"
	locationIface    = "org.freedesktop.GeoClue2.Location"
	propertiesIface  = "org.freedesktop.DBus.Properties"

	// AccuracyCity is the GeoClue accuracy level for city precision
	AccuracyCity uint32 = 4
)

// GeoClue tracks the location through the GeoClue2 service on the system bus
type GeoClue struct {
	conn      *dbus.Conn
	desktopID string
	accuracy  uint32
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGeoClue creates a tracker with city accuracy. The desktop ID identifies
// the application to the GeoClue agent.
func NewGeoClue(conn *dbus.Conn, desktopID string, timeout time.Duration, logger *zap.Logger) *GeoClue {
	return &GeoClue{
		conn:      conn,
		desktopID: desktopID,
		accuracy:  AccuracyCity,
		timeout:   timeout,
		logger:    logger.Named("geoclue"),
	}
}

// Track starts a GeoClue client and waits for the first location. Following
// updates are reported until the returned stop function is called or ctx is
// cancelled.
func (g *GeoClue) Track(ctx context.Context, onUpdate func(latitude, longitude float64)) (func(), error) {
	manager := g.conn.Object(geoclueDest, geoclueManager)

	var clientPath dbus.ObjectPath
	if err := manager.CallWithContext(ctx, managerInterface+".GetClient", 0).Store(&clientPath); err != nil {
		return nil, fmt.Errorf("failed to get GeoClue client: %w", err)
	}
	client := g.conn.Object(geoclueDest, clientPath)

	if err := setProperty(ctx, client, "DesktopId", g.desktopID); err != nil {
		return nil, err
	}
	if err := setProperty(ctx, client, "RequestedAccuracyLevel", g.accuracy); err != nil {
		return nil, err
	}

	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientInterface),
		dbus.WithMatchMember("LocationUpdated"),
	}
	if err := g.conn.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("failed to watch GeoClue signals: %w", err)
	}
	signals := make(chan *dbus.Signal, 4)
	g.conn.Signal(signals)

	cleanup := func() {
		g.conn.RemoveSignal(signals)
		_ = g.conn.RemoveMatchSignal(match...)
		_ = client.Call(clientInterface+".Stop", 0).Err
	}

	if err := client.CallWithContext(ctx, clientInterface+".Start", 0).Err; err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to start GeoClue client: %w", err)
	}
	g.logger.Debug("GeoClue client started", zap.String("client", string(clientPath)))

	// Wait for the first fix
	waitCtx, cancelWait := context.WithTimeout(ctx, g.timeout)
	defer cancelWait()

	var first dbus.ObjectPath
	for first == "" {
		select {
		case sig, ok := <-signals:
			if !ok {
				cleanup()
				return nil, fmt.Errorf("%w: bus connection closed", ErrUnavailable)
			}
			first = updatedLocation(sig, clientPath)
		case <-waitCtx.Done():
			cleanup()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: no location from GeoClue after %s", ErrUnavailable, g.timeout)
		}
	}

	lat, lon, err := g.readLocation(ctx, first)
	if err != nil {
		cleanup()
		return nil, err
	}
	onUpdate(lat, lon)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig, ok := <-signals:
				if !ok {
					return
				}
				path := updatedLocation(sig, clientPath)
				if path == "" {
					continue
				}
				lat, lon, err := g.readLocation(ctx, path)
				if err != nil {
					g.logger.Warn("Failed to read updated location", zap.Error(err))
					continue
				}
				onUpdate(lat, lon)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			cleanup()
		})
	}, nil
}

func (g *GeoClue) readLocation(ctx context.Context, path dbus.ObjectPath) (float64, float64, error) {
	obj := g.conn.Object(geoclueDest, path)

	var lat, lon float64
	if err := obj.CallWithContext(ctx, propertiesIface+".Get", 0, locationIface, "Latitude").Store(&lat); err != nil {
		return 0, 0, fmt.Errorf("failed to read latitude: %w", err)
	}
	if err := obj.CallWithContext(ctx, propertiesIface+".Get", 0, locationIface, "Longitude").Store(&lon); err != nil {
		return 0, 0, fmt.Errorf("failed to read longitude: %w", err)
	}
	return lat, lon, nil
}

func setProperty(ctx context.Context, obj dbus.BusObject, name string, value interface{}) error {
	err := obj.CallWithContext(ctx, propertiesIface+".Set", 0, clientInterface, name, dbus.MakeVariant(value)).Err
	if err != nil {
		return fmt.Errorf("failed to set GeoClue %s: %w", name, err)
	}
	return nil
}

// updatedLocation extracts the new location object path from a
// LocationUpdated(old, new) signal of the client
func updatedLocation(sig *dbus.Signal, client dbus.ObjectPath) dbus.ObjectPath {
	if sig == nil || sig.Path != client || sig.Name != clientInterface+".LocationUpdated" {
		return ""
	}
	if len(sig.Body) != 2 {
		return ""
	}
	path, ok := sig.Body[1].(dbus.ObjectPath)
	if !ok || path == "/" {
		return ""
	}
	return path
}

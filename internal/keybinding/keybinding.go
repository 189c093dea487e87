// Package keybinding exposes the on-demand toggle on the session bus. The
// desktop shortcut runs `nightthemeswitcher toggle`, which calls it.
package keybinding

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	// BusName is the well-known name owned by the running daemon
	BusName = "io.github.nightthemeswitcher"
	// ObjectPath is the path of the exported timer object
	ObjectPath = dbus.ObjectPath("/io/github/nightthemeswitcher/Timer")
	// Interface is the interface of the exported timer object
	Interface = "io.github.nightthemeswitcher.Timer"
)

// Exporter publishes Go objects on a bus. *dbus.Conn implements it.
type Exporter interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
}

// DBusRegistrar registers the toggle action as a bus method
type DBusRegistrar struct {
	bus    Exporter
	logger *zap.Logger

	mu          sync.Mutex
	accelerator string
	onActivate  func()
}

// NewDBusRegistrar creates a registrar exporting on bus
func NewDBusRegistrar(bus Exporter, logger *zap.Logger) *DBusRegistrar {
	return &DBusRegistrar{
		bus:    bus,
		logger: logger.Named("keybinding"),
	}
}

// timerObject is the exported object. Its methods become bus methods.
type timerObject struct {
	registrar *DBusRegistrar
}

// Toggle switches between day and night
func (o *timerObject) Toggle() *dbus.Error {
	o.registrar.mu.Lock()
	onActivate := o.registrar.onActivate
	o.registrar.mu.Unlock()

	if onActivate == nil {
		return dbus.MakeFailedError(fmt.Errorf("no keybinding registered"))
	}
	onActivate()
	return nil
}

// Register exports the toggle method. The accelerator is what the user
// bound in the desktop shortcut settings.
func (r *DBusRegistrar) Register(accelerator string, onActivate func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.bus.Export(&timerObject{registrar: r}, ObjectPath, Interface); err != nil {
		return fmt.Errorf("failed to export toggle: %w", err)
	}
	r.accelerator = accelerator
	r.onActivate = onActivate

	r.logger.Info("Registered keybinding", zap.String("accelerator", accelerator))
	return nil
}

// Unregister removes the toggle method
func (r *DBusRegistrar) Unregister(accelerator string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.onActivate == nil {
		return
	}
	if err := r.bus.Export(nil, ObjectPath, Interface); err != nil {
		r.logger.Warn("Failed to unexport toggle", zap.Error(err))
	}
	r.accelerator = ""
	r.onActivate = nil

	r.logger.Info("Removed keybinding", zap.String("accelerator", accelerator))
}

// Registered returns the registered accelerator, empty when none
func (r *DBusRegistrar) Registered() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accelerator
}

// ClaimName requests the well-known bus name of the daemon
func ClaimName(conn *dbus.Conn) error {
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken, is another instance running?", BusName)
	}
	return nil
}

// CallToggle asks the running daemon to toggle
func CallToggle(ctx context.Context, conn *dbus.Conn) error {
	obj := conn.Object(BusName, ObjectPath)
	if err := obj.CallWithContext(ctx, Interface+".Toggle", 0).Err; err != nil {
		return fmt.Errorf("failed to toggle: %w", err)
	}
	return nil
}

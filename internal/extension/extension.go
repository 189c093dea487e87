// Package extension wires the timer and the switchers together.
package extension

import (
	"context"
	"fmt"

	"nightthemeswitcher/internal/clock"
	"nightthemeswitcher/internal/ha"
	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/switcher"
	"nightthemeswitcher/internal/timer"

	"go.uber.org/zap"
)

// Module is a switcher managed by the extension
type Module interface {
	Name() string
	Enable()
	Disable()
}

// Stores holds one store per schema. UserTheme is nil when the User Themes
// extension is not installed.
type Stores struct {
	Time           *settings.Store
	GtkVariants    *settings.Store
	IconVariants   *settings.Store
	CursorVariants *settings.Store
	ShellVariants  *settings.Store
	Commands       *settings.Store
	HomeAssistant  *settings.Store
	Interface      *settings.Store
	Location       *settings.Store
	UserTheme      *settings.Store
}

// OpenStores opens the extension schemas on extBackend and the system
// schemas on sysBackend. The interface and location schemas fall back to
// extBackend when the desktop does not provide them.
func OpenStores(extBackend, sysBackend settings.Backend, logger *zap.Logger) (*Stores, error) {
	var opened []*settings.Store
	open := func(schema *settings.Schema, backend settings.Backend) (*settings.Store, error) {
		store, err := settings.Open(schema, backend, logger)
		if err != nil {
			return nil, err
		}
		opened = append(opened, store)
		return store, nil
	}
	fail := func(err error) (*Stores, error) {
		for _, store := range opened {
			store.Close()
		}
		return nil, err
	}

	s := &Stores{}
	for _, entry := range []struct {
		schema *settings.Schema
		dst    **settings.Store
	}{
		{settings.TimeSchema, &s.Time},
		{settings.GtkVariantsSchema, &s.GtkVariants},
		{settings.IconVariantsSchema, &s.IconVariants},
		{settings.CursorVariantsSchema, &s.CursorVariants},
		{settings.ShellVariantsSchema, &s.ShellVariants},
		{settings.CommandsSchema, &s.Commands},
		{settings.HomeAssistantSchema, &s.HomeAssistant},
	} {
		store, err := open(entry.schema, extBackend)
		if err != nil {
			return fail(err)
		}
		*entry.dst = store
	}

	for _, entry := range []struct {
		schema *settings.Schema
		dst    **settings.Store
	}{
		{settings.InterfaceSchema, &s.Interface},
		{settings.LocationSchema, &s.Location},
	} {
		store, err := open(entry.schema, sysBackend)
		if err != nil {
			logger.Warn("System settings unavailable, using the settings file",
				zap.String("schema", entry.schema.ID),
				zap.Error(err))
			store, err = open(entry.schema, extBackend)
			if err != nil {
				return fail(err)
			}
		}
		*entry.dst = store
	}

	if store, err := open(settings.UserThemeSchema, sysBackend); err == nil {
		s.UserTheme = store
	} else {
		logger.Info("User Themes settings unavailable, the shell theme will not be switched",
			zap.Error(err))
	}

	return s, nil
}

// Close stops watching every store
func (s *Stores) Close() {
	for _, store := range []*settings.Store{
		s.Time, s.GtkVariants, s.IconVariants, s.CursorVariants, s.ShellVariants,
		s.Commands, s.HomeAssistant, s.Interface, s.Location, s.UserTheme,
	} {
		if store != nil {
			store.Close()
		}
	}
}

// Options holds the collaborators of the extension
type Options struct {
	Stores *Stores

	Clock                clock.Clock
	Locator              timer.LocationProvider
	Keybindings          timer.KeybindingRegistrar
	Notifier             timer.Notifier
	OpenPrefs            func()
	OpenLocationSettings func()
	Spawner              switcher.Spawner

	// HomeAssistant is optional
	HomeAssistant       ha.HAClient
	HomeAssistantEntity string

	Logger *zap.Logger
}

// Extension is the timer followed by the switchers
type Extension struct {
	timer   *timer.Timer
	modules []Module
	logger  *zap.Logger
	enabled bool
}

// New builds the timer and the switchers in their enable order
func New(opts Options) (*Extension, error) {
	if opts.Stores == nil || opts.Stores.Time == nil || opts.Stores.Interface == nil {
		return nil, fmt.Errorf("time and interface settings are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	spawner := opts.Spawner
	if spawner == nil {
		spawner = switcher.NewShellSpawner(logger)
	}
	s := opts.Stores

	t := timer.New(timer.Options{
		Settings:             s.Time,
		Interface:            s.Interface,
		Location:             s.Location,
		Clock:                opts.Clock,
		Locator:              opts.Locator,
		Keybindings:          opts.Keybindings,
		Notifier:             opts.Notifier,
		OpenPrefs:            opts.OpenPrefs,
		OpenLocationSettings: opts.OpenLocationSettings,
		Logger:               logger,
	})

	modules := []Module{
		switcher.NewGtkThemeSwitcher(t, s.GtkVariants, s.Interface, logger),
		switcher.NewIconThemeSwitcher(t, s.IconVariants, s.Interface, logger),
		switcher.NewShellThemeSwitcher(t, s.ShellVariants, s.UserTheme, logger),
		switcher.NewCursorThemeSwitcher(t, s.CursorVariants, s.Interface, logger),
		switcher.NewCommandSwitcher(t, s.Commands, spawner, logger),
	}
	if opts.HomeAssistant != nil {
		modules = append(modules, switcher.NewHomeAssistantSwitcher(t, s.HomeAssistant, opts.HomeAssistant, opts.HomeAssistantEntity, logger))
	}

	return &Extension{
		timer:   t,
		modules: modules,
		logger:  logger.Named("extension"),
	}, nil
}

// Timer returns the timer
func (e *Extension) Timer() *timer.Timer {
	return e.timer
}

// Modules returns the switchers in enable order
func (e *Extension) Modules() []Module {
	return e.modules
}

// Enable enables the timer then every switcher
func (e *Extension) Enable(ctx context.Context) error {
	if e.enabled {
		return nil
	}
	e.logger.Debug("Enabling extension...")

	if err := e.timer.Enable(ctx); err != nil {
		return fmt.Errorf("failed to enable timer: %w", err)
	}
	for _, m := range e.modules {
		m.Enable()
	}
	e.enabled = true

	e.logger.Info("Extension enabled", zap.Int("switchers", len(e.modules)))
	return nil
}

// Disable disables the timer then every switcher, in the enable order
func (e *Extension) Disable() {
	if !e.enabled {
		return
	}
	e.logger.Debug("Disabling extension...")

	e.timer.Disable()
	for _, m := range e.modules {
		m.Disable()
	}
	e.enabled = false

	e.logger.Info("Extension disabled")
}

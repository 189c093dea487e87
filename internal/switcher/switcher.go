// Package switcher applies the timer state to the desktop: themes, commands
// and Home Assistant.
package switcher

import (
	"sync"

	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/timer"
	"nightthemeswitcher/internal/timestate"

	"go.uber.org/zap"
)

// StateSource is the timer as seen by the switchers
type StateSource interface {
	State() timestate.State
	Subscribe(handler timer.StateHandler) timer.Subscription
}

// Applier reacts to a state change
type Applier interface {
	Apply(state timestate.State)
}

// Connector is implemented by appliers that need their own subscriptions
// while switching is enabled
type Connector interface {
	Connect()
	Disconnect()
}

// Switcher calls its applier with each state the timer switches to, as long
// as the `enabled` key of its settings is true
type Switcher struct {
	name     string
	source   StateSource
	settings *settings.Store
	applier  Applier
	logger   *zap.Logger

	mu         sync.Mutex
	generation uint64
	statusSub  settings.Subscription
	timerSub   timer.Subscription
	connected  bool
	applied    timestate.State
}

// New creates a switcher. settings must hold an `enabled` key.
func New(name string, source StateSource, store *settings.Store, applier Applier, logger *zap.Logger) *Switcher {
	return &Switcher{
		name:     name,
		source:   source,
		settings: store,
		applier:  applier,
		logger:   logger.Named("switcher").With(zap.String("switcher", name)),
	}
}

// Name returns the switcher name
func (s *Switcher) Name() string {
	return s.name
}

// Enable watches the `enabled` key and, when set, connects to the timer and
// applies the current state
func (s *Switcher) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enableLocked()
}

// Disable disconnects from the timer and stops watching the settings
func (s *Switcher) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disableLocked()
}

func (s *Switcher) enableLocked() {
	s.logger.Debug("Enabling switcher...")
	s.generation++
	gen := s.generation

	sub, err := s.settings.Subscribe(settings.KeyEnabled, func(string, interface{}, interface{}) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if gen != s.generation {
			return
		}
		enabled, _ := s.settings.GetBool(settings.KeyEnabled)
		s.logger.Info("Switching status changed", zap.Bool("enabled", enabled))
		s.disableLocked()
		s.enableLocked()
	})
	if err != nil {
		s.logger.Warn("Failed to watch switching status", zap.Error(err))
	} else {
		s.statusSub = sub
	}

	if enabled, _ := s.settings.GetBool(settings.KeyEnabled); enabled {
		if connector, ok := s.applier.(Connector); ok {
			connector.Connect()
			s.connected = true
		}
		s.timerSub = s.source.Subscribe(func(state timestate.State) {
			s.mu.Lock()
			defer s.mu.Unlock()

			if gen != s.generation {
				return
			}
			s.applyLocked(state)
		})
		s.applied = timestate.Unknown
		s.applyLocked(s.source.State())
	}
	s.logger.Debug("Switcher enabled")
}

func (s *Switcher) disableLocked() {
	s.logger.Debug("Disabling switcher...")
	s.generation++

	if s.timerSub != nil {
		s.timerSub.Unsubscribe()
		s.timerSub = nil
	}
	if s.connected {
		s.applier.(Connector).Disconnect()
		s.connected = false
	}
	if s.statusSub != nil {
		s.statusSub.Unsubscribe()
		s.statusSub = nil
	}
	s.logger.Debug("Switcher disabled")
}

// applyLocked applies a state the timer switched to. The timer delivers its
// states in order; one already applied, such as the state read on enable and
// then notified, is not applied again.
func (s *Switcher) applyLocked(state timestate.State) {
	if state == timestate.Unknown || state == s.applied {
		return
	}
	s.applied = state
	s.applier.Apply(state)
}

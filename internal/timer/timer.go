// Package timer decides whether it is day or night and tells the switchers
// when that changes.
//
// The state comes from a manual schedule or from sun times computed from the
// current location. The user can force the other state with the on-demand
// keybinding or by changing the color scheme; a forced state holds until the
// schedule agrees with it again.
package timer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"nightthemeswitcher/internal/clock"
	"nightthemeswitcher/internal/notify"
	"nightthemeswitcher/internal/schedule"
	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/solar"
	"nightthemeswitcher/internal/timestate"

	"go.uber.org/zap"
)

const (
	// PollInterval is the cadence of state recomputation
	PollInterval = time.Second
	// SuntimesInterval is the cadence of sun times refresh
	SuntimesInterval = time.Hour
)

// ErrAlreadyEnabled is returned by Enable on an enabled timer
var ErrAlreadyEnabled = errors.New("timer already enabled")

// LocationProvider reports the current coordinates. Track may block until a
// first location is known and must return once ctx is cancelled. Updates are
// reported through onUpdate until stop is called.
type LocationProvider interface {
	Track(ctx context.Context, onUpdate func(latitude, longitude float64)) (stop func(), err error)
}

// KeybindingRegistrar binds the on-demand shortcut
type KeybindingRegistrar interface {
	Register(accelerator string, onActivate func()) error
	Unregister(accelerator string)
}

// Notifier shows notifications to the user
type Notifier interface {
	Notify(ctx context.Context, notification notify.Notification) error
}

// StateHandler receives the new state
type StateHandler func(state timestate.State)

// Subscription represents an active state subscription
type Subscription interface {
	Unsubscribe()
}

// Options holds the collaborators of a Timer
type Options struct {
	// Settings is the time schema store
	Settings *settings.Store
	// Interface is the desktop interface store holding color-scheme
	Interface *settings.Store
	// Location is the system location store, optional
	Location *settings.Store

	Clock       clock.Clock
	Locator     LocationProvider
	Keybindings KeybindingRegistrar
	Notifier    Notifier

	// OpenPrefs opens the preferences, offered by the unknown location
	// notification
	OpenPrefs func()
	// OpenLocationSettings opens the system location settings. The
	// notification action is omitted when nil.
	OpenLocationSettings func()

	Logger *zap.Logger
}

// Snapshot is a consistent view of the timer runtime state
type Snapshot struct {
	State          timestate.State `json:"state"`
	Authority      Authority       `json:"authority"`
	LastComputedAt time.Time       `json:"last_computed_at"`
	Suntimes       *solar.Times    `json:"suntimes,omitempty"`
}

// Timer owns the day/night state
type Timer struct {
	settings             *settings.Store
	iface                *settings.Store
	location             *settings.Store
	clock                clock.Clock
	locator              LocationProvider
	keybindings          KeybindingRegistrar
	notifier             Notifier
	openPrefs            func()
	openLocationSettings func()
	logger               *zap.Logger

	// mu serializes every callback: settings changes, ticks, location
	// updates and the keybinding
	mu         sync.Mutex
	enabled    bool
	generation uint64
	parent     context.Context
	cancel     context.CancelFunc

	state          timestate.State
	authority      Authority
	lastComputedAt time.Time
	suntimes       *solar.Times

	keybinding    string
	timeTimer     clock.Timer
	suntimesTimer clock.Timer
	stopLocation  func()
	connections   []settings.Subscription
	advised       bool

	subsMu      sync.RWMutex
	subscribers map[int]StateHandler
	nextSubID   int

	// queue holds the states not yet delivered to the subscribers
	queueMu     sync.Mutex
	queue       []timestate.State
	dispatching bool
}

// New creates a disabled Timer
func New(opts Options) *Timer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := opts.Clock
	if c == nil {
		c = clock.NewRealClock()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	openPrefs := opts.OpenPrefs
	if openPrefs == nil {
		openPrefs = func() {}
	}

	return &Timer{
		settings:             opts.Settings,
		iface:                opts.Interface,
		location:             opts.Location,
		clock:                c,
		locator:              opts.Locator,
		keybindings:          opts.Keybindings,
		notifier:             notifier,
		openPrefs:            openPrefs,
		openLocationSettings: opts.OpenLocationSettings,
		logger:               logger.Named("timer"),
		state:                timestate.Unknown,
		authority:            Automatic,
		subscribers:          make(map[int]StateHandler),
	}
}

// Enable starts tracking the time. Cancelling ctx has the same effect on
// background work as Disable, but the runtime state is kept until Disable.
func (t *Timer) Enable(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enabled {
		return ErrAlreadyEnabled
	}

	t.logger.Debug("Enabling Timer...")
	t.parent = ctx
	t.advised = false
	t.enableLocked()
	t.logger.Info("Timer enabled",
		zap.String("state", string(t.state)),
		zap.String("authority", t.authority.String()))
	return nil
}

// Disable stops every timer, subscription, location request and keybinding,
// then resets the state to Unknown. It is safe to call on a disabled timer.
func (t *Timer) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}

	t.logger.Debug("Disabling Timer...")
	t.disableLocked()
	t.state = timestate.Unknown
	t.authority = Automatic
	t.suntimes = nil
	t.lastComputedAt = time.Time{}
	t.logger.Info("Timer disabled")
}

// State returns the current state
func (t *Timer) State() timestate.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Authority returns who currently decides the state
func (t *Timer) Authority() Authority {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authority
}

// Snapshot returns the runtime state
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := Snapshot{
		State:          t.state,
		Authority:      t.authority,
		LastComputedAt: t.lastComputedAt,
	}
	if t.suntimes != nil {
		times := *t.suntimes
		snapshot.Suntimes = &times
	}
	return snapshot
}

// Toggle forces the opposite of the current state
func (t *Timer) Toggle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}
	t.changeTimeLocked(t.state.Opposite(), true)
}

// Subscribe registers a handler called on every state change. Handlers run
// on a dispatch goroutine, one after the other, and receive the states in the
// order the timer switched to them.
func (t *Timer) Subscribe(handler StateHandler) Subscription {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()

	subID := t.nextSubID
	t.nextSubID++
	t.subscribers[subID] = handler

	return &subscription{timer: t, subID: subID}
}

// SubscriberCount returns the number of state subscribers
func (t *Timer) SubscriberCount() int {
	t.subsMu.RLock()
	defer t.subsMu.RUnlock()
	return len(t.subscribers)
}

type subscription struct {
	timer *Timer
	subID int
}

func (s *subscription) Unsubscribe() {
	s.timer.subsMu.Lock()
	defer s.timer.subsMu.Unlock()
	delete(s.timer.subscribers, s.subID)
}

func (t *Timer) notifySubscribers(state timestate.State) {
	t.queueMu.Lock()
	defer t.queueMu.Unlock()

	t.queue = append(t.queue, state)
	if !t.dispatching {
		t.dispatching = true
		go t.dispatch()
	}
}

// dispatch delivers the queued states until the queue is empty
func (t *Timer) dispatch() {
	for {
		t.queueMu.Lock()
		if len(t.queue) == 0 {
			t.dispatching = false
			t.queueMu.Unlock()
			return
		}
		state := t.queue[0]
		t.queue = t.queue[1:]
		t.queueMu.Unlock()

		for _, handler := range t.handlers() {
			handler(state)
		}
	}
}

// handlers returns the subscribers in subscription order
func (t *Timer) handlers() []StateHandler {
	t.subsMu.RLock()
	defer t.subsMu.RUnlock()

	ids := make([]int, 0, len(t.subscribers))
	for id := range t.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	handlers := make([]StateHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, t.subscribers[id])
	}
	return handlers
}

func (t *Timer) enableLocked() {
	t.generation++
	gen := t.generation
	ctx, cancel := context.WithCancel(t.parent)
	t.cancel = cancel
	t.enabled = true

	manual := t.manualSchedule()

	t.connectSettingsLocked(gen, manual)
	t.trackTimeLocked(gen)
	if manual {
		t.logger.Debug("Using the manual schedule")
	} else {
		t.logger.Debug("Using location")
		t.trackLocationLocked(ctx, gen)
		t.trackSuntimesLocked(gen)
	}
	t.addKeybindingLocked(gen)
	t.changeTimeLocked(t.computeTimeLocked(), false)
}

// disableLocked releases every resource. The generation bump turns callbacks
// already in flight into no-ops.
func (t *Timer) disableLocked() {
	t.removeKeybindingLocked()
	t.untrackSuntimesLocked()
	t.untrackLocationLocked()
	t.untrackTimeLocked()
	t.disconnectSettingsLocked()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.generation++
	t.enabled = false
}

// restartLocked applies a change of time source. The state and authority
// survive the restart.
func (t *Timer) restartLocked() {
	t.logger.Debug("Restarting Timer")
	t.disableLocked()
	t.enableLocked()
}

// changeTimeLocked adopts a new state. Automatic evaluations never override
// a manually set state; one that agrees with it hands control back to the
// schedule.
func (t *Timer) changeTimeLocked(state timestate.State, manual bool) {
	// A manual change to the held state leaves the authority as it is, an
	// override stays in force
	if state == t.state {
		if !manual && t.authority == ManualUntilMatch {
			t.authority = Automatic
			t.logger.Debug("Schedule agrees with the manual state, resuming automatic switching",
				zap.String("state", string(state)))
		}
		return
	}

	if !manual && t.authority == ManualUntilMatch {
		return
	}

	t.state = state
	if manual {
		t.authority = ManualUntilMatch
		t.logger.Info("Time manually set", zap.String("state", string(state)))
	} else {
		t.authority = Automatic
		t.logger.Info("Time changed", zap.String("state", string(state)))
	}

	if err := t.iface.SetString(settings.KeyColorScheme, state.ColorScheme()); err != nil {
		t.logger.Warn("Failed to write color scheme", zap.Error(err))
	}
	t.notifySubscribers(state)
}

// computeTimeLocked resolves the state from the stored schedule. When
// sunrise and sunset are identical the held state is kept.
func (t *Timer) computeTimeLocked() timestate.State {
	sunrise, _ := t.settings.GetDouble(settings.KeySunrise)
	sunset, _ := t.settings.GetDouble(settings.KeySunset)

	now := t.clock.Now()
	t.lastComputedAt = now

	if state, ok := schedule.Resolve(schedule.HourOf(now), sunrise, sunset); ok {
		return state
	}
	if t.state != timestate.Unknown {
		return t.state
	}
	return t.colorSchemeToTime()
}

func (t *Timer) colorSchemeToTime() timestate.State {
	scheme, _ := t.iface.GetString(settings.KeyColorScheme)
	return timestate.FromColorScheme(scheme)
}

func (t *Timer) manualSchedule() bool {
	manual, err := t.settings.GetBool(settings.KeyManualSchedule)
	if err != nil {
		t.logger.Warn("Failed to read manual-schedule", zap.Error(err))
	}
	return manual
}

// connectLocked subscribes to a key. The handler runs under the timer lock
// and only while the generation it was connected in is current.
func (t *Timer) connectLocked(store *settings.Store, key string, gen uint64, handler func()) {
	sub, err := store.Subscribe(key, func(string, interface{}, interface{}) {
		t.mu.Lock()
		defer t.mu.Unlock()

		if gen != t.generation {
			return
		}
		handler()
	})
	if err != nil {
		t.logger.Warn("Failed to connect to setting",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	t.connections = append(t.connections, sub)
}

func (t *Timer) connectSettingsLocked(gen uint64, manual bool) {
	t.logger.Debug("Connecting Timer to settings...")

	if t.location != nil {
		t.connectLocked(t.location, settings.KeyEnabled, gen, t.restartLocked)
	}
	t.connectLocked(t.settings, settings.KeyManualSchedule, gen, t.restartLocked)
	t.connectLocked(t.settings, settings.KeyOndemandKeybinding, gen, t.onOndemandKeybindingChangedLocked)
	t.connectLocked(t.iface, settings.KeyColorScheme, gen, t.onColorSchemeChangedLocked)
	t.connectLocked(t.settings, settings.KeySunrise, gen, t.onScheduleChangedLocked)
	t.connectLocked(t.settings, settings.KeySunset, gen, t.onScheduleChangedLocked)
	// The offset only matters for computed sun times
	if !manual {
		t.connectLocked(t.settings, settings.KeyOffset, gen, t.updateSuntimesLocked)
	}
}

func (t *Timer) disconnectSettingsLocked() {
	for _, sub := range t.connections {
		sub.Unsubscribe()
	}
	t.connections = nil
	t.logger.Debug("Disconnected Timer from settings")
}

func (t *Timer) trackTimeLocked(gen uint64) {
	t.timeTimer = t.clock.Every(PollInterval, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if gen != t.generation {
			return
		}
		t.changeTimeLocked(t.computeTimeLocked(), false)
	})
}

func (t *Timer) untrackTimeLocked() {
	if t.timeTimer != nil {
		t.timeTimer.Stop()
		t.timeTimer = nil
	}
}

func (t *Timer) trackSuntimesLocked(gen uint64) {
	t.logger.Debug("Regularly updating sun times")
	t.suntimesTimer = t.clock.Every(SuntimesInterval, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if gen != t.generation {
			return
		}
		t.updateSuntimesLocked()
	})
}

func (t *Timer) untrackSuntimesLocked() {
	if t.suntimesTimer != nil {
		t.suntimesTimer.Stop()
		t.suntimesTimer = nil
	}
}

func (t *Timer) addKeybindingLocked(gen uint64) {
	accelerator, _ := t.settings.GetString(settings.KeyOndemandKeybinding)
	if accelerator == "" || t.keybindings == nil {
		return
	}

	err := t.keybindings.Register(accelerator, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if gen != t.generation {
			return
		}
		t.changeTimeLocked(t.state.Opposite(), true)
	})
	if err != nil {
		t.logger.Warn("Failed to add keybinding",
			zap.String("accelerator", accelerator),
			zap.Error(err))
		return
	}
	t.keybinding = accelerator
}

func (t *Timer) removeKeybindingLocked() {
	if t.keybinding == "" {
		return
	}
	t.keybindings.Unregister(t.keybinding)
	t.keybinding = ""
}

func (t *Timer) onOndemandKeybindingChangedLocked() {
	t.removeKeybindingLocked()
	t.addKeybindingLocked(t.generation)
}

// onColorSchemeChangedLocked reads the current value rather than the one
// carried by the notification, which may be older than our last write
func (t *Timer) onColorSchemeChangedLocked() {
	t.changeTimeLocked(t.colorSchemeToTime(), true)
}

func (t *Timer) onScheduleChangedLocked() {
	t.changeTimeLocked(t.computeTimeLocked(), false)
}

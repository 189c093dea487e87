package timer

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"nightthemeswitcher/internal/clock"
	"nightthemeswitcher/internal/location"
	"nightthemeswitcher/internal/notify"
	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/timestate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var cest = time.FixedZone("CEST", 2*3600)

var paris = settings.Point{Latitude: 48.85, Longitude: 2.35}

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 21, hour, minute, 0, 0, cest)
}

type fakeRegistrar struct {
	mu          sync.Mutex
	registered  map[string]func()
	registers   int
	unregisters int
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: make(map[string]func())}
}

func (r *fakeRegistrar) Register(accelerator string, onActivate func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[accelerator] = onActivate
	r.registers++
	return nil
}

func (r *fakeRegistrar) Unregister(accelerator string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, accelerator)
	r.unregisters++
}

func (r *fakeRegistrar) callback(accelerator string) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered[accelerator]
}

func (r *fakeRegistrar) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registered)
}

func (r *fakeRegistrar) registerCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registers
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, notification notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *fakeNotifier) first() notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notifications[0]
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notifications)
}

// blockingLocator never answers until the request is cancelled
type blockingLocator struct {
	cancelled chan struct{}
}

func (l *blockingLocator) Track(ctx context.Context, onUpdate func(latitude, longitude float64)) (func(), error) {
	<-ctx.Done()
	close(l.cancelled)
	return nil, ctx.Err()
}

// stallingNotifier holds every notification until released
type stallingNotifier struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (n *stallingNotifier) Notify(ctx context.Context, notification notify.Notification) error {
	n.once.Do(func() { close(n.entered) })
	select {
	case <-n.release:
	case <-ctx.Done():
	}
	return nil
}

type fixture struct {
	timer        *Timer
	clock        *clock.MockClock
	timeBackend  *settings.MemoryBackend
	ifaceBackend *settings.MemoryBackend
	locBackend   *settings.MemoryBackend
	timeStore    *settings.Store
	ifaceStore   *settings.Store
	locStore     *settings.Store
	keys         *fakeRegistrar
	notifier     *fakeNotifier
	prefsOpened  chan struct{}
}

type fixtureOption func(f *fixture, opts *Options)

func withLocator(locator LocationProvider) fixtureOption {
	return func(f *fixture, opts *Options) {
		opts.Locator = locator
	}
}

// newFixture creates a timer whose time settings are seeded with values
func newFixture(t *testing.T, now time.Time, values map[string]interface{}, options ...fixtureOption) *fixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	f := &fixture{
		clock:        clock.NewMockClock(now),
		timeBackend:  settings.NewMemoryBackend(),
		ifaceBackend: settings.NewMemoryBackend(),
		locBackend:   settings.NewMemoryBackend(),
		keys:         newFakeRegistrar(),
		notifier:     &fakeNotifier{},
		prefsOpened:  make(chan struct{}, 1),
	}
	for key, value := range values {
		if key == settings.KeyColorScheme {
			f.ifaceBackend.Store(settings.InterfaceSchema, key, value)
			continue
		}
		f.timeBackend.Store(settings.TimeSchema, key, value)
	}

	var err error
	f.timeStore, err = settings.Open(settings.TimeSchema, f.timeBackend, logger)
	require.NoError(t, err)
	f.ifaceStore, err = settings.Open(settings.InterfaceSchema, f.ifaceBackend, logger)
	require.NoError(t, err)
	f.locStore, err = settings.Open(settings.LocationSchema, f.locBackend, logger)
	require.NoError(t, err)

	opts := Options{
		Settings:    f.timeStore,
		Interface:   f.ifaceStore,
		Location:    f.locStore,
		Clock:       f.clock,
		Locator:     location.Static{Latitude: paris.Latitude, Longitude: paris.Longitude},
		Keybindings: f.keys,
		Notifier:    f.notifier,
		OpenPrefs: func() {
			f.prefsOpened <- struct{}{}
		},
		Logger: logger,
	}
	for _, option := range options {
		option(f, &opts)
	}

	f.timer = New(opts)
	t.Cleanup(func() {
		f.timer.Disable()
		f.timeStore.Close()
		f.ifaceStore.Close()
		f.locStore.Close()
	})
	return f
}

func manualSchedule(sunrise, sunset float64) map[string]interface{} {
	return map[string]interface{}{
		settings.KeyManualSchedule: true,
		settings.KeySunrise:        sunrise,
		settings.KeySunset:         sunset,
	}
}

func (f *fixture) colorScheme() string {
	scheme, _ := f.ifaceStore.GetString(settings.KeyColorScheme)
	return scheme
}

func TestTimer_ManualSchedule(t *testing.T) {
	f := newFixture(t, at(6, 0), manualSchedule(7, 19))

	require.NoError(t, f.timer.Enable(context.Background()))
	assert.Equal(t, timestate.Night, f.timer.State())
	assert.Equal(t, Automatic, f.timer.Authority())
	assert.Equal(t, timestate.ColorSchemePreferDark, f.colorScheme())

	f.clock.Set(at(8, 0))
	assert.Equal(t, timestate.Day, f.timer.State())
	assert.Equal(t, timestate.ColorSchemeDefault, f.colorScheme())

	f.clock.Set(at(19, 0))
	assert.Equal(t, timestate.Night, f.timer.State(), "sunset is exclusive")
}

func TestTimer_ManualScheduleIgnoresLocation(t *testing.T) {
	f := newFixture(t, at(12, 0), manualSchedule(7, 19))

	require.NoError(t, f.timer.Enable(context.Background()))

	// Only the poll runs, no sun times refresh
	assert.Equal(t, 1, f.clock.Pending())

	time.Sleep(50 * time.Millisecond)
	location, _ := f.timeStore.GetPoint(settings.KeyLocation)
	assert.Equal(t, settings.UnknownLocation, location)
	sunrise, _ := f.timeStore.GetDouble(settings.KeySunrise)
	assert.Equal(t, 7.0, sunrise)
}

func TestTimer_WrapAroundSchedule(t *testing.T) {
	f := newFixture(t, at(23, 0), manualSchedule(22, 2))

	require.NoError(t, f.timer.Enable(context.Background()))
	assert.Equal(t, timestate.Day, f.timer.State())

	f.clock.Set(at(23, 0).Add(3 * time.Hour))
	assert.Equal(t, timestate.Night, f.timer.State())
}

func TestTimer_KeybindingOverrideHoldsUntilScheduleAgrees(t *testing.T) {
	values := manualSchedule(7, 19)
	values[settings.KeyOndemandKeybinding] = "<Super>t"
	f := newFixture(t, at(12, 0), values)

	require.NoError(t, f.timer.Enable(context.Background()))
	require.Equal(t, timestate.Day, f.timer.State())

	toggle := f.keys.callback("<Super>t")
	require.NotNil(t, toggle)

	toggle()
	assert.Equal(t, timestate.Night, f.timer.State())
	assert.Equal(t, ManualUntilMatch, f.timer.Authority())
	assert.Equal(t, timestate.ColorSchemePreferDark, f.colorScheme())

	// Still inside the day window: the override holds
	f.clock.Set(at(15, 0))
	assert.Equal(t, timestate.Night, f.timer.State())
	assert.Equal(t, ManualUntilMatch, f.timer.Authority())

	// The schedule reaches night: the override clears silently
	f.clock.Set(at(19, 30))
	assert.Equal(t, timestate.Night, f.timer.State())
	assert.Equal(t, Automatic, f.timer.Authority())

	// Automatic switching is back
	f.clock.Set(at(7, 30).Add(24 * time.Hour))
	assert.Equal(t, timestate.Day, f.timer.State())
	assert.Equal(t, Automatic, f.timer.Authority())
}

func TestTimer_ToggleTwiceReturnsToScheduleState(t *testing.T) {
	f := newFixture(t, at(12, 0), manualSchedule(7, 19))

	require.NoError(t, f.timer.Enable(context.Background()))

	f.timer.Toggle()
	assert.Equal(t, timestate.Night, f.timer.State())
	f.timer.Toggle()
	assert.Equal(t, timestate.Day, f.timer.State())
	assert.Equal(t, ManualUntilMatch, f.timer.Authority())

	// Next tick agrees with the forced state and re-arms the schedule
	f.clock.Advance(PollInterval)
	assert.Equal(t, Automatic, f.timer.Authority())
}

func TestTimer_ExternalColorSchemeChange(t *testing.T) {
	f := newFixture(t, at(12, 0), manualSchedule(7, 19))

	require.NoError(t, f.timer.Enable(context.Background()))
	require.Equal(t, timestate.Day, f.timer.State())

	f.ifaceBackend.Push(settings.InterfaceSchema, settings.KeyColorScheme, timestate.ColorSchemePreferDark)

	assert.Eventually(t, func() bool {
		return f.timer.State() == timestate.Night && f.timer.Authority() == ManualUntilMatch
	}, time.Second, 10*time.Millisecond)

	f.clock.Advance(10 * PollInterval)
	assert.Equal(t, timestate.Night, f.timer.State(), "schedule does not override the user")
}

func TestTimer_OwnColorSchemeWriteKeepsAuthority(t *testing.T) {
	f := newFixture(t, at(12, 0), manualSchedule(7, 19))

	require.NoError(t, f.timer.Enable(context.Background()))
	f.clock.Set(at(20, 0))
	require.Equal(t, timestate.Night, f.timer.State())

	// Give the color-scheme echo time to come back
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Automatic, f.timer.Authority())
}

func TestTimer_DegenerateScheduleKeepsState(t *testing.T) {
	values := manualSchedule(6, 6)
	values[settings.KeyColorScheme] = timestate.ColorSchemePreferDark
	f := newFixture(t, at(12, 0), values)

	require.NoError(t, f.timer.Enable(context.Background()))
	assert.Equal(t, timestate.Night, f.timer.State(), "falls back to the color scheme")

	f.timer.Toggle()
	require.Equal(t, timestate.Day, f.timer.State())

	// The held state is the answer, which re-arms the schedule
	f.clock.Advance(PollInterval)
	assert.Equal(t, timestate.Day, f.timer.State())
	assert.Equal(t, Automatic, f.timer.Authority())
}

func TestTimer_ScheduleEditRecomputesImmediately(t *testing.T) {
	f := newFixture(t, at(12, 0), manualSchedule(7, 19))

	require.NoError(t, f.timer.Enable(context.Background()))
	require.Equal(t, timestate.Day, f.timer.State())

	require.NoError(t, f.timeStore.SetDouble(settings.KeySunset, 11))

	assert.Eventually(t, func() bool {
		return f.timer.State() == timestate.Night
	}, time.Second, 10*time.Millisecond)
}

func TestTimer_LocationUpdateComputesSuntimes(t *testing.T) {
	f := newFixture(t, at(12, 0), nil)

	require.NoError(t, f.timer.Enable(context.Background()))

	assert.Eventually(t, func() bool {
		location, _ := f.timeStore.GetPoint(settings.KeyLocation)
		return location == paris
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return f.timer.Snapshot().Suntimes != nil
	}, time.Second, 10*time.Millisecond)

	sunrise, _ := f.timeStore.GetDouble(settings.KeySunrise)
	sunset, _ := f.timeStore.GetDouble(settings.KeySunset)
	assert.InDelta(t, 5.8, sunrise, 0.2)
	assert.InDelta(t, 21.95, sunset, 0.2)
	assert.Equal(t, timestate.Day, f.timer.State())

	// Poll and hourly refresh
	assert.Equal(t, 2, f.clock.Pending())

	f.clock.Set(at(23, 0))
	assert.Equal(t, timestate.Night, f.timer.State())
}

func TestTimer_OffsetChangeUpdatesSuntimes(t *testing.T) {
	f := newFixture(t, at(12, 0), nil)

	require.NoError(t, f.timer.Enable(context.Background()))
	require.Eventually(t, func() bool {
		return f.timer.Snapshot().Suntimes != nil
	}, time.Second, 10*time.Millisecond)
	before := *f.timer.Snapshot().Suntimes

	require.NoError(t, f.timeStore.SetDouble(settings.KeyOffset, 1))

	assert.Eventually(t, func() bool {
		sunrise, _ := f.timeStore.GetDouble(settings.KeySunrise)
		sunset, _ := f.timeStore.GetDouble(settings.KeySunset)
		return math.Abs(sunrise-(before.Sunrise+1)) < 0.01 && math.Abs(sunset-(before.Sunset-1)) < 0.01
	}, time.Second, 10*time.Millisecond)
}

func TestTimer_LocationFailureUsesStoredLocation(t *testing.T) {
	f := newFixture(t, at(12, 0), map[string]interface{}{
		settings.KeyLocation: paris,
	}, withLocator(location.Unavailable{}))

	require.NoError(t, f.timer.Enable(context.Background()))

	assert.Eventually(t, func() bool {
		sunrise, _ := f.timeStore.GetDouble(settings.KeySunrise)
		return sunrise != 6.0
	}, time.Second, 10*time.Millisecond)

	manual, _ := f.timeStore.GetBool(settings.KeyManualSchedule)
	assert.False(t, manual)
	assert.Equal(t, 0, f.notifier.count())
}

func TestTimer_LocationFailureSwitchesToManualSchedule(t *testing.T) {
	f := newFixture(t, at(12, 0), nil, withLocator(location.Unavailable{}))

	require.NoError(t, f.timer.Enable(context.Background()))

	assert.Eventually(t, func() bool {
		manual, _ := f.timeStore.GetBool(settings.KeyManualSchedule)
		return manual
	}, time.Second, 10*time.Millisecond)

	stored, ok := f.timeBackend.Value(settings.TimeSchema, settings.KeyManualSchedule)
	assert.True(t, ok)
	assert.Equal(t, true, stored, "the fallback is persisted")

	// The restart in manual mode drops the sun times refresh
	assert.Eventually(t, func() bool {
		return f.clock.Pending() == 1
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.notifier.count() == 1
	}, time.Second, 10*time.Millisecond)
	notification := f.notifier.first()
	assert.Equal(t, "Unknown Location", notification.Title)
	assert.Equal(t, "A manual schedule will be used to switch the dark mode.", notification.Body)
	require.Len(t, notification.Actions, 1)
	assert.Equal(t, "Edit Manual Schedule", notification.Actions[0].Label)

	notification.Actions[0].Callback()
	select {
	case <-f.prefsOpened:
	default:
		t.Fatal("action should open the preferences")
	}

	// Another failure in the same enable cycle stays silent
	require.NoError(t, f.timeStore.SetBool(settings.KeyManualSchedule, false))
	assert.Eventually(t, func() bool {
		manual, _ := f.timeStore.GetBool(settings.KeyManualSchedule)
		return manual
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.notifier.count())
}

func TestTimer_LocationSettingsActionWhenAvailable(t *testing.T) {
	opened := make(chan struct{}, 1)
	f := newFixture(t, at(12, 0), nil,
		withLocator(location.Unavailable{}),
		func(f *fixture, opts *Options) {
			opts.OpenLocationSettings = func() { opened <- struct{}{} }
		})

	require.NoError(t, f.timer.Enable(context.Background()))
	require.Eventually(t, func() bool {
		return f.notifier.count() == 1
	}, time.Second, 10*time.Millisecond)

	actions := f.notifier.first().Actions

	require.Len(t, actions, 2)
	assert.Equal(t, "Open Location Settings", actions[1].Label)
	actions[1].Callback()
	assert.Len(t, opened, 1)
}

func TestTimer_DisableCancelsLocationRequest(t *testing.T) {
	locator := &blockingLocator{cancelled: make(chan struct{})}
	f := newFixture(t, at(12, 0), nil, withLocator(locator))

	require.NoError(t, f.timer.Enable(context.Background()))
	f.timer.Disable()

	select {
	case <-locator.cancelled:
	case <-time.After(time.Second):
		t.Fatal("location request should be cancelled")
	}

	// The cancelled request must not demote to the manual schedule
	time.Sleep(50 * time.Millisecond)
	manual, _ := f.timeStore.GetBool(settings.KeyManualSchedule)
	assert.False(t, manual)
	assert.Equal(t, 0, f.notifier.count())
}

func TestTimer_CancelledEnableContextKeepsSettings(t *testing.T) {
	locator := &blockingLocator{cancelled: make(chan struct{})}
	f := newFixture(t, at(12, 0), nil, withLocator(locator))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.timer.Enable(ctx))
	cancel()

	select {
	case <-locator.cancelled:
	case <-time.After(time.Second):
		t.Fatal("location request should be cancelled")
	}

	time.Sleep(50 * time.Millisecond)
	manual, _ := f.timeStore.GetBool(settings.KeyManualSchedule)
	assert.False(t, manual)
	_, stored := f.timeBackend.Value(settings.TimeSchema, settings.KeyManualSchedule)
	assert.False(t, stored)
	assert.Equal(t, 0, f.notifier.count())
}

func TestTimer_AdvisoryDoesNotBlockTheTimer(t *testing.T) {
	notifier := &stallingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	defer close(notifier.release)

	values := map[string]interface{}{settings.KeySunrise: 7.0, settings.KeySunset: 19.0}
	f := newFixture(t, at(12, 0), values, withLocator(location.Unavailable{}),
		func(f *fixture, opts *Options) {
			opts.Notifier = notifier
		})

	require.NoError(t, f.timer.Enable(context.Background()))
	select {
	case <-notifier.entered:
	case <-time.After(time.Second):
		t.Fatal("expected the unknown location advisory")
	}
	require.Eventually(t, func() bool {
		manual, _ := f.timeStore.GetBool(settings.KeyManualSchedule)
		return manual && f.clock.Pending() == 1
	}, time.Second, 10*time.Millisecond)
	// Let the restart in manual mode settle
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, timestate.Day, f.timer.State())

	done := make(chan struct{})
	go func() {
		f.timer.Toggle()
		f.clock.Advance(PollInterval)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer blocked while the notification is pending")
	}
	assert.Equal(t, timestate.Night, f.timer.State())
}

func TestTimer_EnableDisableReleasesEverything(t *testing.T) {
	values := map[string]interface{}{
		settings.KeyOndemandKeybinding: "<Super>t",
	}
	f := newFixture(t, at(12, 0), values)

	require.NoError(t, f.timer.Enable(context.Background()))
	assert.Equal(t, 1, f.keys.count())
	assert.Equal(t, 2, f.clock.Pending())
	assert.NotZero(t, f.timeStore.SubscriberCount())

	f.timer.Disable()

	assert.Equal(t, 0, f.clock.Pending())
	assert.Equal(t, 0, f.timeStore.SubscriberCount())
	assert.Equal(t, 0, f.ifaceStore.SubscriberCount())
	assert.Equal(t, 0, f.locStore.SubscriberCount())
	assert.Equal(t, 0, f.keys.count())
	assert.Equal(t, timestate.Unknown, f.timer.State())
	assert.Equal(t, Automatic, f.timer.Authority())

	// Disabling again is harmless
	f.timer.Disable()
}

func TestTimer_EnableTwice(t *testing.T) {
	f := newFixture(t, at(12, 0), manualSchedule(7, 19))

	require.NoError(t, f.timer.Enable(context.Background()))
	assert.ErrorIs(t, f.timer.Enable(context.Background()), ErrAlreadyEnabled)
}

func TestTimer_StaleKeybindingCallbackIsIgnored(t *testing.T) {
	values := manualSchedule(7, 19)
	values[settings.KeyOndemandKeybinding] = "<Super>t"
	f := newFixture(t, at(12, 0), values)

	require.NoError(t, f.timer.Enable(context.Background()))
	stale := f.keys.callback("<Super>t")
	require.NotNil(t, stale)

	f.timer.Disable()
	require.NoError(t, f.timer.Enable(context.Background()))
	require.Equal(t, timestate.Day, f.timer.State())

	stale()
	assert.Equal(t, timestate.Day, f.timer.State())

	f.keys.callback("<Super>t")()
	assert.Equal(t, timestate.Night, f.timer.State())
}

func TestTimer_KeybindingChangeReregisters(t *testing.T) {
	values := manualSchedule(7, 19)
	values[settings.KeyOndemandKeybinding] = "<Super>t"
	f := newFixture(t, at(12, 0), values)

	require.NoError(t, f.timer.Enable(context.Background()))
	require.NoError(t, f.timeStore.SetString(settings.KeyOndemandKeybinding, "<Super>n"))

	assert.Eventually(t, func() bool {
		return f.keys.callback("<Super>n") != nil && f.keys.callback("<Super>t") == nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.timeStore.SetString(settings.KeyOndemandKeybinding, ""))
	assert.Eventually(t, func() bool {
		return f.keys.count() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTimer_ManualScheduleToggleRestarts(t *testing.T) {
	values := manualSchedule(7, 19)
	values[settings.KeyOndemandKeybinding] = "<Super>t"
	f := newFixture(t, at(12, 0), values)

	require.NoError(t, f.timer.Enable(context.Background()))

	var mu sync.Mutex
	var changes []timestate.State
	f.timer.Subscribe(func(state timestate.State) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, state)
	})

	require.NoError(t, f.timeStore.SetBool(settings.KeyManualSchedule, false))

	assert.Eventually(t, func() bool {
		return f.keys.registerCalls() == 2 && f.clock.Pending() == 2
	}, time.Second, 10*time.Millisecond)

	// The state survives the restart
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, timestate.Day, f.timer.State())
	mu.Lock()
	assert.Empty(t, changes)
	mu.Unlock()
}

func TestTimer_LocationServiceToggleRestarts(t *testing.T) {
	values := manualSchedule(7, 19)
	values[settings.KeyOndemandKeybinding] = "<Super>t"
	f := newFixture(t, at(12, 0), values)

	require.NoError(t, f.timer.Enable(context.Background()))
	require.Equal(t, 1, f.keys.registerCalls())

	f.locBackend.Push(settings.LocationSchema, settings.KeyEnabled, false)

	assert.Eventually(t, func() bool {
		return f.keys.registerCalls() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestTimer_Subscribe(t *testing.T) {
	f := newFixture(t, at(12, 0), manualSchedule(7, 19))

	changes := make(chan timestate.State, 4)
	sub := f.timer.Subscribe(func(state timestate.State) {
		changes <- state
	})
	assert.Equal(t, 1, f.timer.SubscriberCount())

	require.NoError(t, f.timer.Enable(context.Background()))
	select {
	case state := <-changes:
		assert.Equal(t, timestate.Day, state)
	case <-time.After(time.Second):
		t.Fatal("expected initial state notification")
	}

	f.clock.Set(at(20, 0))
	select {
	case state := <-changes:
		assert.Equal(t, timestate.Night, state)
	case <-time.After(time.Second):
		t.Fatal("expected night notification")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, f.timer.SubscriberCount())

	f.timer.Toggle()
	select {
	case state := <-changes:
		t.Fatalf("unexpected notification %s", state)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimer_NotifiesStatesInOrder(t *testing.T) {
	f := newFixture(t, at(12, 0), manualSchedule(7, 19))

	var mu sync.Mutex
	var changes []timestate.State
	f.timer.Subscribe(func(state timestate.State) {
		// slow subscribers must not reorder the states
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, state)
	})

	require.NoError(t, f.timer.Enable(context.Background()))
	f.timer.Toggle()
	f.timer.Toggle()
	f.timer.Toggle()

	expected := []timestate.State{timestate.Day, timestate.Night, timestate.Day, timestate.Night}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == len(expected)
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, expected, changes)
	mu.Unlock()
}

// A manual change to the state already held keeps the authority: an active
// override is not cleared, and an automatic state does not become an
// override.
func TestTimer_ColorSchemeEqualToHeldState(t *testing.T) {
	t.Run("automatic", func(t *testing.T) {
		f := newFixture(t, at(12, 0), manualSchedule(7, 19))
		require.NoError(t, f.timer.Enable(context.Background()))
		require.Equal(t, timestate.Day, f.timer.State())

		f.ifaceBackend.Push(settings.InterfaceSchema, settings.KeyColorScheme, timestate.ColorSchemePreferLight)
		time.Sleep(50 * time.Millisecond)

		assert.Equal(t, timestate.Day, f.timer.State())
		assert.Equal(t, Automatic, f.timer.Authority())
	})

	t.Run("override", func(t *testing.T) {
		f := newFixture(t, at(22, 0), manualSchedule(7, 19))
		require.NoError(t, f.timer.Enable(context.Background()))
		f.timer.Toggle()
		require.Equal(t, timestate.Day, f.timer.State())
		require.Equal(t, ManualUntilMatch, f.timer.Authority())

		f.ifaceBackend.Push(settings.InterfaceSchema, settings.KeyColorScheme, timestate.ColorSchemePreferLight)
		time.Sleep(50 * time.Millisecond)

		assert.Equal(t, timestate.Day, f.timer.State())
		assert.Equal(t, ManualUntilMatch, f.timer.Authority())

		f.clock.Advance(PollInterval)
		assert.Equal(t, timestate.Day, f.timer.State(), "the override still holds")
	})
}

func TestTimer_Snapshot(t *testing.T) {
	f := newFixture(t, at(12, 0), manualSchedule(7, 19))

	require.NoError(t, f.timer.Enable(context.Background()))
	f.clock.Advance(3 * PollInterval)

	snapshot := f.timer.Snapshot()
	assert.Equal(t, timestate.Day, snapshot.State)
	assert.Equal(t, Automatic, snapshot.Authority)
	assert.Equal(t, at(12, 0).Add(3*PollInterval), snapshot.LastComputedAt)
	assert.Nil(t, snapshot.Suntimes)
}

func TestAuthority_String(t *testing.T) {
	assert.Equal(t, "automatic", Automatic.String())
	assert.Equal(t, "manual-until-match", ManualUntilMatch.String())

	data, err := ManualUntilMatch.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"manual-until-match"`, string(data))
}

package timer

import (
	"context"
	"errors"
	"time"

	"nightthemeswitcher/internal/notify"
	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/solar"

	"go.uber.org/zap"
)

// notifyTimeout bounds the advisory notification call
const notifyTimeout = 5 * time.Second

var errNoLocator = errors.New("no location provider")

// trackLocationLocked starts the location request in the background. The
// request is bound to ctx, cancelled on disable.
func (t *Timer) trackLocationLocked(ctx context.Context, gen uint64) {
	t.logger.Debug("Connecting to the location provider...")
	locator := t.locator

	go func() {
		var stop func()
		err := errNoLocator
		if locator != nil {
			stop, err = locator.Track(ctx, func(latitude, longitude float64) {
				t.onLocationChanged(gen, latitude, longitude)
			})
		}

		// A cancelled request says nothing about the location
		if ctx.Err() != nil {
			if stop != nil {
				stop()
			}
			t.logger.Debug("Location request cancelled")
			return
		}

		t.mu.Lock()
		defer t.mu.Unlock()

		if gen != t.generation {
			if stop != nil {
				stop()
			}
			return
		}
		if err != nil {
			t.onLocationFailedLocked(err)
			return
		}
		t.stopLocation = stop
		t.logger.Debug("Connected to the location provider")
	}()
}

func (t *Timer) untrackLocationLocked() {
	if t.stopLocation != nil {
		t.stopLocation()
		t.stopLocation = nil
		t.logger.Debug("Disconnected from the location provider")
	}
}

func (t *Timer) onLocationChanged(gen uint64, latitude, longitude float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation {
		return
	}

	t.logger.Debug("Location has changed",
		zap.Float64("latitude", latitude),
		zap.Float64("longitude", longitude))

	location := settings.Point{Latitude: latitude, Longitude: longitude}
	if err := t.settings.SetPoint(settings.KeyLocation, location); err != nil {
		t.logger.Warn("Failed to store location", zap.Error(err))
	}
	t.updateSuntimesLocked()
}

// onLocationFailedLocked falls back to the last known location, or switches
// to the manual schedule for good when there is none
func (t *Timer) onLocationFailedLocked(err error) {
	location, _ := t.settings.GetPoint(settings.KeyLocation)
	if solar.ValidLocation(location.Latitude, location.Longitude) {
		t.logger.Warn("Unable to retrieve the location, using the last known location instead",
			zap.Float64("latitude", location.Latitude),
			zap.Float64("longitude", location.Longitude),
			zap.Error(err))
		t.updateSuntimesLocked()
		return
	}

	t.logger.Error("Unable to retrieve the location, using the manual schedule times instead",
		zap.Error(err))

	if !t.advised {
		t.advised = true
		go t.sendUnknownLocationNotification()
	}

	if err := t.settings.SetBool(settings.KeyManualSchedule, true); err != nil {
		t.logger.Warn("Failed to enable the manual schedule", zap.Error(err))
	}
}

// sendUnknownLocationNotification runs outside the timer lock, it only reads
// fields set at construction
func (t *Timer) sendUnknownLocationNotification() {
	notification := notify.Notification{
		Title: "Unknown Location",
		Body:  "A manual schedule will be used to switch the dark mode.",
		Icon:  "dialog-information-symbolic",
		Actions: []notify.Action{
			{Label: "Edit Manual Schedule", Callback: t.openPrefs},
		},
		OnActivated: t.openPrefs,
	}
	if t.openLocationSettings != nil {
		notification.Actions = append(notification.Actions, notify.Action{
			Label:    "Open Location Settings",
			Callback: t.openLocationSettings,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := t.notifier.Notify(ctx, notification); err != nil {
		t.logger.Warn("Failed to show notification", zap.Error(err))
	}
}

// updateSuntimesLocked computes the sun times of the stored location, stores
// them and recomputes the state
func (t *Timer) updateSuntimesLocked() {
	location, _ := t.settings.GetPoint(settings.KeyLocation)
	if !solar.ValidLocation(location.Latitude, location.Longitude) {
		return
	}

	t.logger.Debug("Updating sun times...")

	offset, _ := t.settings.GetDouble(settings.KeyOffset)
	times := solar.For(t.clock.Now(), location.Latitude, location.Longitude, offset)

	if err := t.settings.SetDouble(settings.KeySunrise, times.Sunrise); err != nil {
		t.logger.Warn("Failed to store sunrise", zap.Error(err))
	}
	if err := t.settings.SetDouble(settings.KeySunset, times.Sunset); err != nil {
		t.logger.Warn("Failed to store sunset", zap.Error(err))
	}
	t.suntimes = &times

	t.logger.Debug("New sun times",
		zap.Float64("sunrise", times.Sunrise),
		zap.Float64("sunset", times.Sunset))

	t.changeTimeLocked(t.computeTimeLocked(), false)
}

package switcher

import (
	"context"

	"nightthemeswitcher/internal/ha"
	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/timestate"

	"go.uber.org/zap"
)

// HomeAssistantApplier mirrors the state to an input_boolean that is on at
// night
type HomeAssistantApplier struct {
	client ha.HAClient
	entity string
	logger *zap.Logger
}

// NewHomeAssistantSwitcher creates a switcher updating input_boolean.<entity>
func NewHomeAssistantSwitcher(source StateSource, store *settings.Store, client ha.HAClient, entity string, logger *zap.Logger) *Switcher {
	applier := &HomeAssistantApplier{
		client: client,
		entity: entity,
		logger: logger.Named("homeassistant"),
	}
	return New("Home Assistant", source, store, applier, logger)
}

// Apply turns the input_boolean on at night and off at day
func (h *HomeAssistantApplier) Apply(state timestate.State) {
	if state == timestate.Unknown {
		return
	}
	night := state == timestate.Night
	want := "off"
	if night {
		want = "on"
	}

	ctx, cancel := context.WithTimeout(context.Background(), ha.DefaultTimeout)
	defer cancel()

	entityID := "input_boolean." + h.entity
	if current, err := h.client.GetState(ctx, entityID); err == nil && current.State == want {
		h.logger.Debug("Home Assistant already up to date", zap.String("entity", h.entity), zap.Bool("night", night))
		return
	}

	if err := h.client.SetInputBoolean(ctx, h.entity, night); err != nil {
		h.logger.Warn("Failed to update Home Assistant",
			zap.String("entity", h.entity),
			zap.Bool("night", night),
			zap.Error(err))
		return
	}
	h.logger.Debug("Updated Home Assistant", zap.String("entity", h.entity), zap.Bool("night", night))
}

package switcher

import (
	"sync"

	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/timestate"

	"go.uber.org/zap"
)

// ThemeSwitcher writes the day or night variant to a system theme key, and
// records themes the user picks as the variant of the current state
type ThemeSwitcher struct {
	*Switcher

	source   StateSource
	variants *settings.Store
	system   *settings.Store
	themeKey string
	logger   *zap.Logger

	mu      sync.Mutex
	conns   []settings.Subscription
	applied string
}

// NewThemeSwitcher creates a theme switcher. system may be nil when the
// theme settings are not installed, the switcher then only logs.
func NewThemeSwitcher(name string, source StateSource, variants, system *settings.Store, themeKey string, logger *zap.Logger) *ThemeSwitcher {
	t := &ThemeSwitcher{
		source:   source,
		variants: variants,
		system:   system,
		themeKey: themeKey,
		logger:   logger.Named("theme").With(zap.String("switcher", name)),
	}
	t.Switcher = New(name, source, variants, t, logger)
	return t
}

// NewGtkThemeSwitcher switches the GTK theme
func NewGtkThemeSwitcher(source StateSource, variants, iface *settings.Store, logger *zap.Logger) *ThemeSwitcher {
	return NewThemeSwitcher("GTK theme", source, variants, iface, settings.KeyGtkTheme, logger)
}

// NewIconThemeSwitcher switches the icon theme
func NewIconThemeSwitcher(source StateSource, variants, iface *settings.Store, logger *zap.Logger) *ThemeSwitcher {
	return NewThemeSwitcher("Icon theme", source, variants, iface, settings.KeyIconTheme, logger)
}

// NewCursorThemeSwitcher switches the cursor theme
func NewCursorThemeSwitcher(source StateSource, variants, iface *settings.Store, logger *zap.Logger) *ThemeSwitcher {
	return NewThemeSwitcher("Cursor theme", source, variants, iface, settings.KeyCursorTheme, logger)
}

// NewShellThemeSwitcher switches the shell theme through the User Themes
// extension settings, nil when the extension is missing
func NewShellThemeSwitcher(source StateSource, variants, userTheme *settings.Store, logger *zap.Logger) *ThemeSwitcher {
	return NewThemeSwitcher("Shell theme", source, variants, userTheme, settings.KeyThemeName, logger)
}

// Connect watches the variants and the system theme
func (t *ThemeSwitcher) Connect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.Debug("Connecting switcher to settings...")
	t.watch(t.variants, settings.KeyDay, t.onVariantChanged)
	t.watch(t.variants, settings.KeyNight, t.onVariantChanged)
	if t.system != nil {
		t.watch(t.system, t.themeKey, t.onSystemThemeChanged)
	}
}

// Disconnect drops the settings subscriptions
func (t *ThemeSwitcher) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, sub := range t.conns {
		sub.Unsubscribe()
	}
	t.conns = nil
	t.logger.Debug("Disconnected switcher from settings")
}

func (t *ThemeSwitcher) watch(store *settings.Store, key string, handler func()) {
	sub, err := store.Subscribe(key, func(string, interface{}, interface{}) { handler() })
	if err != nil {
		t.logger.Warn("Failed to watch setting", zap.String("key", key), zap.Error(err))
		return
	}
	t.conns = append(t.conns, sub)
}

// Apply writes the variant of state to the system theme
func (t *ThemeSwitcher) Apply(state timestate.State) {
	if state == timestate.Unknown {
		return
	}

	variant, err := t.variants.GetString(string(state))
	if err != nil {
		t.logger.Warn("Failed to read variant", zap.Error(err))
		return
	}

	if t.system == nil {
		t.logger.Debug("No system settings, theme not applied",
			zap.String("state", string(state)),
			zap.String("variant", variant))
		return
	}

	t.logger.Debug("Setting the variant",
		zap.String("state", string(state)),
		zap.String("variant", variant))
	t.mu.Lock()
	t.applied = variant
	t.mu.Unlock()
	if err := t.system.SetString(t.themeKey, variant); err != nil {
		t.logger.Warn("Failed to set theme",
			zap.String("key", t.themeKey),
			zap.String("variant", variant),
			zap.Error(err))
	}
}

func (t *ThemeSwitcher) onVariantChanged() {
	t.Apply(t.source.State())
}

// onSystemThemeChanged stores the theme picked by the user as the variant
// of the current state. Echoes of the last applied variant are skipped.
func (t *ThemeSwitcher) onSystemThemeChanged() {
	state := t.source.State()
	if state == timestate.Unknown || t.system == nil {
		return
	}

	theme, err := t.system.GetString(t.themeKey)
	if err != nil {
		return
	}
	t.mu.Lock()
	own := theme == t.applied
	t.mu.Unlock()
	if own {
		return
	}
	t.logger.Debug("System theme changed", zap.String("theme", theme))

	if err := t.variants.SetString(string(state), theme); err != nil {
		t.logger.Warn("Failed to update variant", zap.Error(err))
	}
}

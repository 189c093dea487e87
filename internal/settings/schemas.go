package settings

// Keys of the time schema
const (
	KeyManualSchedule     = "manual-schedule"
	KeySunrise            = "sunrise"
	KeySunset             = "sunset"
	KeyOffset             = "offset"
	KeyLocation           = "location"
	KeyOndemandKeybinding = "nightthemeswitcher-ondemand-keybinding"
)

// Keys shared by the switcher schemas
const (
	KeyEnabled = "enabled"
	KeyDay     = "day"
	KeyNight   = "night"
)

// Keys of the system schemas
const (
	KeyColorScheme = "color-scheme"
	KeyGtkTheme    = "gtk-theme"
	KeyIconTheme   = "icon-theme"
	KeyCursorTheme = "cursor-theme"
	KeyThemeName   = "name"
)

// UnknownLocation is stored until a location has been found. It is outside
// the valid coordinate range on purpose.
var UnknownLocation = Point{Latitude: 91, Longitude: 181}

// TimeSchema holds the timer configuration
var TimeSchema = &Schema{
	ID:   "org.gnome.shell.extensions.nightthemeswitcher.time",
	Name: "time",
	Keys: []Key{
		{Name: KeyManualSchedule, Type: TypeBool, Default: false},
		{Name: KeySunrise, Type: TypeDouble, Default: 6.0, Min: 0, Max: 24},
		{Name: KeySunset, Type: TypeDouble, Default: 20.0, Min: 0, Max: 24},
		{Name: KeyOffset, Type: TypeDouble, Default: 0.0, Min: -12, Max: 12},
		{Name: KeyLocation, Type: TypePoint, Default: UnknownLocation},
		{Name: KeyOndemandKeybinding, Type: TypeString, Default: ""},
	},
}

func variantsSchema(name string) *Schema {
	return &Schema{
		ID:   "org.gnome.shell.extensions.nightthemeswitcher." + name,
		Name: name,
		Keys: []Key{
			{Name: KeyEnabled, Type: TypeBool, Default: false},
			{Name: KeyDay, Type: TypeString, Default: ""},
			{Name: KeyNight, Type: TypeString, Default: ""},
		},
	}
}

// Variant schemas, one per theme kind
var (
	GtkVariantsSchema    = variantsSchema("gtk-variants")
	IconVariantsSchema   = variantsSchema("icon-variants")
	CursorVariantsSchema = variantsSchema("cursor-variants")
	ShellVariantsSchema  = variantsSchema("shell-variants")
)

// CommandsSchema holds the commands spawned at sunrise and sunset
var CommandsSchema = &Schema{
	ID:   "org.gnome.shell.extensions.nightthemeswitcher.commands",
	Name: "commands",
	Keys: []Key{
		{Name: KeyEnabled, Type: TypeBool, Default: false},
		{Name: KeySunrise, Type: TypeString, Default: ""},
		{Name: KeySunset, Type: TypeString, Default: ""},
	},
}

// HomeAssistantSchema controls mirroring the state to Home Assistant
var HomeAssistantSchema = &Schema{
	ID:   "org.gnome.shell.extensions.nightthemeswitcher.homeassistant",
	Name: "homeassistant",
	Keys: []Key{
		{Name: KeyEnabled, Type: TypeBool, Default: true},
	},
}

// InterfaceSchema is the desktop interface schema
var InterfaceSchema = &Schema{
	ID:   "org.gnome.desktop.interface",
	Name: "interface",
	Keys: []Key{
		{Name: KeyColorScheme, Type: TypeString, Default: "default", Choices: []string{"default", "prefer-dark", "prefer-light"}},
		{Name: KeyGtkTheme, Type: TypeString, Default: "Adwaita"},
		{Name: KeyIconTheme, Type: TypeString, Default: "Adwaita"},
		{Name: KeyCursorTheme, Type: TypeString, Default: "Adwaita"},
	},
}

// LocationSchema is the system location services schema
var LocationSchema = &Schema{
	ID:   "org.gnome.system.location",
	Name: "location",
	Keys: []Key{
		{Name: KeyEnabled, Type: TypeBool, Default: true},
	},
}

// UserThemeSchema belongs to the User Themes shell extension
var UserThemeSchema = &Schema{
	ID:   "org.gnome.shell.extensions.user-theme",
	Name: "user-theme",
	Keys: []Key{
		{Name: KeyThemeName, Type: TypeString, Default: ""},
	},
}

// ExtensionSchemas are owned by this program and live in the settings file
var ExtensionSchemas = []*Schema{
	TimeSchema,
	GtkVariantsSchema,
	IconVariantsSchema,
	CursorVariantsSchema,
	ShellVariantsSchema,
	CommandsSchema,
	HomeAssistantSchema,
}

// SystemSchemas belong to the desktop
var SystemSchemas = []*Schema{
	InterfaceSchema,
	LocationSchema,
	UserThemeSchema,
}

// SchemaByName finds an extension or system schema by its section name
func SchemaByName(name string) *Schema {
	for _, s := range append(append([]*Schema{}, ExtensionSchemas...), SystemSchemas...) {
		if s.Name == name {
			return s
		}
	}
	return nil
}

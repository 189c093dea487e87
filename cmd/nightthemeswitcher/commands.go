package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nightthemeswitcher/internal/keybinding"
	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/solar"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Switch the running instance to the opposite time",
		Long:  "Bind this command to the on-demand shortcut. The forced time holds until the schedule agrees with it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := dbus.ConnectSessionBus()
			if err != nil {
				return fmt.Errorf("failed to connect to session bus: %w", err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			return keybinding.CallToggle(ctx, conn)
		},
	}
}

func newSuntimesCmd() *cobra.Command {
	var (
		latitude  float64
		longitude float64
		date      string
	)
	cmd := &cobra.Command{
		Use:   "suntimes",
		Short: "Print the sunrise and sunset for a location",
		Long:  "Uses the location stored in the settings unless --latitude and --longitude are given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path, err := settingsPath(cfg)
			if err != nil {
				return err
			}
			store, err := settings.Open(settings.TimeSchema, settings.NewFileBackend(path, zap.NewNop()), zap.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()

			point, _ := store.GetPoint(settings.KeyLocation)
			if cmd.Flags().Changed("latitude") {
				point.Latitude = latitude
			}
			if cmd.Flags().Changed("longitude") {
				point.Longitude = longitude
			}
			if !solar.ValidLocation(point.Latitude, point.Longitude) {
				return fmt.Errorf("unknown location, pass --latitude and --longitude")
			}

			now := time.Now()
			if date != "" {
				now, err = time.ParseInLocation("2006-01-02", date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid date: %w", err)
				}
				now = now.Add(12 * time.Hour)
			}
			offset, _ := store.GetDouble(settings.KeyOffset)

			times := solar.For(now, point.Latitude, point.Longitude, offset)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sunrise %s\n", formatHour(times.Sunrise))
			fmt.Fprintf(out, "sunset  %s\n", formatHour(times.Sunset))
			return nil
		},
	}
	cmd.Flags().Float64Var(&latitude, "latitude", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&longitude, "longitude", 0, "longitude in degrees")
	cmd.Flags().StringVar(&date, "date", "", "day to compute, as YYYY-MM-DD (default today)")
	return cmd
}

// formatHour prints a decimal hour as HH:MM
func formatHour(hour float64) string {
	minutes := int(hour*60+0.5) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

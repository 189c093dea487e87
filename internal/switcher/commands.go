package switcher

import (
	"os/exec"

	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/timestate"

	"go.uber.org/zap"
)

// Spawner runs a shell command line without waiting for it
type Spawner interface {
	Spawn(command string) error
}

// ShellSpawner runs commands with sh -c
type ShellSpawner struct {
	logger *zap.Logger
}

// NewShellSpawner creates a spawner running sh
func NewShellSpawner(logger *zap.Logger) *ShellSpawner {
	return &ShellSpawner{logger: logger.Named("spawner")}
}

// Spawn starts the command and reaps it in the background
func (s *ShellSpawner) Spawn(command string) error {
	cmd := exec.Command("sh", "-c", command)
	if err := cmd.Start(); err != nil {
		return err
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			s.logger.Warn("Command failed",
				zap.String("command", command),
				zap.Error(err))
		}
	}()
	return nil
}

// LogSpawner only logs the commands it would run
type LogSpawner struct {
	logger *zap.Logger
}

// NewLogSpawner creates a spawner for read-only mode
func NewLogSpawner(logger *zap.Logger) *LogSpawner {
	return &LogSpawner{logger: logger.Named("spawner")}
}

// Spawn logs the command
func (s *LogSpawner) Spawn(command string) error {
	s.logger.Info("READ-ONLY: Would run command", zap.String("command", command))
	return nil
}

// CommandApplier runs the sunrise command at day and the sunset command at
// night
type CommandApplier struct {
	commands *settings.Store
	spawner  Spawner
	logger   *zap.Logger
}

// NewCommandSwitcher creates the commands switcher
func NewCommandSwitcher(source StateSource, commands *settings.Store, spawner Spawner, logger *zap.Logger) *Switcher {
	applier := &CommandApplier{
		commands: commands,
		spawner:  spawner,
		logger:   logger.Named("commands"),
	}
	return New("Commands", source, commands, applier, logger)
}

// Apply spawns the command configured for state
func (c *CommandApplier) Apply(state timestate.State) {
	var key string
	switch state {
	case timestate.Day:
		key = settings.KeySunrise
	case timestate.Night:
		key = settings.KeySunset
	default:
		return
	}

	command, err := c.commands.GetString(key)
	if err != nil || command == "" {
		return
	}

	c.logger.Debug("Spawning command", zap.String("state", string(state)), zap.String("command", command))
	if err := c.spawner.Spawn(command); err != nil {
		c.logger.Warn("Failed to spawn command",
			zap.String("command", command),
			zap.Error(err))
	}
}

package settings

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Runner executes a gsettings command and returns its standard output
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// Monitor starts a long running gsettings monitor and returns its output
// stream. Closing the stream or cancelling ctx ends the monitor.
type Monitor func(ctx context.Context, args ...string) (io.ReadCloser, error)

// GSettingsBackend reads and writes desktop settings through the gsettings
// command line tool
type GSettingsBackend struct {
	logger  *zap.Logger
	run     Runner
	monitor Monitor
}

// NewGSettingsBackend creates a backend calling the gsettings binary
func NewGSettingsBackend(logger *zap.Logger) *GSettingsBackend {
	return NewGSettingsBackendWith(logger, execRunner, execMonitor)
}

// NewGSettingsBackendWith creates a backend with custom command runners
func NewGSettingsBackendWith(logger *zap.Logger, run Runner, monitor Monitor) *GSettingsBackend {
	return &GSettingsBackend{
		logger:  logger.Named("gsettings"),
		run:     run,
		monitor: monitor,
	}
}

func execRunner(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "gsettings", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("gsettings %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("gsettings %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

type monitorStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (m *monitorStream) Close() error {
	err := m.ReadCloser.Close()
	if m.cmd.Process != nil {
		m.cmd.Process.Kill()
	}
	m.cmd.Wait()
	return err
}

func execMonitor(ctx context.Context, args ...string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "gsettings", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start gsettings monitor: %w", err)
	}
	return &monitorStream{ReadCloser: stdout, cmd: cmd}, nil
}

// Load reads every key of the schema. A schema that is not installed fails.
func (b *GSettingsBackend) Load(schema *Schema) (map[string]interface{}, error) {
	values := make(map[string]interface{})

	for _, key := range schema.Keys {
		out, err := b.run(context.Background(), "get", schema.ID, key.Name)
		if err != nil {
			return nil, err
		}
		value, err := ParseVariant(key.Type, strings.TrimSpace(string(out)))
		if err != nil {
			b.logger.Warn("Failed to parse value",
				zap.String("schema", schema.ID),
				zap.String("key", key.Name),
				zap.Error(err))
			continue
		}
		values[key.Name] = value
	}

	return values, nil
}

// Store writes a value with gsettings set
func (b *GSettingsBackend) Store(schema *Schema, key string, value interface{}) error {
	text, err := FormatVariant(value)
	if err != nil {
		return err
	}
	_, err = b.run(context.Background(), "set", schema.ID, key, text)
	return err
}

// Watch runs gsettings monitor and reports each "key: value" line
func (b *GSettingsBackend) Watch(schema *Schema, onChange func(key string, value interface{})) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := b.monitor(ctx, "monitor", schema.ID)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		scanner := bufio.NewScanner(stream)
		for scanner.Scan() {
			name, text, ok := strings.Cut(scanner.Text(), ": ")
			if !ok {
				continue
			}
			key, ok := schema.Key(name)
			if !ok {
				continue
			}
			value, err := ParseVariant(key.Type, strings.TrimSpace(text))
			if err != nil {
				b.logger.Warn("Failed to parse monitored value",
					zap.String("schema", schema.ID),
					zap.String("key", name),
					zap.Error(err))
				continue
			}
			onChange(name, value)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			stream.Close()
		})
	}, nil
}

// ParseVariant parses the GVariant text format printed by gsettings
func ParseVariant(t Type, text string) (interface{}, error) {
	switch t {
	case TypeBool:
		switch text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", text)

	case TypeDouble:
		return strconv.ParseFloat(text, 64)

	case TypeString:
		return parseString(text)

	case TypePoint:
		inner := strings.TrimSpace(text)
		if !strings.HasPrefix(inner, "(") || !strings.HasSuffix(inner, ")") {
			return nil, fmt.Errorf("invalid point %q", text)
		}
		parts := strings.Split(inner[1:len(inner)-1], ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid point %q", text)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude: %w", err)
		}
		return Point{Latitude: lat, Longitude: lon}, nil

	default:
		return nil, fmt.Errorf("unknown type: %s", t)
	}
}

func parseString(text string) (string, error) {
	if len(text) < 2 {
		return "", fmt.Errorf("invalid string %q", text)
	}
	quote := text[0]
	if (quote != '\'' && quote != '"') || text[len(text)-1] != quote {
		return "", fmt.Errorf("invalid string %q", text)
	}

	var sb strings.Builder
	body := text[1 : len(text)-1]
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
		}
		sb.WriteByte(body[i])
	}
	return sb.String(), nil
}

// FormatVariant formats a value in the GVariant text format
func FormatVariant(value interface{}) (string, error) {
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		text := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsAny(text, ".e") {
			// Integral values would be parsed as int32 by gsettings
			text += ".0"
		}
		return text, nil
	case string:
		escaped := strings.ReplaceAll(v, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `'`, `\'`)
		return "'" + escaped + "'", nil
	case Point:
		lat, _ := FormatVariant(v.Latitude)
		lon, _ := FormatVariant(v.Longitude)
		return "(" + lat + ", " + lon + ")", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}

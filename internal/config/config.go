// Package config loads mtpctl's YAML configuration file.
//
// Every field can be overridden by a command-line flag; the file only
// supplies defaults. A missing file is not an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/luck-mtp/mtp-go/pkg/mtp"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// FileName is the config file name inside the user config directory.
const FileName = "config.yaml"

// Config is the decoded config file.
type Config struct {
	// Device selects the device to connect to. Zero ids match any.
	Device DeviceConfig `yaml:"device"`

	ChunkSize   int           `yaml:"chunk_size"`
	Timeout     time.Duration `yaml:"timeout"`
	BusyPolicy  string        `yaml:"busy_policy"`
	StrictNames bool          `yaml:"strict_names"`

	// Wait is how long to wait for a device to appear, 0 for no wait.
	Wait time.Duration `yaml:"wait"`

	// Simulate names a simulated device fixture instead of USB. "default"
	// selects the built-in fixture.
	Simulate string `yaml:"simulate"`

	ProtocolLog string `yaml:"protocol_log"`
	StateFile   string `yaml:"state_file"`
	LogLevel    string `yaml:"log_level"`
}

// DeviceConfig identifies a device by USB ids.
type DeviceConfig struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
}

// LoadError reports a config file that could not be used.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.File + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ChunkSize:  mtp.DefaultChunkSize,
		Timeout:    transport.DefaultTimeout,
		BusyPolicy: mtp.BusyBlock.String(),
		StateFile:  DefaultStateFile(),
		LogLevel:   "warn",
	}
}

// DefaultPath returns the config file path under the user config
// directory, or "" when there is none.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mtpctl", FileName)
}

// DefaultStateFile returns where mtpctl keeps its state.
func DefaultStateFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mtpctl", "state.json")
}

// Parse decodes a config document over the defaults. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid config", Cause: err}
	}
	return cfg, nil
}

// Load reads the file at path from fsys. A missing file yields Default().
func Load(fsys afero.Fs, path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, err := c.Busy(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must not be negative")
	}
	if c.Timeout < 0 || c.Wait < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// Busy returns the busy policy.
func (c *Config) Busy() (mtp.BusyPolicy, error) {
	switch strings.ToLower(c.BusyPolicy) {
	case "", mtp.BusyBlock.String():
		return mtp.BusyBlock, nil
	case mtp.BusyFailFast.String():
		return mtp.BusyFailFast, nil
	}
	return 0, fmt.Errorf("busy_policy %q: want %q or %q", c.BusyPolicy, mtp.BusyBlock, mtp.BusyFailFast)
}

// Level returns the operational log level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// SessionOptions turns the config into options for mtp.NewManager.
func (c *Config) SessionOptions() []mtp.Option {
	busy, _ := c.Busy()
	opts := []mtp.Option{
		mtp.WithBusyPolicy(busy),
		mtp.WithStrictNames(c.StrictNames),
	}
	if c.ChunkSize > 0 {
		opts = append(opts, mtp.WithChunkSize(c.ChunkSize))
	}
	if c.Timeout > 0 {
		opts = append(opts, mtp.WithTimeout(c.Timeout))
	}
	return opts
}

// ConnectOptions returns the device selection.
func (c *Config) ConnectOptions() mtp.ConnectOptions {
	return mtp.ConnectOptions{VendorID: c.Device.VendorID, ProductID: c.Device.ProductID}
}

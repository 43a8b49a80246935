package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/reflexmaps/internal/utils"
)

const (
	// DefaultSourceURL is the catalog service queried when the state file names none.
	DefaultSourceURL = "http://reflex.abusing.me/api/"

	// StateFileName is the dotfile in the user's home directory holding the sync state.
	StateFileName = ".reflexMaps"

	// DefaultTimeout bounds a whole run. Zero disables the bound.
	DefaultTimeout = 30 * time.Minute
)

var (
	// DefaultMapSubdir is where the game looks for custom maps, relative to the install dir.
	DefaultMapSubdir = filepath.Join("base", "internal", "maps")

	ErrNoStatePath = errors.New("config: state path missing")
	ErrNoMapPath   = errors.New("config: map path missing")
)

// Config holds everything a sync run needs that does not come from the state file.
// SourceURL and MapPath are overrides: when empty, the values stored in the state
// file (or their defaults) are used.
type Config struct {
	StatePath string
	SourceURL string
	MapPath   string

	// DefaultSourceURL and DefaultMapPath seed a fresh state.
	DefaultSourceURL string
	DefaultMapPath   string

	Timeout time.Duration
	DryRun  bool

	LogLevel string
	LogFile  string
}

// Default returns a Config with every field set to its documented default.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		StatePath:        filepath.Join(home, StateFileName),
		DefaultSourceURL: DefaultSourceURL,
		DefaultMapPath:   filepath.Join(utils.ExecutableDir(), DefaultMapSubdir),
		Timeout:          DefaultTimeout,
		LogLevel:         "info",
	}
}

// Validate normalizes paths and checks the urls
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return ErrNoStatePath
	}
	statePath, err := utils.ResolvePath(c.StatePath)
	if err != nil {
		return fmt.Errorf("state path: %w", err)
	}
	c.StatePath = statePath

	if c.DefaultSourceURL == "" {
		c.DefaultSourceURL = DefaultSourceURL
	}
	if err := validateSourceURL(c.DefaultSourceURL); err != nil {
		return fmt.Errorf("default source url: %w", err)
	}
	if c.SourceURL != "" {
		if err := validateSourceURL(c.SourceURL); err != nil {
			return fmt.Errorf("source url: %w", err)
		}
	}

	if c.DefaultMapPath == "" {
		return ErrNoMapPath
	}
	if c.MapPath != "" {
		mapPath, err := utils.ResolvePath(c.MapPath)
		if err != nil {
			return fmt.Errorf("map path: %w", err)
		}
		c.MapPath = mapPath
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %s", c.Timeout)
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	return nil
}

func validateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

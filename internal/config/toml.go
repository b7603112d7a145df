package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sadopc/deskwatch/internal/stats"
)

// FileConfig represents the TOML configuration file. Unset fields keep
// their defaults.
type FileConfig struct {
	Paths      PathsConfig      `toml:"paths"`
	Detector   DetectorConfig   `toml:"detector"`
	Categories []CategoryConfig `toml:"category"`
}

type PathsConfig struct {
	DataDir  string `toml:"data-dir"`
	LogDir   string `toml:"log-dir"`
	Catalog  string `toml:"catalog"`
	Database string `toml:"database"`
	LogFile  string `toml:"log-file"`
}

// DetectorConfig describes the external presence detector. The command
// is split on whitespace and "{device}" in it is replaced by the device
// index. An empty command means presence is toggled by hand.
type DetectorConfig struct {
	Command    string `toml:"command"`
	Device     *int   `toml:"device"`
	Alternate  *int   `toml:"alternate"`
	MaxRetries *int   `toml:"max-retries"`
	Timeout    string `toml:"timeout"`
}

type CategoryConfig struct {
	Name       string  `toml:"name"`
	Keyword    string  `toml:"keyword"`
	WeeklyGoal float64 `toml:"weekly-goal"`
}

// Config is the resolved configuration with defaults applied.
type Config struct {
	DataDir  string
	LogDir   string
	Catalog  string
	Database string
	LogFile  string

	DetectorCommand []string
	Device          int
	Alternate       int
	MaxRetries      int
	SampleTimeout   time.Duration

	Categories []stats.Category
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Resolve applies defaults. dataDir, when not empty, overrides the data
// directory from the file.
func (fc FileConfig) Resolve(dataDir string) (Config, error) {
	c := Config{
		DataDir:       fc.Paths.DataDir,
		Device:        0,
		Alternate:     1,
		MaxRetries:    5,
		SampleTimeout: 2 * time.Second,
	}
	if dataDir != "" {
		c.DataDir = dataDir
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	c.DataDir = expandHome(c.DataDir)
	c.LogDir = pathOr(fc.Paths.LogDir, c.DataDir, "logs")
	c.Catalog = pathOr(fc.Paths.Catalog, c.DataDir, "todo.json")
	c.Database = pathOr(fc.Paths.Database, c.DataDir, appName+".db")
	c.LogFile = pathOr(fc.Paths.LogFile, c.DataDir, appName+".log")

	d := fc.Detector
	c.DetectorCommand = strings.Fields(d.Command)
	if d.Device != nil {
		c.Device = *d.Device
	}
	if d.Alternate != nil {
		c.Alternate = *d.Alternate
	}
	if d.MaxRetries != nil {
		if *d.MaxRetries <= 0 {
			return c, fmt.Errorf("detector max-retries must be positive, got %d", *d.MaxRetries)
		}
		c.MaxRetries = *d.MaxRetries
	}
	if d.Timeout != "" {
		t, err := time.ParseDuration(d.Timeout)
		if err != nil || t <= 0 {
			return c, fmt.Errorf("detector timeout %q: invalid duration", d.Timeout)
		}
		c.SampleTimeout = t
	}

	if len(fc.Categories) == 0 {
		c.Categories = stats.DefaultCategories()
	}
	for _, cc := range fc.Categories {
		if cc.Name == "" {
			return c, fmt.Errorf("category without name")
		}
		kw := cc.Keyword
		if kw == "" {
			kw = strings.ToLower(cc.Name)
		}
		c.Categories = append(c.Categories, stats.Category{
			Name:       cc.Name,
			Keyword:    kw,
			WeeklyGoal: time.Duration(cc.WeeklyGoal * float64(time.Hour)),
		})
	}
	return c, nil
}

// Load reads path and resolves it.
func Load(path, dataDir string) (Config, error) {
	fc, err := LoadConfig(path)
	if err != nil {
		return Config{}, err
	}
	return fc.Resolve(dataDir)
}

// Example renders a config file holding the defaults.
func Example() (string, error) {
	device, alternate, retries := 0, 1, 5
	fc := FileConfig{
		Paths: PathsConfig{DataDir: DefaultDataDir()},
		Detector: DetectorConfig{
			Device:     &device,
			Alternate:  &alternate,
			MaxRetries: &retries,
			Timeout:    "2s",
		},
	}
	for _, c := range stats.DefaultCategories() {
		fc.Categories = append(fc.Categories, CategoryConfig{Name: c.Name, Keyword: c.Keyword, WeeklyGoal: c.WeeklyGoal.Hours()})
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fc); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.String(), nil
}

// WriteExample writes the default config to path unless a file is
// already there.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	body, err := Example()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(body), 0o644)
}

func pathOr(p, dir, name string) string {
	if p == "" {
		return filepath.Join(dir, name)
	}
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Package config loads the schedstore configuration file.
//
// The file is YAML. Missing fields take their defaults, then the result is
// checked against an embedded CUE schema. Relative paths are resolved against
// data_dir.
package config

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// ErrInvalidConfig marks every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Log backends.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// Config is the schedstore configuration.
type Config struct {
	DataDir  string   `yaml:"data_dir" json:"data_dir"`
	LogLevel string   `yaml:"log_level" json:"log_level"`
	Log      Log      `yaml:"log" json:"log"`
	Entities Entities `yaml:"entities" json:"entities"`
	Snapshot Snapshot `yaml:"snapshot" json:"snapshot"`
	Metrics  Metrics  `yaml:"metrics" json:"metrics"`
}

// Log selects and locates the replicated log.
type Log struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// Entities locates the entity database.
type Entities struct {
	Path string `yaml:"path" json:"path"`
}

// Snapshot controls snapshotting. Zero EveryWrites and an empty Interval
// disable automatic snapshots.
type Snapshot struct {
	Path        string `yaml:"path" json:"path"`
	EveryWrites int    `yaml:"every_writes" json:"every_writes"`
	Interval    string `yaml:"interval" json:"interval"`
}

// Metrics configures the metrics listener of the serve command.
type Metrics struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir:  ".",
		LogLevel: "info",
		Log: Log{
			Backend: BackendSQLite,
			Path:    "log.db",
		},
		Entities: Entities{Path: "entities.db"},
		Snapshot: Snapshot{Path: "snapshot.json"},
		Metrics:  Metrics{Addr: ":9464"},
	}
}

// Load reads the file at path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown fields
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Mark(errors.Wrap(err, "parse config"), ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks c against the schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return errors.Wrap(err, "compile config schema")
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return errors.Mark(errors.Wrap(err, "validate config"), ErrInvalidConfig)
	}
	if _, err := c.SnapshotInterval(); err != nil {
		return err
	}
	return nil
}

// SnapshotInterval parses Snapshot.Interval. Empty means zero.
func (c Config) SnapshotInterval() (time.Duration, error) {
	if c.Snapshot.Interval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Snapshot.Interval)
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "snapshot.interval"), ErrInvalidConfig)
	}
	return d, nil
}

// Resolve returns p relative to DataDir unless it is absolute.
func (c Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// LogPath returns the resolved log location.
func (c Config) LogPath() string { return c.Resolve(c.Log.Path) }

// EntitiesPath returns the resolved entity database location.
func (c Config) EntitiesPath() string { return c.Resolve(c.Entities.Path) }

// SnapshotPath returns the resolved snapshot file location.
func (c Config) SnapshotPath() string { return c.Resolve(c.Snapshot.Path) }

// Package config loads the deployment configuration of a project from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/deploy"
	"github.com/getpup/pupdeploy/pkg/migrations"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "deploy.yaml"

// Environment variables that override secrets from the file.
const (
	EnvDatabaseUser     = "PUPDEPLOY_DB_USER"
	EnvDatabasePassword = "PUPDEPLOY_DB_PASSWORD"
	EnvRedisPassword    = "PUPDEPLOY_REDIS_PASSWORD"
)

// Database modes.
const (
	// ModeCLI runs the database client over ssh on the control host.
	ModeCLI = "cli"

	// ModeDirect connects to the database from the local machine.
	ModeDirect = "direct"
)

// File is the deployment configuration of one project.
type File struct {
	Project string   `yaml:"project" validate:"required"`
	Target  string   `yaml:"target"`
	Hosts   []string `yaml:"hosts" validate:"required,min=1,unique,dive,required"`

	RemoteDir string `yaml:"remote_dir" validate:"required"`
	LocalDir  string `yaml:"local_dir"`
	Symlink   string `yaml:"symlink"`

	// Timezone names release and patch timestamps, such as "Europe/Berlin" (default: local).
	Timezone string `yaml:"timezone" validate:"omitempty,timezone"`

	Concurrency    int           `yaml:"concurrency" validate:"gte=0"`
	CommandTimeout time.Duration `yaml:"command_timeout" validate:"gte=0"`
	SyncTimeout    time.Duration `yaml:"sync_timeout" validate:"gte=0"`

	RsyncExcludes []string `yaml:"rsync_excludes"`
	DataDirs      []string `yaml:"data_dirs" validate:"dive,required"`
	DataDirPrefix string   `yaml:"data_dir_prefix"`
	TargetFiles   []string `yaml:"target_files" validate:"dive,required"`

	SSH      SSH       `yaml:"ssh"`
	Workers  Workers   `yaml:"workers"`
	Database *Database `yaml:"database"`
	Cache    Cache     `yaml:"cache"`
	Redis    *Redis    `yaml:"redis"`
	Metrics  Metrics   `yaml:"metrics"`
	Log      Log       `yaml:"log"`
}

// SSH configures the remote transport.
type SSH struct {
	User      string   `yaml:"user"`
	Path      string   `yaml:"path"`
	Options   []string `yaml:"options"`
	RsyncPath string   `yaml:"rsync_path"`
}

// Workers configures the worker restarts after activation.
type Workers struct {
	Restarter string         `yaml:"restarter"`
	Servers   []WorkerServer `yaml:"servers" validate:"dive"`
	Functions []string       `yaml:"functions" validate:"dive,required"`
}

// WorkerServer is one job server.
type WorkerServer struct {
	IP   string `yaml:"ip" validate:"required,ip"`
	Port int    `yaml:"port" validate:"required,min=1,max=65535"`
}

// Database configures schema patching.
type Database struct {
	Mode    string `yaml:"mode" validate:"oneof=cli direct"`
	Dialect string `yaml:"dialect" validate:"oneof=mysql postgres sqlite3"`
	Table   string `yaml:"table"`

	// ControlHost runs the database client in cli mode (default: first host).
	ControlHost string `yaml:"control_host"`

	// Host is the database server, as seen from the control host in cli mode.
	Host string `yaml:"host"`

	// Name, User and Password are asked for when empty.
	// A Name of "skip" disables patching.
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	PatchDirs []string `yaml:"patch_dirs" validate:"required,min=1,dive,required"`
	Client    string   `yaml:"client"`
	Patcher   string   `yaml:"patcher"`
	Attempts  int      `yaml:"attempts" validate:"gte=0"`
}

// Cache configures the version marker. Template, Path and SetrevURLs are
// set together or not at all.
type Cache struct {
	Template   string   `yaml:"template"`
	Path       string   `yaml:"path"`
	SetrevURLs []string `yaml:"setrev_urls" validate:"dive,url"`
}

// Enabled reports whether the version marker is configured.
func (c Cache) Enabled() bool {
	return c.Template != "" || c.Path != "" || len(c.SetrevURLs) > 0
}

// Redis configures the release notifier.
type Redis struct {
	Addr     string `yaml:"addr" validate:"required,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix"`
}

// Metrics configures the Prometheus metrics of a run.
type Metrics struct {
	// Enabled toggles metric collection (default: true).
	Enabled *bool `yaml:"enabled"`

	// PushgatewayURL receives the metrics at the end of a run (optional).
	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	File   string `yaml:"file"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads, completes and validates the configuration file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read config file: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a configuration, applies environment overrides and
// defaults, and validates the result. Unknown keys are rejected.
func Parse(data []byte) (File, error) {
	var f File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("%w: %v", pupdeploy.ErrConfiguration, err)
	}

	f.applyEnv(os.LookupEnv)
	f.applyDefaults()

	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f *File) applyEnv(lookup func(string) (string, bool)) {
	if f.Database != nil {
		if v, ok := lookup(EnvDatabaseUser); ok {
			f.Database.User = v
		}
		if v, ok := lookup(EnvDatabasePassword); ok {
			f.Database.Password = v
		}
	}
	if f.Redis != nil {
		if v, ok := lookup(EnvRedisPassword); ok {
			f.Redis.Password = v
		}
	}
}

func (f *File) applyDefaults() {
	if f.LocalDir == "" {
		f.LocalDir = "."
	}
	if f.Symlink == "" {
		f.Symlink = deploy.DefaultSymlink
	}
	if f.DataDirPrefix == "" {
		f.DataDirPrefix = deploy.DefaultDataDirPrefix
	}
	if f.Log.Level == "" {
		f.Log.Level = "info"
	}
	if f.Log.Format == "" {
		f.Log.Format = "text"
	}

	if db := f.Database; db != nil {
		if db.Mode == "" {
			db.Mode = ModeCLI
		}
		if db.Dialect == "" {
			db.Dialect = string(pupdeploy.DialectMySQL)
		}
		if db.Table == "" {
			db.Table = migrations.DefaultTable
		}
		if db.ControlHost == "" && len(f.Hosts) > 0 {
			db.ControlHost = f.Hosts[0]
		}
		if db.Attempts == 0 {
			db.Attempts = deploy.DefaultCredentialTry
		}
	}
}

// Validate checks the struct tags and the rules spanning several fields.
func (f File) Validate() error {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", pupdeploy.ErrConfiguration, describe(verrs))
		}
		return fmt.Errorf("%w: %v", pupdeploy.ErrConfiguration, err)
	}

	if len(f.TargetFiles) > 0 && f.Target == "" {
		return fmt.Errorf("%w: target_files need a target", pupdeploy.ErrConfiguration)
	}

	if c := f.Cache; c.Enabled() {
		if c.Template == "" || c.Path == "" || len(c.SetrevURLs) == 0 {
			return fmt.Errorf("%w: cache template, path and setrev_urls must all be set", pupdeploy.ErrConfiguration)
		}
		if n := len(c.SetrevURLs); n != 1 && n != len(f.Hosts) {
			return fmt.Errorf("%w: %d setrev_urls for %d hosts", pupdeploy.ErrConfiguration, n, len(f.Hosts))
		}
	}

	w := f.Workers
	if w.Restarter != "" || len(w.Servers) > 0 || len(w.Functions) > 0 {
		if w.Restarter == "" || len(w.Servers) == 0 || len(w.Functions) == 0 {
			return fmt.Errorf("%w: workers need a restarter, servers and functions", pupdeploy.ErrConfiguration)
		}
	}

	if db := f.Database; db != nil && db.Mode == ModeDirect && db.Host == "" && db.Dialect != string(pupdeploy.DialectSQLite) {
		return fmt.Errorf("%w: direct database mode needs a host", pupdeploy.ErrConfiguration)
	}

	if _, err := f.Location(); err != nil {
		return err
	}

	return nil
}

func describe(verrs validator.ValidationErrors) string {
	fe := verrs[0]
	msg := fe.Namespace() + " failed on " + fe.Tag()
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	if len(verrs) > 1 {
		msg += " (and " + strconv.Itoa(len(verrs)-1) + " more)"
	}
	return msg
}

// Location returns the time zone of release and patch names.
func (f File) Location() (*time.Location, error) {
	if f.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %v", pupdeploy.ErrConfiguration, err)
	}
	return loc, nil
}

// HostList returns the hosts in configuration order.
func (f File) HostList() []pupdeploy.Host {
	out := make([]pupdeploy.Host, len(f.Hosts))
	for i, h := range f.Hosts {
		out[i] = pupdeploy.Host(h)
	}
	return out
}

// WorkerConfig returns the worker restart configuration.
func (f File) WorkerConfig() deploy.WorkerConfig {
	servers := make([]deploy.WorkerServer, len(f.Workers.Servers))
	for i, s := range f.Workers.Servers {
		servers[i] = deploy.WorkerServer{IP: s.IP, Port: s.Port}
	}
	return deploy.WorkerConfig{
		Restarter: f.Workers.Restarter,
		Servers:   servers,
		Functions: append([]string(nil), f.Workers.Functions...),
	}
}

// MetricsEnabled reports whether metrics are collected.
func (f File) MetricsEnabled() bool {
	return f.Metrics.Enabled == nil || *f.Metrics.Enabled
}

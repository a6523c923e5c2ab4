package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/ctadmin"
	"github.com/MrEthical07/ctadmin/tokenstore"
)

const (
	envConfigPath = "CTADMIN_CONFIG"
	envMode       = "CTADMIN_MODE"
	envStateDir   = "CTADMIN_STATE_DIR"
	envUsername   = "CTADMIN_USERNAME"
	envPassword   = "CTADMIN_PASSWORD"

	stateFileName = "session.json"
)

// fileConfig is the on-disk CLI configuration.
//
//	api_url: https://api.example.com
//	mode: cookie
//	state_dir: /var/lib/ctadmin
//	timeout: 15s
//	username: admin
//	runtime_env: /etc/ctadmin/env.yaml
type fileConfig struct {
	APIURL     string `yaml:"api_url"`
	Mode       string `yaml:"mode"`
	StateDir   string `yaml:"state_dir"`
	Timeout    string `yaml:"timeout"`
	Username   string `yaml:"username"`
	RuntimeEnv string `yaml:"runtime_env"`
}

// settings is the resolved configuration of one invocation.
type settings struct {
	mode     ctadmin.Mode
	apiURL   string // explicit override; empty lets the runtime env decide
	env      ctadmin.RuntimeEnv
	stateDir string
	timeout  time.Duration
	username string

	renewInterval time.Duration
}

func (s settings) statePath() string {
	return filepath.Join(s.stateDir, stateFileName)
}

func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ctadmin", "config.yaml")
}

func loadFileConfig(path string, explicit bool) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return fc, nil
		}
		return fc, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// resolveSettings layers flags over process environment over the config
// file over built-in defaults.
func resolveSettings(opts *RootOptions) (settings, error) {
	path, explicit := opts.ConfigPath, opts.ConfigPath != ""
	if !explicit {
		path = defaultConfigPath()
	}
	fc, err := loadFileConfig(path, explicit)
	if err != nil {
		return settings{}, err
	}

	s := settings{
		apiURL:   strings.TrimSpace(opts.APIURL),
		timeout:  opts.Timeout,
		username: fc.Username,
	}

	env := ctadmin.RuntimeEnv{}
	if fc.APIURL != "" {
		env[ctadmin.EnvAPIURL] = fc.APIURL
	}
	if fc.RuntimeEnv != "" {
		fileEnv, err := ctadmin.LoadRuntimeEnv(fc.RuntimeEnv)
		if err != nil {
			return settings{}, err
		}
		env = env.Merge(fileEnv)
	}
	osEnv := ctadmin.RuntimeEnvFromOS("CTADMIN_")
	for k, v := range osEnv {
		if strings.TrimSpace(v) == "" {
			delete(osEnv, k)
		}
	}
	s.env = env.Merge(osEnv)

	rawMode := firstNonEmpty(opts.Mode, os.Getenv(envMode), fc.Mode, "cookie")
	if s.mode, err = parseMode(rawMode); err != nil {
		return settings{}, err
	}

	s.stateDir = firstNonEmpty(opts.StateDir, os.Getenv(envStateDir), fc.StateDir)
	if s.stateDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return settings{}, fmt.Errorf("locate state directory: %w", err)
		}
		s.stateDir = filepath.Join(dir, "ctadmin")
	}

	if s.timeout == 0 && fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil || d < 0 {
			return settings{}, fmt.Errorf("config timeout %q: invalid duration", fc.Timeout)
		}
		s.timeout = d
	}
	if u := os.Getenv(envUsername); u != "" {
		s.username = u
	}
	return s, nil
}

func parseMode(raw string) (ctadmin.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cookie":
		return ctadmin.ModeCookie, nil
	case "token":
		return ctadmin.ModeToken, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want cookie or token)", raw)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newClient builds a client whose token and cookies persist in the state
// file, so a session outlives the process.
func newClient(opts *RootOptions, s settings, stderr io.Writer) (*ctadmin.Client, error) {
	if err := os.MkdirAll(s.stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	store := tokenstore.NewFile(s.statePath())
	logger := newLogger(stderr, opts.Verbose)

	cfg := ctadmin.DefaultConfig()
	cfg.Mode = s.mode
	if s.timeout > 0 {
		cfg.HTTP.Timeout = s.timeout
	}
	if s.renewInterval > 0 {
		cfg.Renewal.Interval = s.renewInterval
	}

	b := ctadmin.New().
		WithConfig(cfg).
		WithRuntimeEnv(s.env).
		WithTokenStore(store).
		WithCookieStore(store).
		WithLogger(logger)
	if s.apiURL != "" {
		b.WithBaseURL(s.apiURL)
	}
	if opts.httpClient != nil {
		b.WithHTTPClient(opts.httpClient)
	}
	if opts.Verbose {
		b.WithAuditSink(ctadmin.NewSlogSink(logger, slog.LevelDebug))
	}
	return b.Build()
}

package ctadmin

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is used when neither the runtime environment nor the
	// build sets an API URL.
	DefaultBaseURL = "http://localhost:8000"
	// EnvAPIURL is the runtime environment key holding the API URL.
	EnvAPIURL = "CTADMIN_API_URL"
)

// buildAPIURL is set at link time:
//
//	go build -ldflags "-X github.com/MrEthical07/ctadmin.buildAPIURL=https://api.example.com"
var buildAPIURL string

// RuntimeEnv is a flat key/value environment injected at deploy time.
type RuntimeEnv map[string]string

// ResolveBaseURL picks the API base URL: the runtime environment first, then
// the value linked into the binary, then [DefaultBaseURL]. Blank values are
// skipped and a trailing slash is trimmed.
func ResolveBaseURL(env RuntimeEnv) string {
	for _, candidate := range []string{env[EnvAPIURL], buildAPIURL} {
		if v := strings.TrimSpace(candidate); v != "" {
			return strings.TrimRight(v, "/")
		}
	}
	return DefaultBaseURL
}

// LoadRuntimeEnv reads a YAML (or JSON) mapping of string values from path.
// A missing file yields an empty environment.
func LoadRuntimeEnv(path string) (RuntimeEnv, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RuntimeEnv{}, nil
		}
		return nil, fmt.Errorf("read runtime env: %w", err)
	}
	env := RuntimeEnv{}
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse runtime env %s: %w", path, err)
	}
	return env, nil
}

// RuntimeEnvFromOS collects the process environment variables that carry
// the given prefix, keeping their full names.
func RuntimeEnvFromOS(prefix string) RuntimeEnv {
	env := RuntimeEnv{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, prefix) {
			env[k] = v
		}
	}
	return env
}

// Merge returns a copy of e overlaid with other.
func (e RuntimeEnv) Merge(other RuntimeEnv) RuntimeEnv {
	out := make(RuntimeEnv, len(e)+len(other))
	for k, v := range e {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

package mcp

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// ErrUnsupportedServer is returned when the provider launch command
// cannot be derived from the server path.
var ErrUnsupportedServer = errors.New("server script must be a .py or .js file, or an executable")

var validate = validator.New()

// ProviderConfig describes how to launch the tool provider process.
type ProviderConfig struct {
	// Command is the executable to run
	Command string `json:"command" yaml:"command" toml:"command" validate:"required"`
	// Args are the command arguments
	Args []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args"`
	// Dir is the working directory of the process,
	// the current directory is used when empty
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir"`
	// Env is added to the environment of the current process
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env"`
}

// Validate returns error if the config is not valid
func (c *ProviderConfig) Validate() error {
	if c == nil {
		return errors.New("provider config is required")
	}
	if err := validate.Struct(c); err != nil {
		return errors.WithMessage(err, "invalid provider config")
	}
	return nil
}

// Environ returns the process environment with Env applied,
// or nil to inherit the current environment as is.
func (c *ProviderConfig) Environ() []string {
	if len(c.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}

// String returns the command line of the provider
func (c *ProviderConfig) String() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// ProviderConfigFromPath returns the launch config for a server path:
// Python scripts run with `uv --directory <dir> run <script>`,
// JavaScript with `node <path>`, and files without extension are executed directly.
func ProviderConfigFromPath(path string) (*ProviderConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("server path is required")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".py":
		return &ProviderConfig{
			Command: "uv",
			Args:    []string{"--directory", filepath.Dir(path), "run", filepath.Base(path)},
		}, nil
	case ".js":
		return &ProviderConfig{
			Command: "node",
			Args:    []string{path},
		}, nil
	case "":
		return &ProviderConfig{
			Command: path,
		}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedServer, "unsupported extension %q", ext)
	}
}

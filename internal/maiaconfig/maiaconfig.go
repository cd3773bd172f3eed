// Package maiaconfig answers the two environment questions the CI workflow
// asks before publishing: does the repo pin an environment, and which
// environment belongs to the triggering user.
package maiaconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath   = ".maia-experience/maia_demo_config.yaml"
	DefaultMappingsPath = ".maia-experience/user-environment-mappings.yaml"
	FallbackEnvironment = "demo"
)

type demoConfig struct {
	EnvironmentName string `yaml:"environment_name"`
}

// EnvironmentName returns environment_name from the demo config file. An
// absent key yields "".
func EnvironmentName(path string) (string, error) {
	var cfg demoConfig
	if err := readYAML(path, &cfg); err != nil {
		return "", err
	}
	return cfg.EnvironmentName, nil
}

type Source string

const (
	SourceMapped  Source = "mapped"
	SourceDefault Source = "default"
)

// Resolution is printed as "<environment>|<source>".
type Resolution struct {
	Environment string
	Source      Source
}

func (r Resolution) String() string {
	return r.Environment + "|" + string(r.Source)
}

type userMappings struct {
	Mappings map[string]string `yaml:"mappings"`
	Default  *string           `yaml:"default"`
}

// ResolveUser looks user up in the mappings file. Unmapped users get the
// file's default as written, even when empty, or FallbackEnvironment when the
// key is absent. Unreadable
// files resolve to FallbackEnvironment with the error returned for logging.
func ResolveUser(path, user string) (Resolution, error) {
	var m userMappings
	if err := readYAML(path, &m); err != nil {
		return Resolution{Environment: FallbackEnvironment, Source: SourceDefault}, err
	}
	if env := m.Mappings[user]; env != "" {
		return Resolution{Environment: env, Source: SourceMapped}, nil
	}
	env := FallbackEnvironment
	if m.Default != nil {
		env = *m.Default
	}
	return Resolution{Environment: env, Source: SourceDefault}, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces the environment overrides. A double underscore selects
// a nested key: ROUTEFLOW_USERS__CONNECT_TIMEOUT=2s sets users.connect_timeout.
const EnvPrefix = "ROUTEFLOW_"

// DefaultFile is read when Load is called without an explicit path. It is
// optional.
const DefaultFile = "routeflow.yaml"

// listKeys hold comma separated values when set through the environment.
var listKeys = map[string]struct{}{
	"kafka_brokers": {},
}

// Load layers the YAML file at path (or DefaultFile when path is empty and the
// file exists) and ROUTEFLOW_* environment variables over Defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	filePath := path
	if filePath == "" {
		filePath = DefaultFile
	}
	if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
		if path != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", filePath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func envKeyValue(key, value string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
	if _, ok := listKeys[key]; ok {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}

// Package config provides the hierarchical key lookup consumed by sockd.
//
// Keys are dotted paths such as
// "proxy_server.socks.5.auth.method.no_auth.enable". Callers pass the path as
// segments and a default; a missing or unparsable value yields the default.
//
// Values are collected from, in increasing precedence: a YAML file whose
// nested maps are flattened into dotted keys, environment variables named
// SOCKD_<KEY> (upper-cased, dots replaced by underscores), and explicit
// key=value overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variable overrides.
const EnvPrefix = "SOCKD_"

// Lookup is the read-only contract the proxy depends on.
type Lookup interface {
	GetBool(def bool, keys ...string) bool
	GetString(def string, keys ...string) string
}

// Values is a flat map of dotted keys to raw string values.
type Values map[string]string

var _ Lookup = Values(nil)

// Key joins key segments into a dotted key.
func Key(keys ...string) string {
	return strings.Join(keys, ".")
}

// Set stores value under the dotted key.
func (v Values) Set(key, value string) {
	v[key] = value
}

// GetString returns the value stored under keys, or def when absent.
func (v Values) GetString(def string, keys ...string) string {
	if val, ok := v[Key(keys...)]; ok {
		return val
	}
	return def
}

// GetBool returns the boolean stored under keys, or def when absent or not a
// boolean.
func (v Values) GetBool(def bool, keys ...string) bool {
	val, ok := v[Key(keys...)]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return b
}

// Keys returns all keys in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads the YAML file at path (skipped when path is empty), then
// applies environment overrides from environ (os.Environ() format) to the
// loaded keys and to known.
func Load(path string, environ []string, known ...string) (Values, error) {
	v := Values{}
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // Path is from user config.
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := v.MergeYAML(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	v.MergeEnv(environ, known...)
	return v, nil
}

// MergeYAML flattens a YAML document into v. Nested mappings become dotted
// keys; scalar leaves are stored as their literal text.
func (v Values) MergeYAML(data []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Kind == 0 || (root.Kind == yaml.DocumentNode && len(root.Content) == 0) {
		return nil
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 {
		return errors.New("expected a single YAML document")
	}
	return v.flatten("", root.Content[0])
}

func (v Values) flatten(prefix string, n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			if prefix != "" {
				k = prefix + "." + k
			}
			if err := v.flatten(k, n.Content[i+1]); err != nil {
				return err
			}
		}
		return nil
	case yaml.ScalarNode:
		if prefix == "" {
			return errors.New("top level must be a mapping")
		}
		v[prefix] = n.Value
		return nil
	case yaml.AliasNode:
		return v.flatten(prefix, n.Alias)
	default:
		return fmt.Errorf("key %q: unsupported YAML node (line %d)", prefix, n.Line)
	}
}

// MergeEnv applies SOCKD_* variables. Environment names cannot tell an
// underscore inside a segment from a segment separator, so an override only
// applies to keys already present in v or listed in known.
func (v Values) MergeEnv(environ []string, known ...string) {
	if len(environ) == 0 {
		return
	}
	byEnv := make(map[string]string, len(v)+len(known))
	for _, k := range known {
		byEnv[EnvName(k)] = k
	}
	for k := range v {
		byEnv[EnvName(k)] = k
	}
	for _, kv := range environ {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		if k, ok := byEnv[name]; ok {
			v[k] = val
		}
	}
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// MergeOverrides applies "key=value" pairs.
func (v Values) MergeOverrides(pairs []string) error {
	for _, p := range pairs {
		k, val, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return fmt.Errorf("invalid override %q: expected key=value", p)
		}
		v[k] = val
	}
	return nil
}

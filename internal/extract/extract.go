// Package extract normalizes raw malware configurations recovered by family
// decoders into a fixed schema.
package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Config is the normalized configuration of one sample
type Config struct {
	Family             string         `json:"family"`
	CapabilityEnabled  []string       `json:"capability_enabled,omitempty"`
	CapabilityDisabled []string       `json:"capability_disabled,omitempty"`
	Encryption         []Encryption   `json:"encryption,omitempty"`
	HTTP               []HTTP         `json:"http,omitempty"`
	Other              map[string]any `json:"other,omitempty"`
}

// Encryption describes a cipher and its material
type Encryption struct {
	Algorithm string `json:"algorithm"`
	Key       string `json:"key,omitempty"`
	IV        string `json:"iv,omitempty"`
}

// HTTP is a network endpoint
type HTTP struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port,omitempty"`
	Usage    string `json:"usage,omitempty"`
}

// Converter maps a raw configuration into a Config. cfg arrives with Family
// and Other already set.
type Converter func(cfg *Config, raw map[string]any) error

type family struct {
	name    string
	convert Converter
}

var families = map[string]family{
	"blister": {name: "Blister", convert: convertBlister},
	"redline": {name: "RedLine", convert: convertRedLine},
}

// Families returns the family names with a dedicated converter
func Families() []string {
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.name)
	}
	sort.Strings(names)
	return names
}

// Normalize converts raw into the fixed schema. It returns nil when raw is
// empty or not a mapping. Unknown families keep only the raw mapping.
func Normalize(familyName string, raw any) (*Config, error) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, nil
	}

	f, known := families[strings.ToLower(familyName)]
	if !known {
		return &Config{Family: familyName, Other: m}, nil
	}

	cfg := &Config{Family: f.name, Other: m}
	if err := f.convert(cfg, m); err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	return cfg, nil
}

// Decode reads a raw JSON configuration
func Decode(r io.Reader) (any, error) {
	var raw any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func convertBlister(cfg *Config, raw map[string]any) error {
	for _, capability := range []string{"Persistence", "Sleep after injection"} {
		v, ok := raw[capability]
		if !ok {
			return fmt.Errorf("missing key %q", capability)
		}
		if truthy(v) {
			cfg.CapabilityEnabled = append(cfg.CapabilityEnabled, capability)
		} else {
			cfg.CapabilityDisabled = append(cfg.CapabilityDisabled, capability)
		}
	}

	key, err := requireString(raw, "Rabbit key")
	if err != nil {
		return err
	}
	iv, err := requireString(raw, "Rabbit IV")
	if err != nil {
		return err
	}
	cfg.Encryption = append(cfg.Encryption, Encryption{Algorithm: "rabbit", Key: key, IV: iv})
	return nil
}

func convertRedLine(cfg *Config, raw map[string]any) error {
	if _, ok := raw["C2"]; !ok {
		return nil
	}
	c2, err := requireString(raw, "C2")
	if err != nil {
		return err
	}

	parts := strings.Split(c2, ":")
	if len(parts) != 2 {
		return fmt.Errorf("C2 %q: want host:port", c2)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("C2 %q: invalid port: %w", c2, err)
	}
	cfg.HTTP = append(cfg.HTTP, HTTP{Hostname: parts[0], Port: port, Usage: "c2"})
	return nil
}

func requireString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("missing key %q", key)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// truthy reports whether v counts as set: non-zero, non-empty, true
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

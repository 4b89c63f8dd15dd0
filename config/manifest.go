package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInvalidManifest is returned for a manifest that cannot be deployed.
var ErrInvalidManifest = errors.New("config: invalid manifest")

// Manifest is one deployable generation.
//
//	generation = "2025-06-01"
//	root = "/"
//	precache = ["/", "/app.js", "https://fonts.example/inter.woff2"]
//	deny = ["/old-worker.js", "/legacy/*.js"]
type Manifest struct {
	Generation string   `toml:"generation"`
	Root       string   `toml:"root"`
	Precache   []string `toml:"precache"`
	Deny       []string `toml:"deny"`
}

// LoadManifest decodes and normalizes the manifest at path. Unknown keys
// are rejected so a typo cannot silently drop a deny rule.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("config: decode manifest %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Manifest{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidManifest, strings.Join(keys, ", "))
	}
	if err := m.normalize(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// normalize trims entries, drops duplicates and makes sure the root
// document is precached.
func (m *Manifest) normalize() error {
	m.Generation = strings.TrimSpace(m.Generation)
	if m.Generation == "" {
		return fmt.Errorf("%w: generation is required", ErrInvalidManifest)
	}
	if strings.ContainsAny(m.Generation, " \t/") {
		return fmt.Errorf("%w: generation %q must not contain spaces or slashes", ErrInvalidManifest, m.Generation)
	}

	m.Root = strings.TrimSpace(m.Root)
	if m.Root == "" {
		m.Root = "/"
	}
	if !strings.HasPrefix(m.Root, "/") {
		return fmt.Errorf("%w: root %q must be an absolute path", ErrInvalidManifest, m.Root)
	}

	precache := []string{m.Root}
	seen := map[string]bool{m.Root: true}
	for _, raw := range m.Precache {
		raw = strings.TrimSpace(raw)
		if raw == "" || seen[raw] {
			continue
		}
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("%w: precache %q: %w", ErrInvalidManifest, raw, err)
		}
		seen[raw] = true
		precache = append(precache, raw)
	}
	m.Precache = precache

	deny := make([]string, 0, len(m.Deny))
	for _, p := range m.Deny {
		if p = strings.TrimSpace(p); p != "" {
			deny = append(deny, p)
		}
	}
	m.Deny = deny
	return nil
}

// Package config ties every component's Config struct into one YAML
// document, grounded on sim/bundle.go's PolicyBundle/LoadPolicyBundle
// pattern: strict parsing (unknown keys rejected) and a validated-name
// registry for the one string-enum config field (batch mode).
package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/emelcore/emel/alloc"
	"github.com/emelcore/emel/batch"
	"github.com/emelcore/emel/decode"
	"github.com/emelcore/emel/executor"
	"github.com/emelcore/emel/kv"
	"github.com/emelcore/emel/memory"
)

// Bundle is the top-level YAML document a caller hands to `emel
// validate-config` or loads before wiring up a Decoder.
type Bundle struct {
	Alloc    alloc.Config    `yaml:"alloc"`
	KV       kv.Config       `yaml:"kv"`
	Memory   memory.Config   `yaml:"memory"`
	Executor executor.Config `yaml:"executor"`
	Decode   decodeConfig    `yaml:"decode"`
}

// decodeConfig mirrors decode.Config but with a string yaml field for
// DefaultMode so the bundle can validate it against the name registry
// below before converting to a batch.Mode.
type decodeConfig struct {
	DefaultMode    string `yaml:"default_mode"`
	DefaultNUbatch int64  `yaml:"default_n_ubatch"`
}

// DefaultBundle assembles the default config of every component.
func DefaultBundle() Bundle {
	decodeDefaults := decode.DefaultConfig()
	return Bundle{
		Alloc:    alloc.DefaultConfig(),
		KV:       kv.DefaultConfig(),
		Memory:   memory.DefaultConfig(),
		Executor: executor.DefaultConfig(),
		Decode: decodeConfig{
			DefaultMode:    decodeDefaults.DefaultMode.String(),
			DefaultNUbatch: decodeDefaults.DefaultNUbatch,
		},
	}
}

// LoadBundle reads and strictly parses a YAML config bundle from path.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config bundle: %w", err)
	}
	bundle := DefaultBundle()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("parsing config bundle: %w", err)
	}
	return &bundle, nil
}

var validBatchModes = map[string]batch.Mode{
	"simple": batch.ModeSimple,
	"equal":  batch.ModeEqual,
	"seq":    batch.ModeSeq,
}

// IsValidBatchMode reports whether name is a recognized splitter mode.
func IsValidBatchMode(name string) bool {
	_, ok := validBatchModes[name]
	return ok
}

// ValidBatchModeNames returns the sorted list of recognized mode names.
func ValidBatchModeNames() []string {
	names := make([]string, 0, len(validBatchModes))
	for name := range validBatchModes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate runs every component's own Validate and checks the decode
// section's batch-mode name against the registry.
func (b *Bundle) Validate() error {
	if err := b.Alloc.Validate(); err != nil {
		return err
	}
	if err := b.KV.Validate(); err != nil {
		return err
	}
	if err := b.Memory.Validate(); err != nil {
		return err
	}
	if err := b.Executor.Validate(); err != nil {
		return err
	}
	if !IsValidBatchMode(b.Decode.DefaultMode) {
		return fmt.Errorf("unknown decode default_mode %q; valid options: %s",
			b.Decode.DefaultMode, strings.Join(ValidBatchModeNames(), ", "))
	}
	if b.Decode.DefaultNUbatch < 0 {
		return fmt.Errorf("decode default_n_ubatch must be non-negative, got %d", b.Decode.DefaultNUbatch)
	}
	return nil
}

// DecodeConfig converts the bundle's decode section into a decode.Config.
func (b *Bundle) DecodeConfig() decode.Config {
	return decode.Config{
		DefaultMode:    validBatchModes[b.Decode.DefaultMode],
		DefaultNUbatch: b.Decode.DefaultNUbatch,
	}
}

package decode

import (
	"fmt"

	"github.com/emelcore/emel/batch"
)

// Config carries the decoder's static policy, loaded from the top-level
// config bundle.
type Config struct {
	DefaultMode    batch.Mode `yaml:"default_mode"`
	DefaultNUbatch int64      `yaml:"default_n_ubatch"`
}

func DefaultConfig() Config {
	return Config{DefaultMode: batch.ModeSimple, DefaultNUbatch: 0}
}

func (c Config) Validate() error {
	if c.DefaultNUbatch < 0 {
		return fmt.Errorf("decode: default_n_ubatch must be non-negative, got %d", c.DefaultNUbatch)
	}
	return nil
}

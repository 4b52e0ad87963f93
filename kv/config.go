package kv

import "fmt"

// Config carries the cache's static shape, loaded from the top-level
// config bundle (spec §6 key numeric constants).
type Config struct {
	NStream int32 `yaml:"n_stream"`
	KVSize  int32 `yaml:"kv_size"`
}

func DefaultConfig() Config {
	return Config{NStream: 1, KVSize: 4096}
}

func (c Config) Validate() error {
	if c.NStream <= 0 || c.NStream > MaxStreams {
		return fmt.Errorf("kv: n_stream must be in (0, %d], got %d", MaxStreams, c.NStream)
	}
	if c.KVSize <= 0 || c.KVSize > MaxKVCells {
		return fmt.Errorf("kv: kv_size must be in (0, %d], got %d", MaxKVCells, c.KVSize)
	}
	return nil
}

// NewFromConfig constructs a Cache from a validated Config.
func NewFromConfig(cfg Config) *Cache {
	return New(cfg.NStream, cfg.KVSize)
}

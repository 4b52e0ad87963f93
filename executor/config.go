package executor

// Config is currently empty; the executor has no tunable policy of its
// own beyond what memory.Config and kv.Config already cover. Kept as a
// type so the top-level config bundle has a stable field to grow into.
type Config struct{}

func DefaultConfig() Config { return Config{} }

func (c Config) Validate() error { return nil }

package memory

// Config carries the coordinator's policy knobs loaded from the
// top-level config bundle.
type Config struct {
	// OptimizeOnDone is carried in the config bundle for the best-effort
	// optimize pass after a successful decode (spec §4.6 step 8). Nothing
	// reads it: decode.Decoder runs that pass after every successful
	// decode, whatever this field says.
	OptimizeOnDone bool `yaml:"optimize_on_done"`
}

func DefaultConfig() Config {
	return Config{OptimizeOnDone: true}
}

func (c Config) Validate() error { return nil }

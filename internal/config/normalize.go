package config

// Normalize fills in derived values. Call it only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Codec.Dialect == "" {
		if cfg.Transport.Kind == "hid" {
			cfg.Codec.Dialect = "hid"
		} else {
			cfg.Codec.Dialect = "smbus"
		}
	}
	if cfg.Codec.ByteOrder == "" {
		cfg.Codec.ByteOrder = "little"
	}
	if cfg.Codec.Layout == "" {
		cfg.Codec.Layout = "auto"
	}
	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = 1000
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.BackoffMs == 0 {
		cfg.Retry.BackoffMs = 50
	}
}

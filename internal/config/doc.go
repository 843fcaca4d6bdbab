// Package config loads, normalizes, and validates castreel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for the
// service credentials (CASTREEL_TRANSCRIPTION_API_KEY and friends). The Config
// type centralizes every knob the daemon and CLI need: feed location, service
// endpoints and timeouts, per-stage concurrency limits, and retry policy.
//
// The pipeline itself never reads the environment or files; it receives the
// resolved *Config produced here.
package config

package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates errors that must block startup from ones that
// are recoverable by clamping.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether startup must be aborted.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// ValidateTiered checks the config. Fatal errors are ones that make the
// server unsafe or unusable (no control password, colliding passwords,
// unusable port). Out-of-range tuning knobs are clamped to a safe value
// and reported as warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if c.Port < 1 || c.Port > 65535 {
		r.Fatals = append(r.Fatals, fmt.Errorf("port %d is outside 1-65535", c.Port))
	}

	if c.ControlPassword == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("password is required"))
	}
	if c.ViewPassword != "" {
		if c.ControlPassword == "" {
			r.Fatals = append(r.Fatals, fmt.Errorf("view_password requires password to be set"))
		} else if c.ViewPassword == c.ControlPassword {
			r.Fatals = append(r.Fatals, fmt.Errorf("view_password must differ from password"))
		}
	}

	c.MaxFPS = clampWarn(&r, "max_fps", c.MaxFPS, 1, 120)
	c.MaxIPS = clampWarn(&r, "max_ips", c.MaxIPS, 1, 1000)
	c.MinQuality = clampWarn(&r, "min_quality", c.MinQuality, 1, 100)
	c.MaxQuality = clampWarn(&r, "max_quality", c.MaxQuality, 1, 100)
	if c.MinQuality > c.MaxQuality {
		r.Warnings = append(r.Warnings, fmt.Errorf("min_quality %d exceeds max_quality %d, swapping", c.MinQuality, c.MaxQuality))
		c.MinQuality, c.MaxQuality = c.MaxQuality, c.MinQuality
	}

	c.PartialStreakLimit = clampWarn(&r, "partial_frames_before_full_repaint", c.PartialStreakLimit, 1, 10000)
	c.EmptyStreakLimit = clampWarn(&r, "empty_frames_before_full_repaint", c.EmptyStreakLimit, 1, 100000)

	c.EncodeWorkers = clampWarn(&r, "encode_workers", c.EncodeWorkers, 1, 64)
	c.EncodeQueueSize = clampWarn(&r, "encode_queue_size", c.EncodeQueueSize, 1, 1024)

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return r
}

// clampWarn clamps v into [min, max], appending a warning when clamping occurred.
func clampWarn(r *ValidationResult, name string, v, min, max int) int {
	if v < min {
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", name, v, min))
		return min
	}
	if v > max {
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", name, v, max))
		return max
	}
	return v
}

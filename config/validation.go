package config

import (
	"errors"
	"fmt"
	"strings"
)

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func joinErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}

// Validate checks HTTP server settings.
func (s *ServerConfig) Validate() error {
	var errs []string
	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	for _, d := range []struct {
		name  string
		value int64
	}{
		{"read_timeout", int64(s.ReadTimeout)},
		{"write_timeout", int64(s.WriteTimeout)},
		{"idle_timeout", int64(s.IdleTimeout)},
		{"read_header_timeout", int64(s.ReadHeaderTimeout)},
		{"shutdown_timeout", int64(s.ShutdownTimeout)},
	} {
		if d.value <= 0 {
			errs = append(errs, d.name+" must be positive")
		}
	}
	return joinErrs(errs)
}

// Validate checks the selected storage adapter and its settings.
func (s *StorageConfig) Validate() error {
	var errs []string

	if !oneOf(s.Adapter, "memory", "redis", "sql", "file") {
		errs = append(errs, "adapter must be one of: memory, redis, sql, file")
	}

	switch s.Adapter {
	case "redis":
		if s.Redis.Addr == "" {
			errs = append(errs, "redis config: addr cannot be empty")
		}
	case "sql":
		if s.SQL.DSN == "" {
			errs = append(errs, "sql config: dsn cannot be empty")
		}
	case "file":
		if err := s.File.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("file config: %v", err))
		}
	}
	return joinErrs(errs)
}

// Validate checks JSON file storage settings.
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate checks logging settings.
func (l *LoggingConfig) Validate() error {
	var errs []string
	if !oneOf(l.Level, "debug", "info", "warn", "error") {
		errs = append(errs, "level must be one of: debug, info, warn, error")
	}
	if !oneOf(l.Format, "json", "text") {
		errs = append(errs, "format must be one of: json, text")
	}
	if !oneOf(l.Output, "stdout", "stderr") {
		errs = append(errs, "output must be one of: stdout, stderr")
	}
	return joinErrs(errs)
}

// Validate checks metrics settings.
func (m *MetricsConfig) Validate() error {
	var errs []string
	if m.Enabled {
		if m.Address == "" {
			errs = append(errs, "address cannot be empty when metrics are enabled")
		}
		if m.Path == "" {
			errs = append(errs, "path cannot be empty when metrics are enabled")
		}
	}
	return joinErrs(errs)
}

// Validate checks webhook fan-out settings.
func (w *WebhookConfig) Validate() error {
	for _, e := range w.Endpoints {
		if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
			return fmt.Errorf("endpoint %q must be an http(s) URL", e)
		}
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"dbpoll/internal/domain"
	"dbpoll/internal/etl"
	_ "dbpoll/internal/etl/sources" // registers the mysql source type
	"dbpoll/internal/logging"
	"dbpoll/internal/schedule"
)

// ErrInvalid is wrapped by every configuration problem.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks the structural validity of a Config whose defaults have
// been applied. Every problem is reported, not just the first.
func Validate(cfg *Config) error {
	var errs []error

	if !logging.ValidLevel(cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format: must be %q or %q, got %q", logging.FormatConsole, logging.FormatJSON, cfg.Log.Format))
	}

	switch cfg.Sink.Type {
	case SinkStdout, SinkSQLite:
	default:
		errs = append(errs, fmt.Errorf("sink.type: must be %q or %q, got %q", SinkStdout, SinkSQLite, cfg.Sink.Type))
	}

	if len(cfg.Sources) == 0 {
		errs = append(errs, errors.New("sources: at least one source must be configured"))
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i, s := range cfg.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", prefix))
		} else {
			prefix = fmt.Sprintf("sources[%d] (%s)", i, s.Name)
			if seen[s.Name] {
				errs = append(errs, fmt.Errorf("%s: duplicate name", prefix))
			}
			seen[s.Name] = true
		}
		errs = append(errs, validateSource(prefix, s)...)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func validateSource(prefix string, s SourceEntry) []error {
	var errs []error

	if _, err := etl.GetSource(s.Type); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
	}
	if strings.TrimSpace(s.Statement) == "" {
		errs = append(errs, fmt.Errorf("%s: statement is required", prefix))
	}
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s: port %d out of range", prefix, s.Port))
	}
	if strings.TrimSpace(s.Schedule) != "" {
		if _, err := schedule.Parse(s.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
	}

	switch domain.TimeEncoding(s.TimeEncoding) {
	case domain.TimeEncodingObject, domain.TimeEncodingBytes:
	default:
		errs = append(errs, fmt.Errorf("%s: time_encoding must be %q or %q, got %q",
			prefix, domain.TimeEncodingObject, domain.TimeEncodingBytes, s.TimeEncoding))
	}
	switch domain.ErrorPolicy(s.OnError) {
	case domain.ErrorPolicyFail, domain.ErrorPolicySkip:
	default:
		errs = append(errs, fmt.Errorf("%s: on_error must be %q or %q, got %q",
			prefix, domain.ErrorPolicyFail, domain.ErrorPolicySkip, s.OnError))
	}
	return errs
}

package logging

// Severity orders log levels from most verbose to fatal. The engine and
// gate log promotion and decay detail at DEBUG; isolated hook and rule
// failures surface at WARN.
type Severity int32

const (
	DEBUG Severity = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the level name as it appears in config files and output.
func (s Severity) String() string {
	return [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}[s]
}

// ParseSeverity converts a config level string to a Severity.
// Unknown strings fall back to INFO.
func ParseSeverity(level string) Severity {
	switch level {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

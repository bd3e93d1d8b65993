package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/driftline/emergent/pkg/logging"
)

// Config is the complete tuning surface for the emergent core. Every knob
// has a sane default; hosts embed the library and override selectively.
type Config struct {
	// Engine configuration (pattern discovery)
	Engine EngineConfig `yaml:"engine,omitempty" validate:"omitempty"`

	// Gate configuration (retention/decay/salience)
	Gate GateConfig `yaml:"gate,omitempty" validate:"omitempty"`

	// Tracker configuration (directional motion)
	Tracker TrackerConfig `yaml:"tracker,omitempty" validate:"omitempty"`

	// Context configuration (session data model capacities)
	Context ContextConfig `yaml:"context,omitempty" validate:"omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// EngineConfig tunes the pattern discovery engine.
type EngineConfig struct {
	// Observation window capacity
	WindowCapacity int `yaml:"window_capacity" validate:"min=1"`

	// Maximum observation age before pruning
	WindowMaxAge time.Duration `yaml:"window_max_age" validate:"min=0"`

	// Minimum support before a candidate can be promoted
	MinSupport int `yaml:"min_support" validate:"min=1"`

	// Confidence threshold for promotion
	PromotionThreshold float64 `yaml:"promotion_threshold" validate:"min=0,max=1"`

	// Detectors and maintenance run every Nth observation
	EvalInterval int `yaml:"eval_interval" validate:"min=1"`

	// Sequence tracker capacity
	SequenceCapacity int `yaml:"sequence_capacity" validate:"min=2"`

	// Decay factor applied to emitted signals during maintenance
	MaintenanceDecay float64 `yaml:"maintenance_decay" validate:"min=0,max=1"`
}

// GateConfig tunes the retention gate.
type GateConfig struct {
	// Salience score at or above which a signal is retained
	RetainThreshold float64 `yaml:"retain_threshold" validate:"min=0,max=1"`

	// Salience score at or above which a signal is archived
	ArchiveThreshold float64 `yaml:"archive_threshold" validate:"min=0,max=1"`

	// Floor under which a signal is discarded outright
	MinimumSalience float64 `yaml:"minimum_salience" validate:"min=0,max=1"`

	// Base decay rate for the periodic maintenance pass
	BaseDecayRate float64 `yaml:"base_decay_rate" validate:"min=0,max=1"`
}

// TrackerConfig tunes the motion tracker.
type TrackerConfig struct {
	// Direction history capacity
	DirectionHistory int `yaml:"direction_history" validate:"min=2"`

	// Vector snapshot history capacity
	SnapshotHistory int `yaml:"snapshot_history" validate:"min=1"`

	// Topic list capacity
	TopicCapacity int `yaml:"topic_capacity" validate:"min=1"`
}

// ContextConfig tunes per-session data model capacities.
type ContextConfig struct {
	// Maximum anchors per session
	MaxAnchors int `yaml:"max_anchors" validate:"min=1"`

	// Signal ring capacity per session
	MaxSignals int `yaml:"max_signals" validate:"min=1"`
}

// LoggingConfig tunes the logger.
type LoggingConfig struct {
	// Minimum severity: DEBUG, INFO, WARN, ERROR, FATAL
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`

	// Optional JSON-lines log file path
	FilePath string `yaml:"file_path,omitempty"`
}

// BuildLogger constructs a logger honoring the configured level, writing to
// the console and, when a file path is set, a JSON-lines file.
func (c LoggingConfig) BuildLogger() (*logging.Logger, error) {
	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if c.FilePath != "" {
		file, err := logging.NewFileOutput(c.FilePath)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, file)
	}
	return logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(c.Level),
		Outputs:  outputs,
	}), nil
}

// DefaultConfig returns the configuration the core ships with.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			WindowCapacity:     200,
			WindowMaxAge:       30 * time.Minute,
			MinSupport:         3,
			PromotionThreshold: 0.5,
			EvalInterval:       10,
			SequenceCapacity:   50,
			MaintenanceDecay:   0.02,
		},
		Gate: GateConfig{
			RetainThreshold:  0.6,
			ArchiveThreshold: 0.3,
			MinimumSalience:  0.1,
			BaseDecayRate:    0.05,
		},
		Tracker: TrackerConfig{
			DirectionHistory: 20,
			SnapshotHistory:  50,
			TopicCapacity:    30,
		},
		Context: ContextConfig{
			MaxAnchors: 20,
			MaxSignals: 100,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Validate checks the configuration against its struct tags plus the
// cross-field ordering the gate depends on.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Gate.ArchiveThreshold > c.Gate.RetainThreshold {
		return fmt.Errorf("gate archive_threshold %.3f must not exceed retain_threshold %.3f",
			c.Gate.ArchiveThreshold, c.Gate.RetainThreshold)
	}
	if c.Gate.MinimumSalience > c.Gate.ArchiveThreshold {
		return fmt.Errorf("gate minimum_salience %.3f must not exceed archive_threshold %.3f",
			c.Gate.MinimumSalience, c.Gate.ArchiveThreshold)
	}

	return nil
}

// Load reads a yaml file and overlays it on the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

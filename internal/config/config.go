package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "racecontrol.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds the connection settings of the postgres backend,
// read from the db section.
type PostgresConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
}

// StorageConfig selects and configures the run recording backend
type StorageConfig struct {
	Type     string       `json:"type" mapstructure:"type"`
	Memory   MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig
}

// AgentConfig holds the decision loop settings
type AgentConfig struct {
	TickInterval       time.Duration
	ManualTickInterval time.Duration
	DecisionTimeout    time.Duration
}

// SchedulerConfig holds the frame loop settings
type SchedulerConfig struct {
	FrameInterval    time.Duration
	RaceCompleteHold time.Duration
	Timing           bool
}

// TrackConfig holds the track builder settings
type TrackConfig struct {
	Scale float64
}

// VisionConfig holds the tracker connection settings
type VisionConfig struct {
	URL              string
	CalibrationTries int
	FrameTimeout     time.Duration
}

// CommsConfig selects the radio link
type CommsConfig struct {
	Type string
	Port string
	Baud int
}

// DisplayConfig holds the display server settings
type DisplayConfig struct {
	Width  int
	Height int
	Listen string
}

// PathsConfig holds the on-disk locations of maps, strategies and the roster
type PathsConfig struct {
	Maps       string
	Strategies string
	Cars       string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	Endpoint       string
	Insecure       bool
	MetricInterval time.Duration
}

// InfluxConfig holds the frame timing sink settings
type InfluxConfig struct {
	Enabled   bool
	URL       string
	Token     string
	Org       string
	Bucket    string
	LogsDir   string
	Retention time.Duration
}

// ScenarioConfig preselects a scenario for headless runs. Cars are
// "id:kind:strategy" triples.
type ScenarioConfig struct {
	Map  string
	Cars []string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("display.width", 1024)
	viper.SetDefault("display.height", 728)
	viper.SetDefault("display.listen", ":8088")

	viper.SetDefault("paths.maps", "./maps")
	viper.SetDefault("paths.strategies", "./strategies")
	viper.SetDefault("paths.cars", "./cars.csv")

	viper.SetDefault("agent.tickInterval", "200ms")
	viper.SetDefault("agent.manualTickInterval", "20ms")
	viper.SetDefault("agent.decisionTimeout", "0s")

	viper.SetDefault("scheduler.frameInterval", "0s")
	viper.SetDefault("scheduler.raceCompleteHold", "3s")
	viper.SetDefault("scheduler.timing", false)

	viper.SetDefault("track.scale", 1.6)

	viper.SetDefault("vision.url", "ws://localhost:8765/vision")
	viper.SetDefault("vision.calibrationTries", 5)
	viper.SetDefault("vision.frameTimeout", "100ms")

	viper.SetDefault("comms.type", "log")
	viper.SetDefault("comms.port", "/dev/rfcomm0")
	viper.SetDefault("comms.baud", 115200)

	viper.SetDefault("input.gamepad", false)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./runs")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./runs/racecontrol.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "1m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "racecontrol")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("db.maxOpenConns", 10)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "racecontrol")
	viper.SetDefault("influx.bucket", "race_timing")
	viper.SetDefault("influx.retention", "2160h")

	viper.SetDefault("scenario.map", "")
	viper.SetDefault("scenario.cars", []string{})

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "racecontrol")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metricInterval", "30s")
}

// BindFlags registers the command line overrides on fs and binds them into
// viper. Flags take precedence over the config file once fs is parsed.
func BindFlags(fs *pflag.FlagSet) error {
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("comms", "log", "radio link: log or serial")
	fs.String("storage", "memory", "run storage: memory, sqlite or postgres")
	fs.Bool("gamepad", false, "enable the gamepad for manual control")
	fs.Bool("timing", false, "record per-stage frame timing")
	fs.String("vision-url", "ws://localhost:8765/vision", "tracker websocket URL")
	fs.String("map", "", "run this map once instead of waiting for the menu")
	fs.StringSlice("car", nil, "car for --map as id:kind:strategy (repeatable)")

	bindings := map[string]string{
		"logLevel":         "log-level",
		"comms.type":       "comms",
		"storage.type":     "storage",
		"input.gamepad":    "gamepad",
		"scheduler.timing": "timing",
		"vision.url":       "vision-url",
		"scenario.map":     "map",
		"scenario.cars":    "car",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:         viper.GetString("db.host"),
			Port:         viper.GetString("db.port"),
			Username:     viper.GetString("db.username"),
			Password:     viper.GetString("db.password"),
			Database:     viper.GetString("db.database"),
			SSLMode:      viper.GetString("db.sslmode"),
			MaxOpenConns: viper.GetInt("db.maxOpenConns"),
		},
	}
}

// GetAgentConfig returns the agent section.
func GetAgentConfig() AgentConfig {
	return AgentConfig{
		TickInterval:       viper.GetDuration("agent.tickInterval"),
		ManualTickInterval: viper.GetDuration("agent.manualTickInterval"),
		DecisionTimeout:    viper.GetDuration("agent.decisionTimeout"),
	}
}

// GetSchedulerConfig returns the scheduler section.
func GetSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		FrameInterval:    viper.GetDuration("scheduler.frameInterval"),
		RaceCompleteHold: viper.GetDuration("scheduler.raceCompleteHold"),
		Timing:           viper.GetBool("scheduler.timing"),
	}
}

// GetTrackConfig returns the track section.
func GetTrackConfig() TrackConfig {
	return TrackConfig{Scale: viper.GetFloat64("track.scale")}
}

// GetVisionConfig returns the vision section.
func GetVisionConfig() VisionConfig {
	return VisionConfig{
		URL:              viper.GetString("vision.url"),
		CalibrationTries: viper.GetInt("vision.calibrationTries"),
		FrameTimeout:     viper.GetDuration("vision.frameTimeout"),
	}
}

// GetCommsConfig returns the comms section.
func GetCommsConfig() CommsConfig {
	return CommsConfig{
		Type: viper.GetString("comms.type"),
		Port: viper.GetString("comms.port"),
		Baud: viper.GetInt("comms.baud"),
	}
}

// GetDisplayConfig returns the display section.
func GetDisplayConfig() DisplayConfig {
	return DisplayConfig{
		Width:  viper.GetInt("display.width"),
		Height: viper.GetInt("display.height"),
		Listen: viper.GetString("display.listen"),
	}
}

// GetPathsConfig returns the paths section.
func GetPathsConfig() PathsConfig {
	return PathsConfig{
		Maps:       viper.GetString("paths.maps"),
		Strategies: viper.GetString("paths.strategies"),
		Cars:       viper.GetString("paths.cars"),
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
	}
}

// GetInfluxConfig returns the influx section.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		URL:       fmt.Sprintf("%s://%s:%s", viper.GetString("influx.protocol"), viper.GetString("influx.host"), viper.GetString("influx.port")),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		LogsDir:   viper.GetString("logsDir"),
		Retention: viper.GetDuration("influx.retention"),
	}
}

// GetScenarioConfig returns the preselected scenario, if any.
func GetScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		Map:  viper.GetString("scenario.map"),
		Cars: viper.GetStringSlice("scenario.cars"),
	}
}

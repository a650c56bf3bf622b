package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/target"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Web         WebConfig
	Android     AndroidConfig
	Integration IntegrationConfig
	Hosted      HostedConfig
	Capture     CaptureConfig
	Baseline    BaselineConfig
	Storage     StorageConfig
	Reports     ReportsConfig
	Database    DatabaseConfig
	Events      EventsConfig
	Metrics     MetricsConfig
	Telemetry   TelemetryConfig
	Server      ServerConfig
	Log         LogConfig
	Scenario    string
}

// WebConfig holds the web target configuration.
type WebConfig struct {
	Port                 int
	URL                  string
	AppCommand           []string
	AppDir               string
	ReadyLine            string
	ErrorMarker          string
	StartupTimeout       time.Duration
	NavigateTimeout      time.Duration
	ReadySelector        string
	ReadySelectorTimeout time.Duration
	RenderDelay          time.Duration
	Driver               string // "chromedp" or "playwright"
	Headless             bool
	Width                int
	Height               int
	ExecPath             string
}

// AndroidConfig holds the Android target configuration.
type AndroidConfig struct {
	DevicesCommand []string
	DriveCommand   []string
	Dir            string
	Device         string
	Timeout        time.Duration
}

// IntegrationConfig holds the integration test target configuration.
type IntegrationConfig struct {
	Command []string
	Dir     string
	Timeout time.Duration
}

// HostedConfig holds the hosted device farm configuration.
type HostedConfig struct {
	Service string
	Devices []target.HostedDevice
	Delay   time.Duration
}

// CaptureConfig holds scenario execution and capture timings.
type CaptureConfig struct {
	Settle          time.Duration
	SelectorTimeout time.Duration
	ActionTimeout   time.Duration
	AcquireTimeout  time.Duration
}

// BaselineConfig holds comparator configuration.
type BaselineConfig struct {
	Comparator string // "presence", "pixel" or "hash"
	Threshold  float64
	Tolerance  int
}

// StorageConfig holds blob storage configuration.
type StorageConfig struct {
	Type            string // "local" or "s3"
	OutputDir       string
	BaselineDir     string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PresignExpiry time.Duration
	ArtifactsPrefix string
	BaselinePrefix  string
	ReportsPrefix   string
}

// ReportsConfig holds report output configuration.
type ReportsConfig struct {
	Dir       string
	VisualDir string
}

// DatabaseConfig holds run history database configuration.
type DatabaseConfig struct {
	Enabled      bool
	Type         string // "sqlite", "mysql" or "postgres"
	Path         string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
}

// EventsConfig holds event publishing configuration. An empty URL disables NATS.
type EventsConfig struct {
	NATSURL       string
	SubjectPrefix string
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	Textfile string
}

// TelemetryConfig holds tracing configuration. An empty endpoint disables export.
type TelemetryConfig struct {
	Endpoint    string
	ServiceName string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// APITokenHash is a bcrypt hash guarding POST /api/v1/runs. Empty allows anyone.
	APITokenHash string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("orchestrator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// ORCHESTRATOR_WEB_PORT overrides web.port
	v.SetEnvPrefix("ORCHESTRATOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config

	config.Web.Port = v.GetInt("web.port")
	config.Web.URL = v.GetString("web.url")
	config.Web.AppCommand = v.GetStringSlice("web.app_command")
	config.Web.AppDir = v.GetString("web.app_dir")
	config.Web.ReadyLine = v.GetString("web.ready_line")
	config.Web.ErrorMarker = v.GetString("web.error_marker")
	config.Web.StartupTimeout = v.GetDuration("web.startup_timeout")
	config.Web.NavigateTimeout = v.GetDuration("web.navigate_timeout")
	config.Web.ReadySelector = v.GetString("web.ready_selector")
	config.Web.ReadySelectorTimeout = v.GetDuration("web.ready_selector_timeout")
	config.Web.RenderDelay = v.GetDuration("web.render_delay")
	config.Web.Driver = v.GetString("web.driver")
	config.Web.Headless = v.GetBool("web.headless")
	config.Web.Width = v.GetInt("web.width")
	config.Web.Height = v.GetInt("web.height")
	config.Web.ExecPath = v.GetString("web.exec_path")

	config.Android.DevicesCommand = v.GetStringSlice("android.devices_command")
	config.Android.DriveCommand = v.GetStringSlice("android.drive_command")
	config.Android.Dir = v.GetString("android.dir")
	config.Android.Device = v.GetString("android.device")
	config.Android.Timeout = v.GetDuration("android.timeout")

	config.Integration.Command = v.GetStringSlice("integration.command")
	config.Integration.Dir = v.GetString("integration.dir")
	config.Integration.Timeout = v.GetDuration("integration.timeout")

	config.Hosted.Service = v.GetString("hosted.service")
	config.Hosted.Delay = v.GetDuration("hosted.delay")
	if err := v.UnmarshalKey("hosted.devices", &config.Hosted.Devices); err != nil {
		return nil, fmt.Errorf("failed to parse hosted devices: %w", err)
	}

	config.Capture.Settle = v.GetDuration("capture.settle")
	config.Capture.SelectorTimeout = v.GetDuration("capture.selector_timeout")
	config.Capture.ActionTimeout = v.GetDuration("capture.action_timeout")
	config.Capture.AcquireTimeout = v.GetDuration("capture.acquire_timeout")

	config.Baseline.Comparator = v.GetString("baseline.comparator")
	config.Baseline.Threshold = v.GetFloat64("baseline.threshold")
	config.Baseline.Tolerance = v.GetInt("baseline.tolerance")

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.OutputDir = v.GetString("storage.output_dir")
	config.Storage.BaselineDir = v.GetString("storage.baseline_dir")
	config.Storage.S3Bucket = v.GetString("storage.s3_bucket")
	config.Storage.S3Region = v.GetString("storage.s3_region")
	config.Storage.S3Endpoint = v.GetString("storage.s3_endpoint")
	config.Storage.S3PresignExpiry = v.GetDuration("storage.s3_presign_expiry")
	config.Storage.ArtifactsPrefix = v.GetString("storage.artifacts_prefix")
	config.Storage.BaselinePrefix = v.GetString("storage.baseline_prefix")
	config.Storage.ReportsPrefix = v.GetString("storage.reports_prefix")

	config.Reports.Dir = v.GetString("reports.dir")
	config.Reports.VisualDir = v.GetString("reports.visual_dir")

	config.Database.Enabled = v.GetBool("database.enabled")
	config.Database.Type = v.GetString("database.type")
	config.Database.Path = v.GetString("database.path")
	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")

	config.Events.NATSURL = v.GetString("events.nats_url")
	config.Events.SubjectPrefix = v.GetString("events.subject_prefix")

	config.Metrics.Textfile = v.GetString("metrics.textfile")

	config.Telemetry.Endpoint = v.GetString("telemetry.endpoint")
	config.Telemetry.ServiceName = v.GetString("telemetry.service_name")

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	config.Server.APITokenHash = v.GetString("server.api_token_hash")

	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")

	config.Scenario = v.GetString("scenario")

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	web := target.DefaultWebConfig(8080)
	v.SetDefault("web.port", web.Port)
	v.SetDefault("web.url", "")
	v.SetDefault("web.app_command", []string{"flutter", "run", "-d", "chrome", "--web-renderer", "html", "--web-port", "{port}"})
	v.SetDefault("web.app_dir", "")
	v.SetDefault("web.ready_line", web.ReadyLine)
	v.SetDefault("web.error_marker", web.ErrorMarker)
	v.SetDefault("web.startup_timeout", web.StartupTimeout.String())
	v.SetDefault("web.navigate_timeout", web.NavigateTimeout.String())
	v.SetDefault("web.ready_selector", web.ReadySelector)
	v.SetDefault("web.ready_selector_timeout", web.ReadySelectorTimeout.String())
	v.SetDefault("web.render_delay", web.RenderDelay.String())
	v.SetDefault("web.driver", web.Driver)
	v.SetDefault("web.headless", web.Browser.Headless)
	v.SetDefault("web.width", web.Browser.Width)
	v.SetDefault("web.height", web.Browser.Height)
	v.SetDefault("web.exec_path", "")

	android := target.DefaultAndroidConfig()
	v.SetDefault("android.devices_command", android.DevicesCommand)
	v.SetDefault("android.drive_command", android.DriveCommand)
	v.SetDefault("android.dir", "")
	v.SetDefault("android.device", "")
	v.SetDefault("android.timeout", android.Timeout.String())

	integration := target.DefaultIntegrationConfig()
	v.SetDefault("integration.command", integration.Command)
	v.SetDefault("integration.dir", "")
	v.SetDefault("integration.timeout", integration.Timeout.String())

	hosted := target.DefaultHostedConfig()
	devices := make([]map[string]interface{}, 0, len(hosted.Devices))
	for _, d := range hosted.Devices {
		devices = append(devices, map[string]interface{}{"name": d.Name, "screenshots": d.Screenshots})
	}
	v.SetDefault("hosted.service", hosted.Service)
	v.SetDefault("hosted.devices", devices)
	v.SetDefault("hosted.delay", hosted.Delay.String())

	v.SetDefault("capture.settle", "500ms")
	v.SetDefault("capture.selector_timeout", "5s")
	v.SetDefault("capture.action_timeout", "30s")
	v.SetDefault("capture.acquire_timeout", "2m")

	v.SetDefault("baseline.comparator", "presence")
	v.SetDefault("baseline.threshold", 0.0)
	v.SetDefault("baseline.tolerance", 0)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.output_dir", "screenshots/automated")
	v.SetDefault("storage.baseline_dir", "screenshots/baseline")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_presign_expiry", "15m")
	v.SetDefault("storage.artifacts_prefix", "screenshots/automated")
	v.SetDefault("storage.baseline_prefix", "screenshots/baseline")
	v.SetDefault("storage.reports_prefix", "reports")

	v.SetDefault("reports.dir", "reports")
	v.SetDefault("reports.visual_dir", "visual-changes")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "orchestrator.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "screenshot_orchestrator")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "screenshots")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "screenshot-orchestrator")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.api_token_hash", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("scenario", "")
}

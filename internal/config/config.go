package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "playermarkers.cfg.json"

// MapConfig names a rendered map and the world it shows.
type MapConfig struct {
	Name  string `json:"name" mapstructure:"name"`
	World string `json:"world" mapstructure:"world"`
}

// SnapshotConfig selects where players.json is read from.
// File takes precedence over URL when both are set.
type SnapshotConfig struct {
	URL      string
	Path     string
	File     string
	Interval time.Duration
}

// AnimationConfig holds marker animation settings.
type AnimationConfig struct {
	Enabled   bool
	Duration  time.Duration
	ZoomLead  time.Duration
	FrameRate int
}

// MarkersConfig holds marker appearance and routing settings.
type MarkersConfig struct {
	DefaultSkin  string
	NetherPrefix string
	EndPrefix    string
	HealthScale  float64
}

// UIConfig holds host presentation settings.
type UIConfig struct {
	Title    string
	Controls bool
	Map      string
}

// ProjectionConfig selects the coordinate adapter.
type ProjectionConfig struct {
	Type      string
	Scale     float64
	Rotation  int
	OriginX   float64
	OriginZ   float64
	Longitude float64
	Latitude  float64
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings.
type SQLiteConfig struct {
	Path         string
	DumpPath     string
	DumpInterval time.Duration
}

// WebSocketConfig holds streaming storage backend settings.
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the session recorder.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DSN renders the connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// UploadConfig holds settings for uploading exported session archives.
type UploadConfig struct {
	Enabled   bool
	ServerURL string
	APIKey    string
}

// InfluxConfig holds InfluxDB metrics sink settings.
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// GraylogConfig holds GELF log output settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// NATSConfig holds the NATS event publisher settings.
type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
}

// RedisConfig holds the Redis live-position publisher settings.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// StatusConfig holds the status file settings.
type StatusConfig struct {
	Enabled  bool
	File     string
	Interval time.Duration
}

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. PLAYERMARKERS_SNAPSHOT_URL for snapshot.url.
const EnvPrefix = "PLAYERMARKERS"

// LoadEnvFile loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

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

	viper.SetDefault("snapshot.url", "http://localhost:8080")
	viper.SetDefault("snapshot.path", "players.json")
	viper.SetDefault("snapshot.file", "")
	viper.SetDefault("snapshot.interval", "5s")

	viper.SetDefault("animation.enabled", true)
	viper.SetDefault("animation.duration", "5s")
	viper.SetDefault("animation.zoomLead", "250ms")
	viper.SetDefault("animation.frameRate", 60)

	viper.SetDefault("markers.defaultSkin", "http://assets.mojang.com/SkinTemplates/steve.png")
	viper.SetDefault("markers.netherPrefix", "nether_")
	viper.SetDefault("markers.endPrefix", "end_")
	viper.SetDefault("markers.healthScale", 9)

	viper.SetDefault("maps", []map[string]any{})
	viper.SetDefault("ui.title", "Mapcrafter")
	viper.SetDefault("ui.controls", true)
	viper.SetDefault("ui.map", "")

	viper.SetDefault("projection.type", "identity")
	viper.SetDefault("projection.scale", 1.0)
	viper.SetDefault("projection.rotation", 0)
	viper.SetDefault("projection.originX", 0.0)
	viper.SetDefault("projection.originZ", 0.0)
	viper.SetDefault("projection.longitude", 0.0)
	viper.SetDefault("projection.latitude", 0.0)

	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./sessions/playermarkers.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "playermarkers")

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.serverUrl", "http://localhost:5000")
	viper.SetDefault("upload.apiKey", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "playermarkers")
	viper.SetDefault("influx.bucket", "players")

	viper.SetDefault("publish.nats.enabled", false)
	viper.SetDefault("publish.nats.url", "nats://127.0.0.1:4222")
	viper.SetDefault("publish.nats.subjectPrefix", "playermarkers")
	viper.SetDefault("publish.redis.enabled", false)
	viper.SetDefault("publish.redis.addr", "localhost:6379")
	viper.SetDefault("publish.redis.password", "")
	viper.SetDefault("publish.redis.db", 0)
	viper.SetDefault("publish.redis.key", "playermarkers:online")
	viper.SetDefault("publish.redis.ttl", "1m")

	viper.SetDefault("status.enabled", true)
	viper.SetDefault("status.file", "./logs/status.json")
	viper.SetDefault("status.interval", "10s")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "playermarkers")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
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

// GetMaps returns the configured maps in file order.
func GetMaps() ([]MapConfig, error) {
	var maps []MapConfig
	if err := viper.UnmarshalKey("maps", &maps); err != nil {
		return nil, fmt.Errorf("error decoding maps: %w", err)
	}
	for i, m := range maps {
		if m.Name == "" || m.World == "" {
			return nil, fmt.Errorf("map %d: name and world are required", i)
		}
	}
	return maps, nil
}

// GetSnapshotConfig returns the snapshot source settings.
func GetSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		URL:      viper.GetString("snapshot.url"),
		Path:     viper.GetString("snapshot.path"),
		File:     viper.GetString("snapshot.file"),
		Interval: viper.GetDuration("snapshot.interval"),
	}
}

// GetAnimationConfig returns the marker animation settings.
func GetAnimationConfig() AnimationConfig {
	return AnimationConfig{
		Enabled:   viper.GetBool("animation.enabled"),
		Duration:  viper.GetDuration("animation.duration"),
		ZoomLead:  viper.GetDuration("animation.zoomLead"),
		FrameRate: viper.GetInt("animation.frameRate"),
	}
}

// GetMarkersConfig returns the marker appearance settings.
func GetMarkersConfig() MarkersConfig {
	return MarkersConfig{
		DefaultSkin:  viper.GetString("markers.defaultSkin"),
		NetherPrefix: viper.GetString("markers.netherPrefix"),
		EndPrefix:    viper.GetString("markers.endPrefix"),
		HealthScale:  viper.GetFloat64("markers.healthScale"),
	}
}

// GetUIConfig returns the host presentation settings.
func GetUIConfig() UIConfig {
	return UIConfig{
		Title:    viper.GetString("ui.title"),
		Controls: viper.GetBool("ui.controls"),
		Map:      viper.GetString("ui.map"),
	}
}

// GetProjectionConfig returns the coordinate adapter settings.
func GetProjectionConfig() ProjectionConfig {
	return ProjectionConfig{
		Type:      viper.GetString("projection.type"),
		Scale:     viper.GetFloat64("projection.scale"),
		Rotation:  viper.GetInt("projection.rotation"),
		OriginX:   viper.GetFloat64("projection.originX"),
		OriginZ:   viper.GetFloat64("projection.originZ"),
		Longitude: viper.GetFloat64("projection.longitude"),
		Latitude:  viper.GetFloat64("projection.latitude"),
	}
}

// GetStorageConfig returns the session recorder settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetDBConfig returns the PostgreSQL connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetUploadConfig returns the session archive upload settings.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled:   viper.GetBool("upload.enabled"),
		ServerURL: viper.GetString("upload.serverUrl"),
		APIKey:    viper.GetString("upload.apiKey"),
	}
}

// GetInfluxConfig returns the InfluxDB sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF output settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetNATSConfig returns the NATS publisher settings.
func GetNATSConfig() NATSConfig {
	return NATSConfig{
		Enabled:       viper.GetBool("publish.nats.enabled"),
		URL:           viper.GetString("publish.nats.url"),
		SubjectPrefix: viper.GetString("publish.nats.subjectPrefix"),
	}
}

// GetRedisConfig returns the Redis publisher settings.
func GetRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  viper.GetBool("publish.redis.enabled"),
		Addr:     viper.GetString("publish.redis.addr"),
		Password: viper.GetString("publish.redis.password"),
		DB:       viper.GetInt("publish.redis.db"),
		Key:      viper.GetString("publish.redis.key"),
		TTL:      viper.GetDuration("publish.redis.ttl"),
	}
}

// GetStatusConfig returns the status file settings.
func GetStatusConfig() StatusConfig {
	return StatusConfig{
		Enabled:  viper.GetBool("status.enabled"),
		File:     viper.GetString("status.file"),
		Interval: viper.GetDuration("status.interval"),
	}
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aFirmae/Scribe/internal/log"
)

type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	WebSocket WebSocketConfig
	Room      RoomConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	OpTimeout  time.Duration `mapstructure:"op_timeout"`
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	CachePrefix string        `mapstructure:"cache_prefix"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type RoomConfig struct {
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
}

// Load reads configuration from ./config/config.yaml (optional) and
// environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file: rely on defaults and env vars.
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "scribe_chat")
	v.SetDefault("mongo.collection", "rooms")
	v.SetDefault("mongo.op_timeout", "5s")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_prefix", "scribe:rooms")
	v.SetDefault("redis.cache_ttl", "5s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("room.grace_period", "600s")
	v.SetDefault("room.sweep_interval", "30s")
	v.SetDefault("room.idle_ttl", "24h")
	v.SetDefault("room.reap_interval", "1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "scribe")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("mongo.uri", "MONGO_URI")
	v.BindEnv("mongo.database", "MONGO_DATABASE")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Mongo.OpTimeout = parseDuration(v, "mongo.op_timeout", 5*time.Second)
	cfg.Redis.CacheTTL = parseDuration(v, "redis.cache_ttl", 5*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Room.GracePeriod = parseDuration(v, "room.grace_period", 600*time.Second)
	cfg.Room.SweepInterval = parseDuration(v, "room.sweep_interval", 30*time.Second)
	cfg.Room.IdleTTL = parseDuration(v, "room.idle_ttl", 24*time.Hour)
	cfg.Room.ReapInterval = parseDuration(v, "room.reap_interval", time.Hour)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}

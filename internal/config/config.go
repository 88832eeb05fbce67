package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultCapacity      = 2
	defaultJobTimeout    = 30 * time.Minute
	maxPollInterval      = time.Second
	defaultPresignExpiry = 60 * time.Minute
	defaultKeyPrefix     = "transcoder:"
	defaultMaxUploadMB   = 512
)

type Config struct {
	Server   ServerConfig
	Postgres DBConfig
	Redis    RedisConfig
	S3       S3Config
	Logger   Logger
	Worker   WorkerConfig
	Encoder  EncoderConfig
	Events   EventsConfig
}

type ServerConfig struct {
	AppVersion   string
	Port         string
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxUploadMB  int64
}

// WorkerConfig sizes the slot pool and bounds each job.
type WorkerConfig struct {
	Capacity     int
	JobTimeout   time.Duration
	PollInterval time.Duration
	QueueLimit   int64
	TempDir      string
}

type DBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	PgDriver string
}

type RedisConfig struct {
	RedisAddr     string
	RedisPassword string
	DB            int
	MinIdleConns  int
	PoolSize      int
	PoolTimeout   int
	UseTLS        bool
	KeyPrefix     string
	JobTTL        time.Duration
}

type S3Config struct {
	Provider      string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	// UseSSL picks the scheme for an S3 endpoint given without one and
	// turns on TLS for minio.
	UseSSL        bool
	PresignExpiry time.Duration
}

type EncoderConfig struct {
	FFmpegPath   string
	FFprobePath  string
	AudioCodec   string
	AudioBitrate string
}

type EventsConfig struct {
	Driver   string
	Brokers  []string
	Topic    string
	AmqpURL  string
	Exchange string
}

type Logger struct {
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Encoding          string
	Level             string
}

func LoadConfig(filename string) (*viper.Viper, error) {
	// .env is optional; it only seeds the environment for AutomaticEnv.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(filename)
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFound) {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() error {
	if c.Worker.Capacity == 0 {
		c.Worker.Capacity = defaultCapacity
	}
	if c.Worker.Capacity < 1 {
		return fmt.Errorf("worker capacity must be >= 1, got %d", c.Worker.Capacity)
	}
	if c.Worker.QueueLimit < 0 {
		return fmt.Errorf("worker queue limit must be >= 0, got %d", c.Worker.QueueLimit)
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = defaultJobTimeout
	}
	if c.Worker.PollInterval <= 0 || c.Worker.PollInterval > maxPollInterval {
		c.Worker.PollInterval = maxPollInterval
	}
	if c.Worker.TempDir == "" {
		c.Worker.TempDir = filepath.Join(os.TempDir(), "transcoder")
	}

	switch c.S3.Provider {
	case "":
		c.S3.Provider = "s3"
	case "s3", "minio":
	default:
		return fmt.Errorf("unknown object store provider %q", c.S3.Provider)
	}
	if c.S3.PresignExpiry <= 0 {
		c.S3.PresignExpiry = defaultPresignExpiry
	}

	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = defaultKeyPrefix
	}
	// zero keeps terminal jobs forever
	if c.Redis.JobTTL < 0 {
		return fmt.Errorf("redis job ttl must be >= 0, got %s", c.Redis.JobTTL)
	}

	if c.Encoder.FFmpegPath == "" {
		c.Encoder.FFmpegPath = "ffmpeg"
	}
	if c.Encoder.FFprobePath == "" {
		c.Encoder.FFprobePath = "ffprobe"
	}
	// The audio codec is fixed; only the bitrate is tunable.
	c.Encoder.AudioCodec = "aac"
	if c.Encoder.AudioBitrate == "" {
		c.Encoder.AudioBitrate = "128k"
	}

	switch c.Events.Driver {
	case "", "kafka", "rabbitmq":
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}

	if c.Server.Port == "" {
		c.Server.Port = ":3000"
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	return nil
}

package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string      `yaml:"env" env:"WINSOME_ENV" env-default:"production"`
	TCPServer   TCPServer   `yaml:"tcp_server"`
	Reactor     Reactor     `yaml:"reactor"`
	Workers     Workers     `yaml:"workers"`
	HTTPServer  HTTPServer  `yaml:"http_server"`
	Multicast   Multicast   `yaml:"multicast"`
	Reward      Reward      `yaml:"reward"`
	Session     Session     `yaml:"session"`
	Persistence Persistence `yaml:"persistence"`
	PGSQL       PQSQL       `yaml:"pgsql"`
	MinIO       MinIO       `yaml:"minio"`
	Redis       Redis       `yaml:"redis"`
	Exchange    Exchange    `yaml:"exchange"`
	RateLimit   RateLimit   `yaml:"rate_limit"`
	JWTSecret   string      `yaml:"jwt_secret" env:"WINSOME_JWT_SECRET" env-default:"super_secret_key"`
}

type TCPServer struct {
	Address     string        `yaml:"address" env:"WINSOME_TCP_ADDRESS" env-default:"localhost:6666"`
	ReadTimeout time.Duration `yaml:"read_timeout" env-default:"5s"`
	MaxFrame    int           `yaml:"max_frame" env-default:"65536"`
}

type Reactor struct {
	// Poller selects the readiness set implementation: "epoll" or "portable".
	Poller string `yaml:"poller" env-default:"epoll"`
}

type Workers struct {
	Size  int `yaml:"size" env-default:"8"`
	Queue int `yaml:"queue" env-default:"1024"`
}

type HTTPServer struct {
	Address string `yaml:"address" env:"WINSOME_HTTP_ADDRESS" env-default:"localhost:8080"`
}

type Multicast struct {
	IP   string `yaml:"ip" env-default:"239.255.32.32"`
	Port int    `yaml:"port" env-default:"44444"`
	TTL  int    `yaml:"ttl" env-default:"1"`
}

type Reward struct {
	Interval         time.Duration `yaml:"interval" env-default:"1m"`
	AuthorPercentage float64       `yaml:"author_percentage" env-default:"70"`
}

type Session struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"30s"`
}

type Persistence struct {
	// Backend is one of "file", "postgres" or "minio".
	Backend  string        `yaml:"backend" env-default:"file"`
	Interval time.Duration `yaml:"interval" env-default:"30s"`
	Path     string        `yaml:"path" env-default:"data/winsome.json"`
}

type PQSQL struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-default:"postgres"`
	Password string `yaml:"password" env-default:"password"`
	DBName   string `yaml:"dbname" env-default:"winsome"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint" env-default:"localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" env-default:"minioadmin"`
	SecretAccessKey string `yaml:"secret_access_key" env-default:"minioadmin"`
	BucketName      string `yaml:"bucket_name" env-default:"winsome"`
	ObjectKey       string `yaml:"object_key" env-default:"snapshots/latest.json"`
	UseSSL          bool   `yaml:"use_ssl" env-default:"false"`
}

type Redis struct {
	// Address left empty disables rate limiting and exchange-rate caching.
	Address  string `yaml:"address" env:"WINSOME_REDIS_ADDRESS"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" env-default:"0"`
}

type Exchange struct {
	URL      string        `yaml:"url" env-default:"https://www.random.org/decimal-fractions/?num=1&dec=10&col=1&format=plain&rnd=new"`
	Timeout  time.Duration `yaml:"timeout" env-default:"3s"`
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"1m"`
}

type RateLimit struct {
	Posts     int64 `yaml:"posts" env-default:"20"`
	Votes     int64 `yaml:"votes" env-default:"60"`
	Comments  int64 `yaml:"comments" env-default:"60"`
	Rewins    int64 `yaml:"rewins" env-default:"30"`
	Registers int64 `yaml:"registers" env-default:"10"`
}

// Load reads the file at path, overlaying environment variables.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist at path: %s", path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if cfg.Reward.AuthorPercentage < 0 || cfg.Reward.AuthorPercentage > 100 {
		return nil, fmt.Errorf("reward.author_percentage must be within 0..100, got %v", cfg.Reward.AuthorPercentage)
	}
	if cfg.Workers.Size < 1 {
		return nil, fmt.Errorf("workers.size must be positive, got %d", cfg.Workers.Size)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	var configPath string

	configPath = os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to config file")
		flag.Parse()
		configPath = *flags

		if configPath == "" {
			log.Fatal("config path must be provided")
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	return cfg
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"SRLevels/internal/services/levels"
	"SRLevels/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Logging     struct {
		Level            string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format           string        `yaml:"format" default:"console" validate:"oneof=console json"`
		Output           string        `yaml:"output" default:"stdout"`
		CollectTopic     string        `yaml:"collect_topic"`
		CollectInterval  time.Duration `yaml:"collect_interval" default:"30s"`
		CollectThreshold int           `yaml:"collect_threshold" default:"100"`
	} `yaml:"logging"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type" default:"clickhouse" validate:"oneof=clickhouse kafka both"`
		BatchSize    int           `yaml:"batch_size" default:"50" validate:"gte=1"`
		BufferSize   int           `yaml:"buffer_size" default:"1000" validate:"gte=1"`
		RetryMax     int           `yaml:"retry_max" default:"3" validate:"gte=0"`
		RetryBackoff time.Duration `yaml:"retry_backoff" default:"500ms"`
	} `yaml:"backend"`
	Analysis struct {
		Exchanges     []string      `yaml:"exchanges" default:"[\"binance\"]" validate:"min=1,dive,oneof=binance bybit"`
		MarketTypes   []string      `yaml:"market_types" default:"[\"future\"]" validate:"min=1,dive,oneof=spot future"`
		Timeframes    []string      `yaml:"timeframes" default:"[\"1h\",\"4h\"]" validate:"min=1,dive,oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
		Interval      time.Duration `yaml:"interval" default:"4h"`
		RunOnStartup  bool          `yaml:"run_on_startup"`
		Concurrency   int           `yaml:"concurrency" default:"3" validate:"gte=1,lte=64"`
		BatchSize     int           `yaml:"batch_size" default:"20" validate:"gte=1"`
		CandlesTotal  int           `yaml:"candles_total" default:"2000" validate:"gte=50"`
		JobTimeout    time.Duration `yaml:"job_timeout" default:"2m"`
		MaxSymbols    int           `yaml:"max_symbols"`
		MaxErrorsKept int           `yaml:"max_errors_kept" default:"10"`
	} `yaml:"analysis"`
	Levels   levels.Config `yaml:"levels"`
	Exchange struct {
		Timeout      time.Duration `yaml:"timeout" default:"30s"`
		RetryMax     int           `yaml:"retry_max" default:"3" validate:"gte=1"`
		RetryMinWait time.Duration `yaml:"retry_min_wait" default:"4s"`
		RetryMaxWait time.Duration `yaml:"retry_max_wait" default:"10s"`
		FetchBatch   int           `yaml:"fetch_batch" default:"1000" validate:"gte=1,lte=1000"`
		SymbolsTTL   time.Duration `yaml:"symbols_ttl" default:"1h"`
		Binance      struct {
			SpotURL    string  `yaml:"spot_url" default:"https://api.binance.com"`
			FuturesURL string  `yaml:"futures_url" default:"https://fapi.binance.com"`
			RPS        float64 `yaml:"rps" default:"10"`
			Burst      int     `yaml:"burst" default:"20"`
		} `yaml:"binance"`
		Bybit struct {
			BaseURL string  `yaml:"base_url" default:"https://api.bybit.com"`
			RPS     float64 `yaml:"rps" default:"8"`
			Burst   int     `yaml:"burst" default:"10"`
		} `yaml:"bybit"`
	} `yaml:"exchange"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		ResultsTopic string   `yaml:"results_topic" default:"levels.results"`
		CandlesTopic string   `yaml:"candles_topic" default:"levels.candles"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"srlevels"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"levels.candles.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"srlevels"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		CandlesDatabase  string        `yaml:"candles_database" default:"market"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		Prefix       string        `yaml:"prefix" default:"srlevels"`
		ResultTTL    time.Duration `yaml:"result_ttl" default:"10m"`
		LocalSize    int           `yaml:"local_size" default:"1000" validate:"gte=1"`
		LocalTTL     time.Duration `yaml:"local_ttl" default:"30s"`
		QueueName    string        `yaml:"queue_name" default:"analysis"`
		QueueWorkers int           `yaml:"queue_workers" default:"2"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. Unset fields take the
// defaults declared in the struct tags.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("EXCHANGES"); v != "" {
		c.Analysis.Exchanges = splitList(v)
	}
	if v := getenv("MARKET_TYPES"); v != "" {
		c.Analysis.MarketTypes = splitList(v)
	}
	if v := getenv("TIMEFRAMES"); v != "" {
		c.Analysis.Timeframes = splitList(v)
	}
	if v := getenv("ANALYSIS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ANALYSIS_INTERVAL: %w", err)
		}
		c.Analysis.Interval = d
	}
	if v := getenv("MAX_CONCURRENT_TASKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_CONCURRENT_TASKS: %w", err)
		}
		c.Analysis.Concurrency = n
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Analysis.Interval <= 0 {
		return fmt.Errorf("analysis.interval must be positive")
	}
	if (c.Backend.Type == "kafka" || c.Backend.Type == "both") && (!c.Kafka.Enabled || len(c.Kafka.Brokers) == 0) {
		return fmt.Errorf("backend.type %q requires kafka.enabled and kafka.brokers", c.Backend.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

// splitList lowercases the entries, which suits exchange and timeframe names.
func splitList(v string) []string {
	parts := util.SplitList(v)
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return parts
}

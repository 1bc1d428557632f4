package config

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Epost      EpostConfig      `yaml:"epost"`
	ParcelGate ParcelGateConfig `yaml:"parcelgate"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	NotificationsTopicName string `yaml:"notifications_topic_name"`
	CommandsTopicName      string `yaml:"commands_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EpostConfig holds the carrier endpoint and contract credentials.
type EpostConfig struct {
	BaseURL         string `yaml:"base_url"`
	TrackingPageURL string `yaml:"tracking_page_url"`

	APIKey     string `yaml:"api_key"`
	CipherKey  string `yaml:"cipher_key"`
	CustomerNo string `yaml:"customer_no"`

	// TestMode sends testYn=Y on every carrier call.
	TestMode bool `yaml:"test_mode"`
	// AllowMock permits the synthetic gateway when credentials are absent.
	// Never enabled in production deployments.
	AllowMock bool `yaml:"allow_mock"`
}

type ParcelGateConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	ShipmentCacheTTLSeconds int `yaml:"shipment_cache_ttl_seconds"`

	WorkerHTTPAddr            string `yaml:"worker_http_addr"`
	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int    `yaml:"worker_batch_size"`
	WorkerConcurrency         int    `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int    `yaml:"worker_lease_seconds"`

	WorkerRateLimitAPIPerMinute    int `yaml:"worker_rate_limit_api_per_minute"`
	WorkerRateLimitScrapePerMinute int `yaml:"worker_rate_limit_scrape_per_minute"`

	// Worker scheduling (optional). If not set, defaults apply:
	// active shipments: 30..120 minutes, booked: 60 minutes,
	// backoff: 5/15/30/60 minutes.
	WorkerNextCheckActiveMinSeconds int `yaml:"worker_next_check_active_min_seconds"`
	WorkerNextCheckActiveMaxSeconds int `yaml:"worker_next_check_active_max_seconds"`
	WorkerNextCheckBookedSeconds    int `yaml:"worker_next_check_booked_seconds"`
	WorkerBackoff1Seconds           int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds           int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds           int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds           int `yaml:"worker_backoff_4_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// MissingError names the credential key that was absent or blank.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required carrier credential: epost.%s", e.Key)
}

// Credentials are the resolved carrier contract values. CustomerNo is
// whitespace-trimmed; a blank value counts as absent.
type Credentials struct {
	APIKey     string
	CipherKey  string
	CustomerNo string
}

// Credentials validates and returns the carrier credentials, or a
// MissingError for the first absent key. Pure; cheap enough to call per
// request.
func (c EpostConfig) Credentials() (Credentials, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return Credentials{}, &MissingError{Key: "api_key"}
	}
	if strings.TrimSpace(c.CipherKey) == "" {
		return Credentials{}, &MissingError{Key: "cipher_key"}
	}
	customerNo := strings.TrimSpace(c.CustomerNo)
	if customerNo == "" {
		return Credentials{}, &MissingError{Key: "customer_no"}
	}
	return Credentials{
		APIKey:     c.APIKey,
		CipherKey:  c.CipherKey,
		CustomerNo: customerNo,
	}, nil
}

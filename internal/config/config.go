package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Chain    ChainConfig    `json:"chain" yaml:"chain"`
	Contract ContractConfig `json:"contract" yaml:"contract"`
	Security SecurityConfig `json:"security" yaml:"security"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Cache    CacheConfig    `json:"cache" yaml:"cache"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string   `json:"host" yaml:"host"`
	Port         int      `json:"port" yaml:"port"`
	ReadTimeout  Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// DatabaseConfig represents the audit database. An empty Host disables it.
type DatabaseConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	User           string   `json:"user" yaml:"user"`
	Password       string   `json:"password" yaml:"password"`
	DBName         string   `json:"db_name" yaml:"db_name"`
	SSLMode        string   `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConnections int      `json:"max_connections" yaml:"max_connections"`
	MaxIdleConns   int      `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxLifetime    Duration `json:"max_lifetime" yaml:"max_lifetime"`
}

// ChainConfig describes how the injectived binary is invoked
type ChainConfig struct {
	Binary            string   `json:"binary" yaml:"binary"`
	WorkDir           string   `json:"work_dir" yaml:"work_dir"`
	FromAddress       string   `json:"from_address" yaml:"from_address"`
	ChainID           string   `json:"chain_id" yaml:"chain_id"`
	NodeURL           string   `json:"node_url" yaml:"node_url"`
	Fees              string   `json:"fees" yaml:"fees"`
	Gas               string   `json:"gas" yaml:"gas"`
	KeyringPassphrase string   `json:"keyring_passphrase" yaml:"keyring_passphrase"`
	AllowStderr       bool     `json:"allow_stderr" yaml:"allow_stderr"`
	CommandTimeout    Duration `json:"command_timeout" yaml:"command_timeout"`
	MaxConcurrent     int      `json:"max_concurrent" yaml:"max_concurrent"`
}

// ContractConfig holds the deployed contract the typed endpoints talk to
type ContractConfig struct {
	Address     string `json:"address" yaml:"address"`
	ListLimit   int    `json:"list_limit" yaml:"list_limit"`
	IPFSGateway string `json:"ipfs_gateway" yaml:"ipfs_gateway"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret    string  `json:"jwt_secret" yaml:"jwt_secret"`
	RateLimitRPS float64 `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateBurst    int     `json:"rate_burst" yaml:"rate_burst"`
}

// LoggingConfig
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// CacheConfig controls listing caching. Zero TTL disables the cache and an empty
// RefreshSpec disables the background refresher.
type CacheConfig struct {
	TTL         Duration `json:"ttl" yaml:"ttl"`
	RefreshSpec string   `json:"refresh_spec" yaml:"refresh_spec"`
}

// Default returns the configuration used when no file or environment overrides are present.
// Chain values match the Injective testnet deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(2 * time.Minute),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Database: DatabaseConfig{
			Port:           5432,
			DBName:         "zk_carbon",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    Duration(30 * time.Minute),
		},
		Chain: ChainConfig{
			Binary:      "injectived",
			WorkDir:     "../contracts",
			FromAddress: "inj1t0whglsm4hkdngh8ccwlgtrz96ye54jwv8p96s",
			ChainID:     "injective-888",
			NodeURL:     "https://k8s.testnet.tm.injective.network:443",
			Fees:        "1000000000000000inj",
			Gas:         "2000000",
		},
		Contract: ContractConfig{
			Address:     "inj1nyv7fs5awuuarfgxqua89srt3064ef786zfhjg",
			ListLimit:   10,
			IPFSGateway: "https://ipfs.io/ipfs/",
		},
		Security: SecurityConfig{
			RateBurst: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := decode(configPath, data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	workDir, err := filepath.Abs(config.Chain.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chain work dir: %w", err)
	}
	config.Chain.WorkDir = workDir

	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return json.Unmarshal(data, config)
	}
}

// Validate checks the values the service cannot start without
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Chain.Binary == "" {
		return fmt.Errorf("chain binary is required")
	}
	if c.Chain.MaxConcurrent < 0 {
		return fmt.Errorf("chain max_concurrent must not be negative")
	}
	if c.Contract.ListLimit <= 0 {
		return fmt.Errorf("contract list_limit must be positive")
	}
	return nil
}

func overrideWithEnv(config *Config) {
	setString(&config.Server.Host, "SERVER_HOST")
	setInt(&config.Server.Port, "SERVER_PORT")

	setString(&config.Database.Host, "DATABASE_HOST")
	setInt(&config.Database.Port, "DATABASE_PORT")
	setString(&config.Database.User, "DATABASE_USER")
	setString(&config.Database.Password, "DATABASE_PASSWORD")
	setString(&config.Database.DBName, "DATABASE_DBNAME")
	setString(&config.Database.SSLMode, "DATABASE_SSLMODE")
	if v := os.Getenv("DATABASE_MAX_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Database.MaxLifetime = Duration(d)
		}
	}

	setString(&config.Chain.Binary, "CHAIN_BINARY")
	setString(&config.Chain.WorkDir, "CHAIN_WORK_DIR")
	setString(&config.Chain.FromAddress, "CHAIN_FROM_ADDRESS")
	setString(&config.Chain.ChainID, "CHAIN_ID")
	setString(&config.Chain.NodeURL, "CHAIN_NODE_URL")
	setString(&config.Chain.Fees, "CHAIN_FEES")
	setString(&config.Chain.Gas, "CHAIN_GAS")
	setString(&config.Chain.KeyringPassphrase, "KEYRING_PASSPHRASE")
	setInt(&config.Chain.MaxConcurrent, "CHAIN_MAX_CONCURRENT")
	if v := os.Getenv("CHAIN_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Chain.CommandTimeout = Duration(d)
		}
	}

	setString(&config.Contract.Address, "CONTRACT_ADDRESS")
	setInt(&config.Contract.ListLimit, "CONTRACT_LIST_LIMIT")

	setString(&config.Security.JWTSecret, "JWT_SECRET")
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Security.RateLimitRPS = f
		}
	}

	setString(&config.Logging.Level, "LOG_LEVEL")
	setString(&config.Logging.Format, "LOG_FORMAT")

	setString(&config.Cache.RefreshSpec, "CACHE_REFRESH_SPEC")
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Cache.TTL = Duration(d)
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// GetDatabaseURL returns the database connection string with credentials escaped
func (c *DatabaseConfig) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// Enabled reports whether an audit database is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

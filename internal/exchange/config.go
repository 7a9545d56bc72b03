package exchange

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/quantra-lab/futuresbot/pkg/errors"
)

const (
	// DefaultTestnetBaseURL is the Binance USDT-M futures testnet endpoint.
	DefaultTestnetBaseURL = "https://testnet.binancefuture.com"
	// DefaultRecvWindow is the signed-request timestamp tolerance in milliseconds.
	DefaultRecvWindow = 5000
	// DefaultLogPath is where the rotating audit log is written.
	DefaultLogPath = "bot.log"
)

// Config contains connection settings for the Binance futures gateway.
type Config struct {
	ApiKey     string `yaml:"api_key" json:"apiKey" jsonschema:"title=API Key,description=Binance API key" validate:"required"`
	SecretKey  string `yaml:"secret_key" json:"secretKey" jsonschema:"title=Secret Key,description=Binance API secret key" validate:"required"`
	BaseURL    string `yaml:"base_url" json:"baseUrl" jsonschema:"title=Base URL,description=Override for the REST endpoint"`
	UseTestnet bool   `yaml:"use_testnet" json:"useTestnet" jsonschema:"title=Use Testnet,description=Connect to the futures testnet"`
	RecvWindow int64  `yaml:"recv_window" json:"recvWindow" jsonschema:"title=Receive Window,description=Signed request tolerance in ms" validate:"gte=0"`
	LogPath    string `yaml:"log_path" json:"logPath" jsonschema:"title=Log Path,description=Rotating audit log file"`
}

// Validate validates the Config struct.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid gateway config", err)
	}

	return nil
}

// LoadConfig reads a YAML config file if path is non-empty, then applies
// environment variable overrides (BINANCE_API_KEY, BINANCE_API_SECRET,
// TESTNET_BASE, RECV_WINDOW, LOG_PATH) and defaults. The result is
// validated before use.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		ApiKey:     "",
		SecretKey:  "",
		BaseURL:    "",
		UseTestnet: true,
		RecvWindow: DefaultRecvWindow,
		LogPath:    DefaultLogPath,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
		}

		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config file %s", path)
		}
	}

	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		config.ApiKey = v
	}

	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		config.SecretKey = v
	}

	if v := os.Getenv("TESTNET_BASE"); v != "" {
		config.BaseURL = v
	}

	if v := os.Getenv("RECV_WINDOW"); v != "" {
		recvWindow, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "RECV_WINDOW must be an integer", err)
		}

		config.RecvWindow = recvWindow
	}

	if v := os.Getenv("LOG_PATH"); v != "" {
		config.LogPath = v
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

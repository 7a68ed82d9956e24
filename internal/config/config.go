package config

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stela-network/stela-indexer/common"
	stelaconfig "github.com/stela-network/stela-indexer/modules/stela/config"
	"github.com/stela-network/stela-indexer/modules/stela/starknet"
	"github.com/stela-network/stela-indexer/pkg/logger"
	"github.com/stela-network/stela-indexer/pkg/logger/slogx"
	"github.com/stela-network/stela-indexer/pkg/middleware/requestcontext"
	"github.com/stela-network/stela-indexer/pkg/middleware/requestlogger"
)

var (
	configOnce sync.Once
	config     = &Config{
		Logger: logger.Config{
			Output: "text",
		},
		Network: common.NetworkMainnet,
		HTTPServer: HTTPServer{
			Port: 8080,
		},
	}
)

type Config struct {
	Logger        logger.Config   `mapstructure:"logger"`
	Network       common.Network  `mapstructure:"network"`
	EnableModules []string        `mapstructure:"enable_modules"`
	HTTPServer    HTTPServer      `mapstructure:"http_server"`
	APIOnly       bool            `mapstructure:"api_only"`
	Starknet      starknet.Config `mapstructure:"starknet"`
	Modules       Modules         `mapstructure:"modules"`
}

type HTTPServer struct {
	Port      int                               `mapstructure:"port"`
	Logger    requestlogger.Config              `mapstructure:"logger"`
	RequestIP requestcontext.WithClientIPConfig `mapstructure:"request_ip"`
}

type Modules struct {
	Stela stelaconfig.Config `mapstructure:"stela"`
}

// BindPFlag binds a command-line flag to a configuration key.
func BindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		logger.Panic("Failed to bind flag to configuration", slogx.Error(err), slogx.String("key", key))
	}
}

// Parse reads the configuration once, from the given file when set and
// from `./config.yaml` plus environment variables otherwise.
func Parse(configFile string) Config {
	ctx := logger.WithContext(context.Background(), slog.String("package", "config"))
	configOnce.Do(func() {
		if configFile != "" {
			viper.SetConfigFile(configFile)
		} else {
			viper.AddConfigPath("./")
			viper.SetConfigName("config")
		}

		viper.AutomaticEnv()
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		if err := viper.ReadInConfig(); err != nil {
			var errNotfound viper.ConfigFileNotFoundError
			if errors.As(err, &errNotfound) {
				logger.WarnContext(ctx, "config file not found, use default value", slogx.Error(err))
			} else {
				logger.PanicContext(ctx, "invalid config file", slogx.Error(err))
			}
		}

		if err := viper.Unmarshal(&config); err != nil {
			logger.PanicContext(ctx, "failed to unmarshal config", slogx.Error(err))
		}
	})

	return *config
}

// Load returns the parsed configuration. Parse must have run first;
// calling Load before Parse falls back to defaults and environment
// variables only.
func Load() Config {
	return Parse("")
}

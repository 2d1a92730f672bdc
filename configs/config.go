package configs

import (
	"errors"
	"time"

	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	JWT struct {
		SECRET string `mapstructure:"secret"`
	} `mapstructure:"jwt"`
	Paystack struct {
		SecretKey string `mapstructure:"secret_key"`
		BaseURL   string `mapstructure:"base_url"`
	} `mapstructure:"paystack"`
	Sweep struct {
		Interval   time.Duration `mapstructure:"interval"`
		StuckAfter time.Duration `mapstructure:"stuck_after"`
	} `mapstructure:"sweep"`
}

var AppConfig Config

func LoadConfig() {
	viper.AddConfigPath("./configs")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("paystack.base_url", "https://api.paystack.co")
	viper.SetDefault("sweep.interval", "10m")
	viper.SetDefault("sweep.stuck_after", "30m")

	viper.AutomaticEnv()

	var fileLookupError viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil {
		if errors.As(err, &fileLookupError) {
			logger.Log.Fatal("config file not found", zap.Error(err))
		}
		logger.Log.Fatal("failed to read config", zap.Error(err))
	}

	viper.Unmarshal(&AppConfig)
}

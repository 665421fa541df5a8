package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

type HazelConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Workdir  string `mapstructure:"workdir"`
		Base     string `mapstructure:"base"`
		PoolSize int    `mapstructure:"pool_size"`
		RedoLog  bool   `mapstructure:"redo_log"`
	} `mapstructure:"storage"`

	Index struct {
		Buckets uint64 `mapstructure:"buckets"`
	} `mapstructure:"index"`
}

func LoadConfig(path string) (*HazelConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("storage.base", "hazel.db")
	v.SetDefault("storage.pool_size", 128)
	v.SetDefault("index.buckets", 64)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg HazelConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

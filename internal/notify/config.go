package notify

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Enabled        bool   `mapstructure:"Enabled"`
	SendgridAPIKey string `mapstructure:"SendgridAPIKey"`
	FromName       string `mapstructure:"FromName"`
	FromEmail      string `mapstructure:"FromEmail"`
	AdminEmail     string `mapstructure:"AdminEmail"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.BindEnv("SendgridAPIKey", "SENDGRID_API_KEY")
	v.BindEnv("AdminEmail", "ADMIN_EMAIL")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables for notifications: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal notify config: %w", err)
	}

	if cfg.SendgridAPIKey == "" {
		cfg.SendgridAPIKey = v.GetString("SENDGRID_API_KEY")
	}
	if cfg.AdminEmail == "" {
		cfg.AdminEmail = v.GetString("ADMIN_EMAIL")
	}
	if cfg.FromName == "" {
		cfg.FromName = "Blacx Upload System"
	}

	// Уведомления включаются только при полном наборе полей
	if cfg.Enabled {
		if cfg.SendgridAPIKey == "" || cfg.FromEmail == "" || cfg.AdminEmail == "" {
			return nil, fmt.Errorf("notifications enabled but SendgridAPIKey, FromEmail or AdminEmail is missing")
		}
	}

	return &cfg, nil
}

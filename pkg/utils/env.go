package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoadConfig reads a .env file (if present) and binds environment variables
// into viper so flags and env can be resolved with the same keys.
func LoadConfig(path string) {
	envFile := filepath.Join(path, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logrus.Warnf("[CONFIG] Failed to load %s: %v", envFile, err)
		}
	}

	viper.AutomaticEnv()
}

// CreateFolder makes sure every given folder exists.
func CreateFolder(folders ...string) error {
	for _, folder := range folders {
		if err := os.MkdirAll(folder, 0755); err != nil {
			return err
		}
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// newViper builds a Viper instance scoped to a single config file, with
// OTA_-prefixed environment variables overriding file values and
// defaults filling the rest. Precedence: ENV > file > defaults.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(ConfigType)

	v.SetDefault("check_interval", DefaultCheckInterval.String())
	v.SetDefault("max_retries", DefaultMaxRetries)
	v.SetDefault("download_timeout", DefaultDownloadTimeout.String())
	v.SetDefault("mdns_service", DefaultMDNSService)
	v.SetDefault("fallback_server", "")
	v.SetDefault("skip_format_check", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("working_dir", ".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		// Absent config file: fall back to defaults + environment only.
	}

	return v, nil
}

// decodeHook teaches Viper's Unmarshal to turn "10m"/"90s" duration
// strings into time.Duration, the same shape the teacher's CLI flags use.
func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
}

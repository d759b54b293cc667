// Package config loads the static INI configuration surface: pool sizing,
// logging, the dashboard port, and the per-provider source sections.
package config

import (
	"os"
	"strconv"

	"gopkg.in/ini.v1"

	"proxyfleet/internal/shared/types"
)

// LoadIni loads the behavior configuration file into cfg, then applies
// secret overrides from the environment so vendor tokens never need to
// live in the checked-in INI file.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	overrideFromEnvString(&cfg.OculusConf.OrderToken, "OCULUS_ORDER_TOKEN")
	overrideFromEnvString(&cfg.ProxyMeshConf.Password, "PROXYMESH_PASSWORD")
	overrideFromEnvInt(&cfg.PoolConf.TargetSize, "POOL_TARGET_SIZE")
	return nil
}

func overrideFromEnvString(target *string, envName string) {
	if v := os.Getenv(envName); v != "" {
		*target = v
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

package config

import (
	"fmt"
	"os"
	"strings"

	ini "gopkg.in/ini.v1"

	"gorealm/internal/shared/types"
)

// LoadIni loads the configuration file into cfg. Every section whose
// name starts with "relay" becomes one RelayConf entry.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}

	if err := iniFile.Section("log").MapTo(&cfg.LogConf); err != nil {
		return fmt.Errorf("failed to map [log] section: %w", err)
	}

	cfg.Relays = cfg.Relays[:0]
	for _, section := range iniFile.Sections() {
		if !strings.HasPrefix(section.Name(), "relay") {
			continue
		}
		rc := types.RelayConf{
			Listen:    "127.0.0.1:0",
			Transport: "tcp",
		}
		if err := section.MapTo(&rc); err != nil {
			return fmt.Errorf("failed to map [%s] section: %w", section.Name(), err)
		}
		cfg.Relays = append(cfg.Relays, rc)
	}

	overrideFromEnv(&cfg.LogConf.Level, "GOREALM_LOG_LEVEL")

	return nil
}

// overrideFromEnv is a private helper for env-driven deployments.
func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

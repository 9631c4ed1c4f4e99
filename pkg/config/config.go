// pkg/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/spf13/viper"

	"github.com/alexclairr/imageguard/internal/configdef"
	"github.com/alexclairr/imageguard/pkg/constant"
)

// DefaultPath is where the configuration lives, relative to the repository
// root.
const DefaultPath = ".imageguard/conf.ini"

const envPrefix = "IMAGEGUARD"

// Config resolves every key from, in increasing precedence: the built-in
// defaults, conf.ini, and IMAGEGUARD_<SECTION>_<KEY> environment variables.
type Config struct {
	vp   *viper.Viper
	path string
}

// NewConfig loads filePath, creating it with the defaults and their
// comments when it does not exist. A file that exists but does not parse
// is an error.
func NewConfig(filePath string) (*Config, error) {
	vp := viper.New()
	for _, d := range configdef.AllSettings {
		vp.SetDefault(d.Key.String(), d.Value)
	}

	iniCfg, err := ini.Load(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: parse config file '%s': %v", constant.ErrInvalidConfig, filePath, err)
		}
		log.Printf("[Config] %s not found, creating it with defaults", filePath)
		if err := createDefaultConfigFile(filePath); err != nil {
			log.Printf("[Config] could not create %s: %v; using built-in defaults and environment only", filePath, err)
		}
	}

	if iniCfg != nil {
		for _, section := range iniCfg.Sections() {
			for _, key := range section.Keys() {
				viperKey := fmt.Sprintf("%s.%s", section.Name(), key.Name())
				if section.Name() == ini.DefaultSection {
					viperKey = key.Name()
				}
				vp.Set(viperKey, key.Value())
			}
		}
	}

	envReplacer := strings.NewReplacer(".", "_")
	for _, d := range configdef.AllSettings {
		envVarName := fmt.Sprintf("%s_%s", envPrefix, envReplacer.Replace(strings.ToUpper(d.Key.String())))
		if value, found := os.LookupEnv(envVarName); found {
			vp.Set(d.Key.String(), value)
			log.Printf("[Config] %s overrides '%s'", envVarName, d.Key)
		}
	}

	return &Config{vp: vp, path: filePath}, nil
}

// Path is the file the configuration was read from.
func (c *Config) Path() string { return c.path }

func (c *Config) GetString(key constant.SettingKey) string {
	return strings.TrimSpace(c.vp.GetString(key.String()))
}

func (c *Config) GetInt(key constant.SettingKey) (int, error) {
	s := c.GetString(key)
	var v int
	if _, err := fmt.Sscan(s, &v); err != nil {
		return 0, fmt.Errorf("%w: %s = %q is not an integer", constant.ErrInvalidConfig, key, s)
	}
	return v, nil
}

func (c *Config) GetFloat(key constant.SettingKey) (float64, error) {
	s := c.GetString(key)
	var v float64
	if _, err := fmt.Sscan(s, &v); err != nil {
		return 0, fmt.Errorf("%w: %s = %q is not a number", constant.ErrInvalidConfig, key, s)
	}
	return v, nil
}

func (c *Config) GetBool(key constant.SettingKey) bool {
	return c.vp.GetBool(key.String())
}

func (c *Config) GetDuration(key constant.SettingKey) (time.Duration, error) {
	s := c.GetString(key)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s = %q is not a duration", constant.ErrInvalidConfig, key, s)
	}
	return d, nil
}

// GetList splits a comma separated value, dropping empty items.
func (c *Config) GetList(key constant.SettingKey) []string {
	var out []string
	for _, item := range strings.Split(c.GetString(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// createDefaultConfigFile writes every known key with its default value,
// grouped by section.
func createDefaultConfigFile(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f := ini.Empty()
	for _, d := range configdef.AllSettings {
		sectionName, keyName, ok := strings.Cut(d.Key.String(), ".")
		if !ok {
			sectionName, keyName = ini.DefaultSection, d.Key.String()
		}
		key, err := f.Section(sectionName).NewKey(keyName, d.Value)
		if err != nil {
			return fmt.Errorf("add default '%s': %w", d.Key, err)
		}
		key.Comment = "# " + d.Comment
	}
	return f.SaveTo(filePath)
}

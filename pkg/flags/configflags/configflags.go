package configflags

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	v1 "github.com/openshift/culprit/pkg/apis/config/v1"
)

// ConfigFlags holds the location of the culprit configuration file.
type ConfigFlags struct {
	Path string
}

func NewConfigFlags() *ConfigFlags {
	return &ConfigFlags{Path: os.Getenv("CULPRIT_CONFIG")}
}

func (f *ConfigFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Path,
		"config",
		f.Path,
		"Configuration file for culprit; without one the public CI services are queried")
}

func (f *ConfigFlags) GetConfig() (*v1.CulpritConfig, error) {
	if f.Path == "" {
		return v1.Default(), nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.WithMessage(err, "could not load config")
	}
	return Parse(data)
}

// Parse decodes a configuration file and fills its defaults.
func Parse(data []byte) (*v1.CulpritConfig, error) {
	var config v1.CulpritConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.WithMessage(err, "couldn't unmarshal config")
	}
	if len(config.Sources) == 0 {
		return nil, errors.New("config must list at least one data source")
	}
	config.ApplyDefaults()
	return &config, nil
}

package supervisor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type servicesFile struct {
	Services []ServiceSpec `yaml:"services"`
}

// LoadServices reads a YAML document declaring an ordered service
// list (the fleet's startup order) from path.
func LoadServices(path string) ([]ServiceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("supervisor: read services file %q: %w", path, err)
	}
	var f servicesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("supervisor: parse services file %q: %w", path, err)
	}
	return f.Services, nil
}

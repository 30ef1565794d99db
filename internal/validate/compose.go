package validate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ComposeFile is the subset of a compose definition the validator inspects.
type ComposeFile struct {
	Services map[string]ComposeService `yaml:"services"`
	Networks map[string]yaml.Node      `yaml:"networks"`
}

type ComposeService struct {
	Image    string   `yaml:"image"`
	Networks []string `yaml:"networks"`
}

// ParseCompose reads and parses a compose file, reporting syntax errors.
func ParseCompose(path string) (*ComposeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	var cf ComposeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse compose file: %w", err)
	}
	return &cf, nil
}

// MissingServices returns which of the required services are absent from the
// compose definition, in input order.
func (cf *ComposeFile) MissingServices(required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := cf.Services[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// MissingNetworks returns which of the expected isolated networks are not
// declared.
func (cf *ComposeFile) MissingNetworks(expected []string) []string {
	var missing []string
	for _, name := range expected {
		if _, ok := cf.Networks[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

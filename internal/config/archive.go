package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ArchiveData is the static input of the archive: where the diary lives,
// which cities to load and how requests present themselves.
type ArchiveData struct {
	BaseURL    string            `yaml:"base_url"`
	Cities     []City            `yaml:"cities"`
	Headers    map[string]string `yaml:"headers"`
	UserAgents []string          `yaml:"user_agents"`
	// WindCodes explains the direction tokens stored in records.
	WindCodes map[string]string `yaml:"wind_codes"`
}

// City maps a diary URL code to the name records are stored under. The
// first city is the default one.
type City struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// CityNames returns the configured names in file order.
func (a ArchiveData) CityNames() []string {
	names := make([]string, len(a.Cities))
	for i, c := range a.Cities {
		names[i] = c.Name
	}
	return names
}

func LoadArchiveData(path string) (ArchiveData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ArchiveData{}, fmt.Errorf("failed to read archive config %s: %w", path, err)
	}

	var a ArchiveData
	if err := yaml.Unmarshal(data, &a); err != nil {
		return ArchiveData{}, fmt.Errorf("failed to parse archive config %s: %w", path, err)
	}
	if err := a.validate(); err != nil {
		return ArchiveData{}, fmt.Errorf("archive config %s: %w", path, err)
	}
	return a, nil
}

func (a ArchiveData) validate() error {
	if a.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if len(a.Cities) == 0 {
		return errors.New("at least one city is required")
	}
	codes := make(map[string]bool, len(a.Cities))
	names := make(map[string]bool, len(a.Cities))
	for _, c := range a.Cities {
		if c.Code == "" || c.Name == "" {
			return fmt.Errorf("city %+v needs both code and name", c)
		}
		if codes[c.Code] || names[c.Name] {
			return fmt.Errorf("duplicate city %s (%s)", c.Name, c.Code)
		}
		codes[c.Code], names[c.Name] = true, true
	}
	return nil
}

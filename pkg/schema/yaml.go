package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a schema override
type File struct {
	Fields     []FieldSpec `yaml:"fields"`
	Currencies []Currency  `yaml:"currencies"`
}

// LoadYAML reads a field table and currency table from a YAML file.
// Either section may be omitted, in which case the defaults are used.
func LoadYAML(path string) (*Schema, *CurrencyTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses the YAML form of a schema override
func ParseYAML(data []byte) (*Schema, *CurrencyTable, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	s := Default()
	if len(f.Fields) > 0 {
		var err error
		if s, err = New(f.Fields); err != nil {
			return nil, nil, fmt.Errorf("invalid field table: %w", err)
		}
	}

	c := DefaultCurrencies()
	if len(f.Currencies) > 0 {
		var err error
		if c, err = NewCurrencyTable(f.Currencies); err != nil {
			return nil, nil, fmt.Errorf("invalid currency table: %w", err)
		}
	}

	return s, c, nil
}

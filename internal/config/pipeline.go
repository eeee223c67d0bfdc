package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/field-survey-etl/internal/domain"
	"gopkg.in/yaml.v3"
)

// Pipeline is the YAML pipeline file.
type Pipeline struct {
	Field   FieldSettings   `yaml:"field"`
	Weather WeatherSettings `yaml:"weather"`
}

// FieldSettings configures the field survey path.
type FieldSettings struct {
	DBPath            string   `yaml:"db_path"`
	SQLQuery          string   `yaml:"sql_query"`
	ColumnsToRename   Pairs    `yaml:"columns_to_rename"`
	ValuesToRename    Pairs    `yaml:"values_to_rename"`
	WeatherMappingCSV string   `yaml:"weather_mapping_csv"`
	ValidCropTypes    []string `yaml:"valid_crop_types"`
}

// WeatherSettings configures the weather station path.
type WeatherSettings struct {
	WeatherCSVPath string `yaml:"weather_csv_path"`
	// RegexPatterns is tried in file order; the first match wins.
	RegexPatterns Pairs `yaml:"regex_patterns"`
}

// Pair is one entry of a YAML mapping.
type Pair struct {
	Key   string
	Value string
}

// Pairs is a YAML string mapping decoded in document order.
type Pairs []Pair

// UnmarshalYAML keeps mapping entries in the order they were written.
func (p *Pairs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping, got %s", value.Line, nodeKind(value.Kind))
	}
	seen := make(map[string]bool, len(value.Content)/2)
	out := make(Pairs, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var pair Pair
		if err := value.Content[i].Decode(&pair.Key); err != nil {
			return err
		}
		if err := value.Content[i+1].Decode(&pair.Value); err != nil {
			return fmt.Errorf("key %q: %w", pair.Key, err)
		}
		if seen[pair.Key] {
			return fmt.Errorf("line %d: duplicate key %q", value.Content[i].Line, pair.Key)
		}
		seen[pair.Key] = true
		out = append(out, pair)
	}
	*p = out
	return nil
}

// Map returns the pairs as a lookup table.
func (p Pairs) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, pair := range p {
		m[pair.Key] = pair.Value
	}
	return m
}

func nodeKind(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "a document"
	}
}

// LoadPipeline reads and validates the pipeline file at path.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline config: %w", err)
	}
	p, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParsePipeline decodes and validates a pipeline document.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate reports every problem in the pipeline file at once.
func (p *Pipeline) Validate() error {
	var errs []error
	required := func(name, v string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	required("field.db_path", p.Field.DBPath)
	required("field.sql_query", p.Field.SQLQuery)
	required("field.weather_mapping_csv", p.Field.WeatherMappingCSV)
	required("weather.weather_csv_path", p.Weather.WeatherCSVPath)

	if _, _, err := p.Field.SwapPair(); err != nil {
		errs = append(errs, err)
	}
	for _, pair := range p.Field.ValuesToRename {
		if pair.Key == "" {
			errs = append(errs, errors.New("field.values_to_rename: empty key"))
		}
	}
	if _, err := p.Weather.Patterns(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SwapPair returns the two columns whose labels are exchanged. A single
// entry {a: b} and the symmetric form {a: b, b: a} are both accepted.
func (f FieldSettings) SwapPair() (a, b string, err error) {
	const name = "field.columns_to_rename"
	c := f.ColumnsToRename
	switch {
	case len(c) == 1:
		a, b = c[0].Key, c[0].Value
	case len(c) == 2 && c[0].Key == c[1].Value && c[0].Value == c[1].Key:
		a, b = c[0].Key, c[0].Value
	case len(c) == 0:
		return "", "", fmt.Errorf("%s is required", name)
	default:
		return "", "", fmt.Errorf("%s must name exactly one column pair, got %d entries", name, len(c))
	}
	if a == "" || b == "" || a == b {
		return "", "", fmt.Errorf("%s: %q and %q are not two distinct columns", name, a, b)
	}
	return a, b, nil
}

// Patterns compiles the configured regexes in file order.
func (w WeatherSettings) Patterns() (domain.Patterns, error) {
	if len(w.RegexPatterns) == 0 {
		return nil, errors.New("weather.regex_patterns needs at least one pattern")
	}
	var (
		patterns domain.Patterns
		errs     []error
	)
	for _, pair := range w.RegexPatterns {
		if pair.Key == "" {
			errs = append(errs, errors.New("weather.regex_patterns: empty measurement name"))
			continue
		}
		p, err := domain.CompilePattern(pair.Key, pair.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("weather.regex_patterns: %w", err))
			continue
		}
		patterns = append(patterns, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return patterns, nil
}

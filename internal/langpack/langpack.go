// Package langpack provides per-language keyword and phrase tables for the
// troubleshooting engine: hazard keywords for safety detection, sentiment
// phrases for feedback classification, hedging words, human-request phrases,
// and generic safety warning text.
//
// Tables are data, not code. Defaults for the six supported locales are
// embedded in the binary; deployments can override or extend them with a
// YAML file, optionally hot-reloaded. Adding a locale is a data change.
package langpack

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultTables []byte

// DefaultLanguage is the fallback for unsupported language codes.
const DefaultLanguage = "en"

// Table holds the phrase tables for one language.
type Table struct {
	// Safety lists hazard keywords (electrical, hydraulic, pressure, ...).
	Safety []string `yaml:"safety"`

	// Positive lists phrases signalling a step succeeded.
	Positive []string `yaml:"positive"`

	// Negative lists phrases signalling a step failed.
	Negative []string `yaml:"negative"`

	// Hedging lists words that downgrade a mixed signal to "partial".
	Hedging []string `yaml:"hedging"`

	// HumanRequest lists phrases asking for a human expert.
	HumanRequest []string `yaml:"human_request"`

	// SafetyWarning is the generic warning injected when the provider
	// omits one for a hazardous problem.
	SafetyWarning string `yaml:"safety_warning"`
}

// Pack is a reloadable set of language tables.
type Pack struct {
	mu       sync.RWMutex
	tables   map[string]Table
	fallback string
}

// Load builds a Pack from the embedded defaults, optionally merged with an
// override file. Override tables replace the embedded table for the same
// language code; unknown codes in the override add new locales.
func Load(overridePath string) (*Pack, error) {
	tables, err := parseTables(defaultTables)
	if err != nil {
		// Embedded data is compiled in; failing to parse it is a bug.
		return nil, fmt.Errorf("parsing embedded language tables: %w", err)
	}

	p := &Pack{tables: tables, fallback: DefaultLanguage}

	if overridePath != "" {
		if err := p.LoadOverride(overridePath); err != nil {
			return nil, err
		}
	}

	if _, ok := p.tables[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("language pack has no %q table", DefaultLanguage)
	}

	return p, nil
}

func parseTables(data []byte) (map[string]Table, error) {
	var tables map[string]Table
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// Resolve maps a caller-supplied language code to a supported one.
// Region subtags are stripped ("pt-BR" resolves to "pt"); unsupported
// codes fall back to the pack's fallback language (DefaultLanguage
// unless SetFallback changed it).
func (p *Pack) Resolve(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.tables[code]; ok {
		return code
	}
	return p.fallback
}

// SetFallback changes the language unsupported codes resolve to. The code
// must name a defined table.
func (p *Pack) SetFallback(code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tables[code]; !ok {
		return fmt.Errorf("fallback language %q has no table", code)
	}
	p.fallback = code
	return nil
}

// Supported reports whether code resolves to a defined table without
// falling back.
func (p *Pack) Supported(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.tables[code]
	return ok
}

// Languages returns the defined language codes.
func (p *Pack) Languages() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	codes := make([]string, 0, len(p.tables))
	for code := range p.tables {
		codes = append(codes, code)
	}
	return codes
}

// Table returns the table for a language, resolving unsupported codes to
// the default language.
func (p *Pack) Table(code string) Table {
	code = p.Resolve(code)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tables[code]
}

// SafetyWarning returns the generic hazard warning for a language.
func (p *Pack) SafetyWarning(code string) string {
	return p.Table(code).SafetyWarning
}

// HasSafetyKeyword reports whether text contains a hazard keyword for the
// given language. English keywords are always checked too, since provider
// output may not follow the session language.
func (p *Pack) HasSafetyKeyword(text, code string) bool {
	lowered := strings.ToLower(text)
	if containsAny(lowered, p.Table(code).Safety) {
		return true
	}
	if p.Resolve(code) != DefaultLanguage {
		return containsAny(lowered, p.Table(DefaultLanguage).Safety)
	}
	return false
}

// MatchesHumanRequest reports whether text contains a phrase requesting a
// human expert. As with safety keywords, English phrases are always
// checked since users mix languages.
func (p *Pack) MatchesHumanRequest(text, code string) bool {
	lowered := strings.ToLower(text)
	if containsAny(lowered, p.Table(code).HumanRequest) {
		return true
	}
	if p.Resolve(code) != DefaultLanguage {
		return containsAny(lowered, p.Table(DefaultLanguage).HumanRequest)
	}
	return false
}

// LoadOverride merges tables from a YAML file into the pack. Languages
// present in the file replace the current table wholesale.
func (p *Pack) LoadOverride(path string) error {
	data, err := readOverrideFile(path)
	if err != nil {
		return err
	}

	overrides, err := parseTables(data)
	if err != nil {
		return fmt.Errorf("parsing language pack override %s: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for code, table := range overrides {
		p.tables[strings.ToLower(code)] = table
	}
	return nil
}

func containsAny(lowered string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

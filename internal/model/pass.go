package model

import (
	_ "embed"
	"encoding/json"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed passes.yaml
var defaultPassesYAML []byte

// ExtractionPass is one stage of the extraction sequence. Passes execute
// strictly in file order; DependsOn names earlier passes whose aggregated
// output is injected as context into this pass's prompts.
type ExtractionPass struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description" json:"description,omitempty"`
	DependsOn    []string `yaml:"depends_on" json:"depends_on,omitempty"`
	Instructions string   `yaml:"instructions" json:"-"`

	// Schema is the JSON schema the remote service's response must satisfy.
	// Responses that fail validation are recorded as malformed, never parsed.
	Schema string `yaml:"schema" json:"-"`

	// Expensive marks passes skipped entirely for large documents.
	Expensive bool `yaml:"expensive" json:"expensive,omitempty"`

	// TimeoutSecs is the per-call timeout for this pass. Earlier, cheaper
	// passes get shorter timeouts than calculation passes.
	TimeoutSecs int `yaml:"timeout_secs" json:"timeout_secs"`

	MaxTokens int64 `yaml:"max_tokens" json:"max_tokens"`
}

type passFile struct {
	Passes []ExtractionPass `yaml:"passes"`
}

// LoadPasses parses the embedded pass definitions and validates the
// dependency order: every depends_on must name a pass declared earlier in
// the file, so the list itself is the one topological order executed.
func LoadPasses() ([]ExtractionPass, error) {
	return parsePasses(defaultPassesYAML)
}

func parsePasses(data []byte) ([]ExtractionPass, error) {
	var pf passFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrap(err, "passes: unmarshal")
	}
	if len(pf.Passes) == 0 {
		return nil, eris.New("passes: no passes defined")
	}

	seen := make(map[string]bool, len(pf.Passes))
	for _, p := range pf.Passes {
		if p.Name == "" {
			return nil, eris.New("passes: pass with empty name")
		}
		if seen[p.Name] {
			return nil, eris.Errorf("passes: duplicate pass %q", p.Name)
		}
		for _, dep := range p.DependsOn {
			if !seen[dep] {
				return nil, eris.Errorf("passes: pass %q depends on %q which is not declared earlier", p.Name, dep)
			}
		}
		if p.Schema != "" && !json.Valid([]byte(p.Schema)) {
			return nil, eris.Errorf("passes: pass %q has invalid JSON schema", p.Name)
		}
		seen[p.Name] = true
	}
	return pf.Passes, nil
}

// PassOrder maps pass names to their execution index.
func PassOrder(passes []ExtractionPass) map[string]int {
	order := make(map[string]int, len(passes))
	for i, p := range passes {
		order[p.Name] = i
	}
	return order
}

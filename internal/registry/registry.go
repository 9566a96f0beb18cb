// Package registry loads the assistant roster from a YAML file and builds
// the generator clients for the generate phase. The roster is data, not code:
// adding a competitor assistant is a config change.
package registry

import (
	_ "embed"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/pkg/assistant"
)

// Entry kinds.
const (
	KindHTTP      = "http"
	KindAnthropic = "anthropic"
)

//go:embed assistants.yaml
var defaultRegistry []byte

// Entry describes one assistant in the roster.
type Entry struct {
	ID      string  `yaml:"id"`
	Kind    string  `yaml:"kind"`
	BaseURL string  `yaml:"base_url"`
	APIKey  string  `yaml:"api_key"`
	Model   string  `yaml:"model"`
	RPS     float64 `yaml:"rps"`
	Timeout string  `yaml:"timeout"`
}

// Registry is the parsed assistant roster.
type Registry struct {
	Assistants []Entry `yaml:"assistants"`
}

// Load reads the roster from path, falling back to the embedded default when
// path is empty.
func Load(path string) (*Registry, error) {
	data := defaultRegistry
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "registry: read %s", path)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes and validates a roster document.
func Parse(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, eris.Wrap(err, "registry: parse yaml")
	}
	if len(reg.Assistants) == 0 {
		return nil, eris.New("registry: no assistants defined")
	}
	seen := make(map[string]bool, len(reg.Assistants))
	for i, e := range reg.Assistants {
		if e.ID == "" {
			return nil, eris.Errorf("registry: entry %d has no id", i)
		}
		if seen[e.ID] {
			return nil, eris.Errorf("registry: duplicate assistant %q", e.ID)
		}
		seen[e.ID] = true
		switch e.Kind {
		case KindHTTP:
			if e.BaseURL == "" {
				return nil, eris.Errorf("registry: assistant %q needs base_url", e.ID)
			}
		case KindAnthropic:
		default:
			return nil, eris.Errorf("registry: assistant %q has unknown kind %q", e.ID, e.Kind)
		}
		if e.Timeout != "" {
			if _, err := time.ParseDuration(e.Timeout); err != nil {
				return nil, eris.Wrapf(err, "registry: assistant %q timeout", e.ID)
			}
		}
	}
	return &reg, nil
}

// Generators builds the generate-phase clients for every roster entry.
// The internal assistant never appears here: its answers come from the
// source log during sync.
func (r *Registry) Generators() (assistant.Generators, error) {
	gens := make(assistant.Generators, len(r.Assistants))
	for _, e := range r.Assistants {
		if e.ID == string(model.AssistantInternal) {
			return nil, eris.New("registry: internal assistant answers come from sync, not a generator")
		}
		gen, err := e.build()
		if err != nil {
			return nil, err
		}
		gens[model.AssistantID(e.ID)] = gen
	}
	return gens, nil
}

func (e Entry) build() (assistant.Generator, error) {
	switch e.Kind {
	case KindHTTP:
		var opts []assistant.Option
		if e.RPS > 0 {
			opts = append(opts, assistant.WithRateLimit(e.RPS))
		}
		if e.Timeout != "" {
			d, _ := time.ParseDuration(e.Timeout)
			opts = append(opts, assistant.WithTimeout(d))
		}
		return assistant.NewHTTP(e.ID, e.BaseURL, opts...), nil
	case KindAnthropic:
		var opts []assistant.AnthropicOption
		if e.Model != "" {
			opts = append(opts, assistant.WithModel(e.Model))
		}
		if e.RPS > 0 {
			opts = append(opts, assistant.WithAnthropicRateLimit(e.RPS))
		}
		return assistant.NewAnthropic(e.ID, e.APIKey, opts...), nil
	default:
		return nil, eris.Errorf("registry: assistant %q has unknown kind %q", e.ID, e.Kind)
	}
}

package generator

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// GenerationParams are the sampling settings sent with a prompt.
type GenerationParams struct {
	Temperature     float32 `yaml:"temperature"`
	TopK            float32 `yaml:"top_k"`
	TopP            float32 `yaml:"top_p"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// PromptTemplate is one templates/*.yaml file.
type PromptTemplate struct {
	Name       string           `yaml:"name"`
	Generation GenerationParams `yaml:"generation"`
	System     string           `yaml:"system"`
	Prompt     string           `yaml:"prompt"`
}

// Prompt is a rendered request ready for a TextClient.
type Prompt struct {
	Text   string
	System string
	Params GenerationParams
}

type compiledPrompt struct {
	def PromptTemplate
	tmpl *template.Template
}

// PromptManager holds the compiled prompt templates keyed by Kind.
type PromptManager struct {
	prompts map[Kind]compiledPrompt
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}

// NewPromptManager loads and compiles every embedded template.
func NewPromptManager() (*PromptManager, error) {
	pm := &PromptManager{prompts: make(map[Kind]compiledPrompt)}

	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read template file %s: %w", entry.Name(), err)
		}

		var def PromptTemplate
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse template file %s: %w", entry.Name(), err)
		}
		if def.Name == "" {
			def.Name = strings.TrimSuffix(entry.Name(), ".yaml")
		}

		tmpl, err := template.New(def.Name).Funcs(templateFuncs).Option("missingkey=error").Parse(def.Prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template %s: %w", def.Name, err)
		}
		pm.prompts[Kind(def.Name)] = compiledPrompt{def: def, tmpl: tmpl}
	}

	for _, kind := range []Kind{KindProblem, KindTestcases, KindValidation, KindSolution} {
		if _, ok := pm.prompts[kind]; !ok {
			return nil, fmt.Errorf("template not found for kind: %s", kind)
		}
	}
	return pm, nil
}

// Render executes the template for kind against data.
func (pm *PromptManager) Render(kind Kind, data any) (Prompt, error) {
	compiled, ok := pm.prompts[kind]
	if !ok {
		return Prompt{}, &Error{Kind: kind, Class: ErrProvider, Code: CodeTemplate, Message: "unknown prompt kind"}
	}

	var buf bytes.Buffer
	if err := compiled.tmpl.Execute(&buf, data); err != nil {
		return Prompt{}, &Error{Kind: kind, Class: ErrProvider, Code: CodeTemplate, Message: "failed to render prompt", Err: err}
	}

	return Prompt{
		Text:   strings.TrimSpace(buf.String()),
		System: strings.TrimSpace(compiled.def.System),
		Params: compiled.def.Generation,
	}, nil
}

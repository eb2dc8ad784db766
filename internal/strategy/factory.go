// CLAUDE:SUMMARY Strategy factory — expands parameter grids into named variant configs with materialized sources
package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Spec drives batch generation: a template plus a parameter grid to expand.
type Spec struct {
	BaseName       string           `json:"base_name"`
	StrategyType   string           `json:"strategy_type"`
	TemplatePath   string           `json:"template_path"`
	BaseParameters map[string]any   `json:"base_parameters"`
	ParameterGrid  map[string][]any `json:"parameter_grid,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	Limit          int              `json:"limit,omitempty"`
}

// Factory turns specs into concrete configs, writing one derived source file
// per variant under <outputDir>/generated_strategies.
type Factory struct {
	workspace string
	outputDir string
}

// NewFactory creates a factory rooted at workspace; generated sources land
// under outputDir/generated_strategies.
func NewFactory(workspace, outputDir string) (*Factory, error) {
	gen := filepath.Join(outputDir, "generated_strategies")
	if err := os.MkdirAll(gen, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &Factory{workspace: workspace, outputDir: gen}, nil
}

// Generate expands the spec's parameter grid into configs. Grid keys are
// iterated in sorted order so the variant numbering is deterministic; the
// rightmost key varies fastest. Names are <base>_001, <base>_002, and so on.
func (f *Factory) Generate(spec *Spec) ([]*Config, error) {
	template, err := f.resolveTemplate(spec.TemplatePath)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(spec.ParameterGrid))
	for k := range spec.ParameterGrid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 1
	for _, k := range keys {
		if len(spec.ParameterGrid[k]) == 0 {
			return nil, fmt.Errorf("empty grid axis %q", k)
		}
		total *= len(spec.ParameterGrid[k])
	}
	if spec.Limit > 0 && spec.Limit < total {
		total = spec.Limit
	}

	variants := make([]*Config, 0, total)
	indices := make([]int, len(keys))
	for index := 1; index <= total; index++ {
		params := make(map[string]any, len(spec.BaseParameters)+len(keys))
		for k, v := range spec.BaseParameters {
			params[k] = v
		}
		for i, k := range keys {
			params[k] = spec.ParameterGrid[k][indices[i]]
		}

		name := fmt.Sprintf("%s_%03d", spec.BaseName, index)
		source, err := f.materializeSource(template, name, params)
		if err != nil {
			return nil, err
		}

		metadata := make(map[string]any, len(spec.Metadata)+1)
		for k, v := range spec.Metadata {
			metadata[k] = v
		}
		metadata["factory"] = map[string]any{
			"base_strategy_name":  spec.BaseName,
			"template_path":       template,
			"grid_index":          index,
			"materialized_source": source,
		}

		variants = append(variants, &Config{
			Name:         name,
			StrategyType: spec.StrategyType,
			Parameters:   params,
			Metadata:     metadata,
			SourcePath:   source,
		})

		// Advance the odometer, rightmost axis fastest.
		for i := len(indices) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(spec.ParameterGrid[keys[i]]) {
				break
			}
			indices[i] = 0
		}
	}
	return variants, nil
}

func (f *Factory) resolveTemplate(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.workspace, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("template strategy not found: %s", path)
	}
	return path, nil
}

// materializeSource copies the template with a provenance header naming the
// variant and its parameters.
func (f *Factory) materializeSource(template, name string, params map[string]any) (string, error) {
	body, err := os.ReadFile(template)
	if err != nil {
		return "", fmt.Errorf("reading template: %w", err)
	}

	ext := filepath.Ext(template)
	if ext == "" {
		ext = ".cpp"
	}
	target := filepath.Join(f.outputDir, name+ext)

	// encoding/json sorts map keys, so the header is stable across runs.
	paramJSON, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	header := fmt.Sprintf("// Generated variant: %s\n// Parameters: %s\n\n", name, paramJSON)
	if err := os.WriteFile(target, append([]byte(header), body...), 0o644); err != nil {
		return "", fmt.Errorf("writing variant source: %w", err)
	}
	return target, nil
}

// Package wizard collects a new test definition interactively.
package wizard

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/tartakovsky/prompttester/internal/models"
	"golang.org/x/term"
)

// Answers holds every field collected by the wizard.
type Answers struct {
	Name        string
	Mode        models.Mode
	Prompt      string
	ModelIDs    []string // upstream ids chosen from the defaults
	ExtraModels []string // additional upstream ids typed by the user
	Temperature float64
}

// RunTestWizard runs an interactive huh form. If initialName is non-empty it
// pre-populates the name field.
func RunTestWizard(in io.Reader, out io.Writer, initialName string) (*Answers, error) {
	defaults := models.DefaultModels()
	var (
		name        = initialName
		mode        = string(models.ModeScorer)
		prompt      string
		chosen      []string
		extraRaw    string
		temperature = strconv.FormatFloat(models.DefaultTemperature, 'f', -1, 64)
	)

	modelOptions := make([]huh.Option[string], 0, len(defaults))
	for _, m := range defaults {
		modelOptions = append(modelOptions, huh.NewOption(m.Name, m.ModelID).Selected(m.Enabled))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Test name").
				Placeholder("Test 1").
				Value(&name).
				Validate(requireNonBlank("test name")),
			huh.NewSelect[string]().
				Title("Mode").
				Options(
					huh.NewOption("scorer", string(models.ModeScorer)),
					huh.NewOption("commenter", string(models.ModeCommenter)),
					huh.NewOption("plain", string(models.ModePlain)),
				).
				Value(&mode),
			huh.NewText().
				Title("System prompt").
				Description("The first prompt variant. More can be added to the YAML later.").
				Value(&prompt),
		),
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Models").
				Options(modelOptions...).
				Value(&chosen),
			huh.NewInput().
				Title("Extra models").
				Description("Comma-separated OpenRouter model ids").
				Placeholder("meta-llama/llama-4-scout").
				Value(&extraRaw),
			huh.NewInput().
				Title("Temperature").
				Value(&temperature).
				Validate(func(s string) error {
					_, err := parseTemperature(s)
					return err
				}),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	temp, err := parseTemperature(temperature)
	if err != nil {
		return nil, err
	}
	return &Answers{
		Name:        strings.TrimSpace(name),
		Mode:        models.Mode(mode),
		Prompt:      prompt,
		ModelIDs:    chosen,
		ExtraModels: splitAndTrim(extraRaw),
		Temperature: temp,
	}, nil
}

// BuildTest turns wizard answers into a test definition with one input slot,
// one prompt and the chosen models. Default models that were not chosen are
// kept but disabled.
func BuildTest(a *Answers, ids models.IDGenerator) (*models.TestConfig, error) {
	if strings.TrimSpace(a.Name) == "" {
		return nil, fmt.Errorf("test name is required")
	}
	mode, err := models.ParseMode(string(a.Mode))
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = models.UUIDIDs{}
	}

	tc := models.MakeDefaultTest(ids.NewID("test-"), strings.TrimSpace(a.Name))
	tc.Mode = mode
	tc.Temperature = a.Temperature
	tc.Prompts[0].Prompt = a.Prompt

	chosen := make(map[string]bool, len(a.ModelIDs))
	for _, id := range a.ModelIDs {
		chosen[id] = true
	}
	for i := range tc.Models {
		tc.Models[i].Enabled = chosen[tc.Models[i].ModelID]
		delete(chosen, tc.Models[i].ModelID)
	}
	for _, id := range a.ExtraModels {
		if hasModel(tc.Models, id) {
			continue
		}
		tc.Models = append(tc.Models, models.ModelItem{
			ID:      ids.NewID("m-"),
			Name:    shortName(id),
			ModelID: id,
			Enabled: true,
		})
	}

	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

func parseTemperature(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.DefaultTemperature, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("temperature must be a number")
	}
	if v < 0 || v > 2 {
		return 0, fmt.Errorf("temperature must be between 0 and 2")
	}
	return v, nil
}

func requireNonBlank(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func hasModel(list []models.ModelItem, modelID string) bool {
	for _, m := range list {
		if m.ModelID == modelID {
			return true
		}
	}
	return false
}

// shortName drops the provider prefix of an upstream id.
func shortName(modelID string) string {
	if i := strings.LastIndex(modelID, "/"); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

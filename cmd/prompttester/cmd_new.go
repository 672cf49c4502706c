package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/wizard"
	"golang.org/x/term"
)

func newNewCommand() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a test definition YAML",
		Long: `Create a test definition YAML.

On a terminal an interactive wizard asks for the name, mode, first prompt,
models and temperature. Otherwise a default scorer test is written using the
given name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return newCommandE(cmd, name, output, force)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write (defaults to <name>.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newCommandE(cmd *cobra.Command, name, output string, force bool) error {
	cfg, err := loadProjectConfig()
	if err != nil {
		return err
	}

	// Check TTY from the command's input stream, not os.Stdin directly.
	isTTY := false
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	var tc *models.TestConfig
	if isTTY {
		answers, err := wizard.RunTestWizard(cmd.InOrStdin(), cmd.OutOrStdout(), name)
		if err != nil {
			return err
		}
		tc, err = wizard.BuildTest(answers, nil)
		if err != nil {
			return err
		}
	} else {
		if strings.TrimSpace(name) == "" {
			return errors.New("a test name is required when not running on a terminal")
		}
		tc, err = wizard.BuildTest(&wizard.Answers{
			Name:        name,
			Mode:        cfg.Defaults.Mode,
			ModelIDs:    defaultModelIDs(cfg.Defaults.Models),
			Temperature: *cfg.Defaults.Temperature,
		}, nil)
		if err != nil {
			return err
		}
	}

	if output == "" {
		output = fileSlug(tc.Name) + ".yaml"
	}
	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", output)
	}
	if err := models.SaveTestConfig(output, tc); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", output) //nolint:errcheck
	fmt.Fprintf(cmd.OutOrStdout(), "Add inputs and prompts, then run: prompttester run %s\n", output) //nolint:errcheck
	return nil
}

// defaultModelIDs returns configured ids, or every built-in default model.
func defaultModelIDs(configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	var ids []string
	for _, m := range models.DefaultModels() {
		if m.Enabled {
			ids = append(ids, m.ModelID)
		}
	}
	return ids
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// fileSlug lowercases name and collapses anything outside [a-z0-9] to "-".
func fileSlug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "test"
	}
	return s
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mr00Anderson/gdx-pd/internal/manifest"
)

// ValidateResult is the JSON payload of a successful validation.
type ValidateResult struct {
	Valid      bool   `json:"valid"`
	Manifest   string `json:"manifest"`
	Order      string `json:"order"`
	SampleRate int    `json:"sample_rate"`
	Tables     int    `json:"tables"`
	Tasks      int    `json:"tasks"`
}

// ValidationDetail is one invalid field in error output.
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Check a manifest without baking it",
		Long: `Decode and validate a manifest. CUE manifests are also checked against
the built-in #Manifest schema.

Example:
  pdbake validate ./sfx/drums.yaml
  pdbake validate --format json ./sfx/drums.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	formatter.VerboseLog("Validating %s", path)

	m, err := manifest.Load(path)
	if err != nil {
		return outputValidateError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidateResult{
			Valid:      true,
			Manifest:   m.DisplayName(),
			Order:      m.BakeOrder().String(),
			SampleRate: m.SampleRate,
			Tables:     len(m.Tables),
			Tasks:      len(m.Tasks),
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ manifest valid: %s (%d tasks, %d tables, %s, %d Hz)\n",
		m.DisplayName(), len(m.Tasks), len(m.Tables), m.BakeOrder(), m.SampleRate)
	return nil
}

// outputValidateError reports a manifest that failed to load.
// Field problems exit with ExitFailure; anything else is a command error.
func outputValidateError(formatter *OutputFormatter, err error) error {
	code := manifest.ErrorCode(err)
	if code == "" {
		code = ErrCodeManifest
	}

	var ve manifest.ValidationErrors
	if !errors.As(err, &ve) {
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "manifest could not be loaded", err)
	}

	details := make([]ValidationDetail, 0, len(ve))
	for _, e := range ve {
		details = append(details, ValidationDetail{Field: e.Field, Message: e.Message})
	}

	if formatter.Format == "json" {
		_ = formatter.Error(code, "manifest invalid", details)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ manifest invalid (%d problems)\n", len(details))
		for _, d := range details {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", d.Field, d.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("manifest invalid: %d problems", len(details)))
}

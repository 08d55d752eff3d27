package main

import (
	"fmt"
	"os"

	"cf-civicrm/internal/models"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <form.json>",
	Short: "Check a form definition against the form schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read form: %w", err)
	}
	parser, err := models.NewFormParser()
	if err != nil {
		return err
	}
	violations, err := parser.Validate(data)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Fprintf(out, "%s: %s\n", v.Location, v.Message)
		}
		return fmt.Errorf("%s: %d schema violation(s)", args[0], len(violations))
	}

	form, err := parser.ParseForm(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: form %s is valid (%d fields, %d processors)\n", args[0], form.ID, len(form.Fields), len(form.Processors))
	for _, p := range form.Processors {
		switch p.Type {
		case models.ProcessorTypeContact, models.ProcessorTypeActivity:
		default:
			fmt.Fprintf(out, "  warning: processor %s has unhandled type %q\n", p.ID, p.Type)
		}
	}
	return nil
}

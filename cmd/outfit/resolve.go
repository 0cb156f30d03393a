package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/outfit-dev/outfit/internal/choice"
	"github.com/outfit-dev/outfit/internal/config"
	"github.com/outfit-dev/outfit/internal/recipe"
	"github.com/outfit-dev/outfit/internal/resolve"
)

var (
	resolveMethodFlag  string
	resolveAnswerFlags []string
	resolveInputFlags  []string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <tool>",
	Short: "Resolve a tool's dependency closure and build an install Plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveMethodFlag, "method", "", "Force a specific install method (overrides the Method Selector's ranking)")
	resolveCmd.Flags().StringArrayVar(&resolveAnswerFlags, "answer", nil, "Choice answer as id=value (repeatable)")
	resolveCmd.Flags().StringArrayVar(&resolveInputFlags, "input", nil, "Recipe input as id=value (repeatable)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	requireFlags()
	toolID := args[0]

	profile, err := loadProfile(profileFlag)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(recipesFlag)
	if err != nil {
		return err
	}

	if _, ok := reg.RecipeOf(toolID); !ok {
		fmt.Fprintf(os.Stderr, "error: no recipe for %q\n", toolID)
		exitWithCode(ExitRecipeNotFound)
	}

	answers := parseAnswers(resolveAnswerFlags)
	inputs := parseInputs(resolveInputFlags)

	var methodOverride recipe.Method
	if resolveMethodFlag != "" {
		methodOverride = recipe.Method(resolveMethodFlag)
	}

	r := resolve.New(reg, newDepResolver(reg), choice.NewResolver(config.GetAPITimeout()), homeDir(), currentUsername())
	resp, err := r.Resolve(context.Background(), toolID, profile, answers, inputs, methodOverride)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: resolve %q: %v\n", toolID, err)
		exitWithCode(ExitResolveFailed)
	}

	printJSON(resp)
	return nil
}

func parseAnswers(flags []string) choice.Answers {
	answers := choice.Answers{}
	for _, kv := range flags {
		id, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		answers[id] = value
	}
	return answers
}

func parseInputs(flags []string) map[string]string {
	inputs := map[string]string{}
	for _, kv := range flags {
		id, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		inputs[id] = value
	}
	return inputs
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoplexhq/leadflow/model"
)

// rulesCommands groups the rule set management commands.
func rulesCommands(b *leadflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "manage scoring rule sets",
	}

	cmd.AddCommand(rulesSeedCommand(b))
	cmd.AddCommand(rulesPublishCommand(b))
	cmd.AddCommand(rulesShowCommand(b))

	return cmd
}

// rulesSeedCommand publishes the built-in rule set as version 1. It is the
// bootstrap step after migrations: scoring refuses to run with no published
// rule set.
func rulesSeedCommand(b *leadflowInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "publish the built-in default rule set",
		Run: func(cmd *cobra.Command, args []string) {
			rs := model.DefaultRuleSet()
			if err := b.engine.PublishRuleSet(context.Background(), rs); err != nil {
				log.Fatalf("Error publishing default rule set: %v", err)
			}
			fmt.Printf("Published rule set v%d with %d rules\n", rs.Version, len(rs.Rules))
		},
	}
}

// rulesPublishCommand publishes a rule set read from a JSON file.
func rulesPublishCommand(b *leadflowInstance) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "publish a rule set from a JSON file",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(file)
			if err != nil {
				log.Fatalf("Error reading rule set file: %v", err)
			}
			var rs model.RuleSet
			if err := json.Unmarshal(data, &rs); err != nil {
				log.Fatalf("Error parsing rule set file: %v", err)
			}
			if err := b.engine.PublishRuleSet(context.Background(), &rs); err != nil {
				log.Fatalf("Error publishing rule set: %v", err)
			}
			fmt.Printf("Published rule set v%d with %d rules\n", rs.Version, len(rs.Rules))
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the rule set JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// rulesShowCommand prints the active rule set as JSON.
func rulesShowCommand(b *leadflowInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "print the active rule set",
		Run: func(cmd *cobra.Command, args []string) {
			rs, err := b.engine.GetActiveRuleSet(context.Background())
			if err != nil {
				log.Fatalf("Error fetching active rule set: %v", err)
			}
			out, err := json.MarshalIndent(rs, "", "  ")
			if err != nil {
				log.Fatalf("Error encoding rule set: %v", err)
			}
			fmt.Println(string(out))
		},
	}
}

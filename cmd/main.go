/*
Copyright 2025 Leadflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/autoplexhq/leadflow"
	"github.com/autoplexhq/leadflow/config"
	"github.com/autoplexhq/leadflow/database"
	"github.com/autoplexhq/leadflow/internal/notification"
)

// Leadflow represents the CLI application, encapsulating the root Cobra command.
type Leadflow struct {
	cmd *cobra.Command
}

// leadflowInstance holds the engine instance and its configuration, shared
// across subcommands.
type leadflowInstance struct {
	engine *leadflow.Leadflow
	cnf    *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the engine instance
// before running any command.
func preRun(app *leadflowInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("leadflow.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newEngine, err := setupLeadflow(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.engine = newEngine
		app.cnf = cnf

		return nil
	}
}

// setupLeadflow creates and initializes a new engine instance based on the
// provided configuration.
func setupLeadflow(cfg *config.Configuration) (*leadflow.Leadflow, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newEngine, err := leadflow.NewLeadflow(db)
	if err != nil {
		return nil, fmt.Errorf("error creating leadflow: %v", err)
	}
	return newEngine, nil
}

// NewCLI creates the command-line interface for the engine. It sets up the
// root command and the workers, migrate, rules and agents subcommands.
func NewCLI() *Leadflow {
	var configFile string
	b := &leadflowInstance{}

	var rootCmd = &cobra.Command{
		Use:   "leadflow",
		Short: "Lead intelligence and workflow orchestration engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./leadflow.json", "Configuration file for leadflow")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(rulesCommands(b))
	rootCmd.AddCommand(agentsCommands(b))

	return &Leadflow{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during
// execution.
func (w Leadflow) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}

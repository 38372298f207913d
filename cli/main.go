package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tnqbao/gau-site-director/config"
	infraPkg "github.com/tnqbao/gau-site-director/infra"
	"github.com/tnqbao/gau-site-director/provider"
	"github.com/tnqbao/gau-site-director/repository"
)

type app struct {
	cfg   *config.Config
	infra *infraPkg.Infra
	repo  *repository.Repository
	svc   *provider.Provider
}

var director app

var rootCmd = &cobra.Command{
	Use:   "director",
	Short: "Inspect and repair site operations",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load("staging.env"); err != nil {
			log.Println("No .env file found, continuing with environment variables")
		}
		director.cfg = config.NewConfig()
		director.infra = infraPkg.InitInfra(director.cfg)
		director.repo = repository.InitRepository(director.infra)
		director.svc = provider.InitProvider(director.cfg, director.infra, director.repo)
	},
}

func main() {
	rootCmd.AddCommand(operationsCmd, fleetCmd, recoverCmd)
	operationsCmd.AddCommand(operationsListCmd, operationsShowCmd, operationsClearCmd)
	fleetCmd.AddCommand(fleetPingCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var RootCmd = &cobra.Command{
	Use:   "krakenx",
	Short: "kraken order gateway",
	Long:  "rate-limited order gateway and order state reconciler for the kraken spot exchange",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().Bool("debug", false, "debug flag")
	RootCmd.PersistentFlags().String("dotenv", ".env.local", "the dotenv file you want to load")

	RootCmd.PersistentFlags().String("kraken-api-key", "", "kraken api key")
	RootCmd.PersistentFlags().String("kraken-api-secret", "", "kraken api secret")
	RootCmd.PersistentFlags().String("kraken-api-tier", "starter", "kraken verification tier: starter, intermediate or pro")
}

func Execute() {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Enable environment variable binding, the env vars are not overloaded yet.
	viper.AutomaticEnv()

	// Once the flags are defined, we can bind config keys with flags.
	if err := viper.BindPFlags(RootCmd.PersistentFlags()); err != nil {
		log.WithError(err).Errorf("failed to bind persistent flags. please check the flag settings.")
	}

	dotenvFile := viper.GetString("dotenv")
	if len(dotenvFile) > 0 {
		if err := godotenv.Load(dotenvFile); err != nil {
			log.WithError(err).Debugf("dotenv file %s not loaded", dotenvFile)
		}
	}

	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if err := RootCmd.Execute(); err != nil {
		log.WithError(err).Fatalf("cannot execute command")
	}
}

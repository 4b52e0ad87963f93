package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/emelcore/emel/config"
)

var validateConfigPath string

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate a YAML config bundle without running anything",
	Run: func(cmd *cobra.Command, args []string) {
		bundle, err := config.LoadBundle(validateConfigPath)
		if err != nil {
			logrus.Fatalf("loading config bundle: %v", err)
		}
		if err := bundle.Validate(); err != nil {
			logrus.Fatalf("invalid config bundle: %v", err)
		}
		logrus.Infof("config bundle %s is valid", validateConfigPath)
	},
}

func init() {
	validateConfigCmd.Flags().StringVar(&validateConfigPath, "config", "", "Path to the YAML config bundle")
	validateConfigCmd.MarkFlagRequired("config")
}

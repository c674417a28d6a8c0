// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/henriheimann/stm32-hal-rfm95/internal/config"
)

var (
	cfgFile string
	version string
)

var rootCmd = &cobra.Command{
	Use:   "rfm95-node",
	Short: "LoRaWAN ABP end-device on an RFM95 / SX1276 radio",
	Long: `rfm95-node runs a LoRaWAN class A end-device on an SX1276 radio attached over SPI.
It sends periodic uplinks, forwards uplinks requested over MQTT and publishes downlinks.`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().Int("log-level", 4, "debug=5, info=4, error=2, fatal=1, panic=0")
	rootCmd.PersistentFlags().Duration("interval", 0, "interval between periodic uplinks, 0 disables them")

	viper.BindPFlag("general.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("node.interval", rootCmd.PersistentFlags().Lookup("interval"))

	config.SetDefaults()

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute executes the root command.
func Execute(v string) {
	version = v

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initConfig() {
	config.Version = version

	if err := config.Load(cfgFile, "rfm95-node"); err != nil {
		log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
	}
}

// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/henriheimann/stm32-hal-rfm95/internal/config"
	"github.com/henriheimann/stm32-hal-rfm95/internal/setup"
	"github.com/henriheimann/stm32-hal-rfm95/node"
)

var (
	cfgFile string
	hexData bool
	count   int
)

var rootCmd = &cobra.Command{
	Use:   "rfm95-send [payload]",
	Short: "Send LoRaWAN uplinks from an RFM95 radio and print any downlink",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

func init() {
	cobra.OnInitialize(func() {
		if err := config.Load(cfgFile, "rfm95-node"); err != nil {
			log.WithError(err).Fatal("error loading config file")
		}
		log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	})

	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.Flags().BoolVar(&hexData, "hex", false, "payload is hex encoded")
	rootCmd.Flags().IntVarP(&count, "count", "n", 1, "number of uplinks")
	rootCmd.Flags().String("receive", "", "receive windows: none, rx1 or rx1rx2 (default from config)")
	rootCmd.Flags().Int("power", 0, "transmit power in dBm (default from config)")
	rootCmd.Flags().Int("log-level", 4, "debug=5, info=4, error=2, fatal=1, panic=0")

	viper.BindPFlag("lorawan.receive_mode", rootCmd.Flags().Lookup("receive"))
	viper.BindPFlag("radio.power", rootCmd.Flags().Lookup("power"))
	viper.BindPFlag("general.log_level", rootCmd.Flags().Lookup("log-level"))
	config.SetDefaults()
}

func run(cmd *cobra.Command, args []string) error {
	payload := []byte("\x01Hello")
	if len(args) > 0 {
		payload = []byte(args[0])
		if hexData {
			var err error
			if payload, err = hex.DecodeString(args[0]); err != nil {
				return errors.Wrap(err, "payload")
			}
		}
	}

	hw, err := setup.Radio(config.C)
	if err != nil {
		return err
	}
	defer hw.Close()
	opts, err := setup.Options(config.C)
	if err != nil {
		return err
	}
	opts.Pins = hw.Pins

	log.Printf("Initializing LoRa radio...")
	t0 := time.Now()
	s := node.New(hw.Radio, opts)
	if err := s.Init(); err != nil {
		return err
	}
	log.Printf("Ready (%.1fms)", time.Since(t0).Seconds()*1000)

	for i := 1; i <= count; i++ {
		tx, _ := s.Counters()
		log.Printf("Sending uplink %d with fcnt %d ...", i, tx)
		t0 = time.Now()
		d, err := s.SendReceive(payload)
		if err != nil {
			return err
		}
		log.Printf("Done in %.1fms", time.Since(t0).Seconds()*1000)
		if d != nil {
			fmt.Printf("RX%d fcnt=%d port=%d rssi=%ddBm snr=%ddB ack=%v %x\n",
				d.Window, d.FCnt, d.FPort, d.Rssi, d.Snr, d.ACK, d.Payload)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

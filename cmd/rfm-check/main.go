// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/henriheimann/stm32-hal-rfm95/internal/config"
	"github.com/henriheimann/stm32-hal-rfm95/internal/setup"
	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
)

var (
	cfgFile string
	dump    bool
)

var rootCmd = &cobra.Command{
	Use:   "rfm-check",
	Short: "Probe an RFM95 radio over SPI",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.Flags().BoolVar(&dump, "dump", false, "print all registers")
	config.SetDefaults()
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.Load(cfgFile, "rfm95-node"); err != nil {
		return err
	}
	hw, err := setup.Radio(config.C)
	if err != nil {
		return err
	}
	defer hw.Close()
	r := hw.Radio

	log.Printf("Checking rfm95 (LoRa)...")
	mode, err := r.ReadReg(sx1276.REG_OPMODE)
	if err != nil {
		return err
	}
	log.Printf("  op-mode is %#x", mode)
	v, err := r.ReadReg(sx1276.REG_VERSION)
	if err != nil {
		return err
	}
	if v == sx1276.VERSION {
		log.Printf("  found sx1276: OK!")
	} else {
		log.Printf("  oops, got %#x instead of %#x", v, sx1276.VERSION)
	}

	if dump {
		regs, err := r.Dump()
		if err != nil {
			return err
		}
		for i := 0; i < len(regs); i += 16 {
			fmt.Printf("%02x: % x\n", i, regs[i:i+16])
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("general.log_level", 4)

	viper.SetDefault("radio.spi_port", "")
	viper.SetDefault("radio.spi_speed", 4000000)
	viper.SetDefault("radio.dio0_pin", "GPIO25")
	viper.SetDefault("radio.dio1_pin", "GPIO24")
	viper.SetDefault("radio.dio5_pin", "GPIO23")
	viper.SetDefault("radio.reset_pin", "GPIO17")
	viper.SetDefault("radio.power", 17)
	viper.SetDefault("radio.data_rate", "SF7BW125")

	viper.SetDefault("lorawan.receive_mode", "rx1rx2")
	viper.SetDefault("lorawan.rx1_delay", time.Second)
	viper.SetDefault("lorawan.rx2_data_rate", "SF9BW125")
	viper.SetDefault("lorawan.min_rx_symbols", 6)

	viper.SetDefault("store.type", "file")
	viper.SetDefault("store.file", "rfm95-node.cfg")

	viper.SetDefault("mqtt.topic_prefix", "rfm95")
	viper.SetDefault("node.interval", 5*time.Minute)
}

// Load reads the configuration file (TOML) into C. Without file, name.toml is searched in
// the working directory, $HOME/.config/name and /etc/name. Environment variables override
// the file, with double underscores in place of the dots (e.g. RADIO__POWER).
func Load(file, name string) error {
	if file != "" {
		viper.SetConfigFile(file)
		viper.SetConfigType("toml")
		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config file %s", file)
		}
	} else {
		viper.SetConfigName(name)
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/" + name)
		viper.AddConfigPath("/etc/" + name)
		if err := viper.ReadInConfig(); err != nil {
			switch err.(type) {
			case viper.ConfigFileNotFoundError:
				log.Warning("No configuration file found, using defaults.")
			default:
				return errors.Wrap(err, "read configuration file error")
			}
		}
	}

	bindEnvs(C)

	hooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := viper.Unmarshal(&C, viper.DecodeHook(hooks)); err != nil {
		return errors.Wrap(err, "unmarshal config error")
	}
	return nil
}

func bindEnvs(iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			tv = strings.ToLower(t.Name)
		}
		if tv == "-" {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			bindEnvs(v.Interface(), append(parts, tv)...)
		default:
			keyDot := strings.Join(append(parts, tv), ".")
			keyUnderscore := strings.Join(append(parts, tv), "__")
			viper.BindEnv(keyDot, strings.ToUpper(keyUnderscore))
		}
	}
}

// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package cmd

import (
	"os"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/henriheimann/stm32-hal-rfm95/internal/config"
)

const configTemplate = `[general]
# Log level
#
# debug=5, info=4, warning=3, error=2, fatal=1, panic=0
log_level={{ .General.LogLevel }}


# Radio wiring.
[radio]
# SPI port, empty for the first one found.
spi_port="{{ .Radio.SPIPort }}"

# SPI clock in Hz.
spi_speed={{ .Radio.SPISpeed }}

# Chip select pin, when the SPI port does not drive CS itself.
nss_pin="{{ .Radio.NSSPin }}"

# Reset pin (optional).
reset_pin="{{ .Radio.ResetPin }}"

# Interrupt pins. DIO0 (tx/rx done) and DIO5 (mode ready) are required, DIO1 (rx
# timeout) ends empty receive windows early.
dio0_pin="{{ .Radio.DIO0Pin }}"
dio1_pin="{{ .Radio.DIO1Pin }}"
dio5_pin="{{ .Radio.DIO5Pin }}"

# Watch the interrupt pins for edges instead of polling their levels.
interrupts={{ .Radio.Interrupts }}

# Chip select demultiplexer select pin and the level addressing this radio (optional).
cs_mux_pin="{{ .Radio.CSMuxPin }}"
cs_mux_value={{ .Radio.CSMuxValue }}

# Transmit power in dBm: 2..17 or 20.
power={{ .Radio.Power }}

# Uplink data rate (SF7BW125 .. SF12BW125).
data_rate="{{ .Radio.DataRate }}"


# ABP session.
[lorawan]
dev_addr="{{ .LoRaWAN.DevAddr }}"
nwk_s_key="{{ .LoRaWAN.NwkSKey }}"
app_s_key="{{ .LoRaWAN.AppSKey }}"

# Receive windows: none, rx1 or rx1rx2.
receive_mode="{{ .LoRaWAN.ReceiveMode }}"

# RX1 delay, a value persisted by the store takes precedence.
rx1_delay="{{ .LoRaWAN.RX1Delay }}"

# RX2 data rate.
rx2_data_rate="{{ .LoRaWAN.RX2DataRate }}"

# Clock drift budget in ns per second and the preamble symbols needed to lock.
drift_ns_per_s={{ .LoRaWAN.DriftNsPerS }}
min_rx_symbols={{ .LoRaWAN.MinRxSymbols }}


# Frame counter persistence.
[store]
# file, redis or none.
type="{{ .Store.Type }}"
file="{{ .Store.File }}"
redis_url="{{ .Store.RedisURL }}"


# MQTT bridge, disabled when server is empty.
[mqtt]
server="{{ .MQTT.Server }}"
username="{{ .MQTT.Username }}"
password="{{ .MQTT.Password }}"
client_id="{{ .MQTT.ClientID }}"
topic_prefix="{{ .MQTT.TopicPrefix }}"
qos={{ .MQTT.QOS }}


# Prometheus metrics endpoint, disabled when bind is empty.
[metrics]
bind="{{ .Metrics.Bind }}"


[node]
# Interval between periodic uplinks, 0 disables them.
interval="{{ .Node.Interval }}"

# Run the radio goroutine on a realtime thread.
realtime={{ .Node.Realtime }}
`

var configCmd = &cobra.Command{
	Use:   "configfile",
	Short: "Print the rfm95-node configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := template.Must(template.New("config").Parse(configTemplate))
		err := t.Execute(os.Stdout, &config.C)
		if err != nil {
			return errors.Wrap(err, "execute config template error")
		}
		return nil
	},
}

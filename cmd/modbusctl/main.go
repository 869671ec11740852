// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	goserial "github.com/hootrhino/goserial"
	modbus "github.com/larkspur-io/modbusq"
)

func main() {
	app := &cli.App{
		Name:  "modbusctl",
		Usage: "Command-line front end over the modbusq client façade",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "protocol", Aliases: []string{"p"}, Usage: "tcp, rtu, or ascii", Required: true},
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "TCP host:port, or RTU/ASCII device path", Required: true},
			&cli.IntFlag{Name: "slave-id", Aliases: []string{"s"}, Usage: "Modbus unit id", Value: 1},
			&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Usage: "response timeout", Value: modbus.DefaultResponseTimeout},
			&cli.IntFlag{Name: "baud", Usage: "baud rate (RTU/ASCII only)", Value: 9600},
			&cli.IntFlag{Name: "data-bits", Usage: "data bits (RTU/ASCII only)", Value: 8},
			&cli.IntFlag{Name: "stop-bits", Usage: "stop bits (RTU/ASCII only)", Value: 1},
			&cli.StringFlag{Name: "parity", Usage: "N, E or O (RTU/ASCII only)", Value: "N"},
		},
		Commands: []*cli.Command{
			{
				Name:  "read",
				Usage: "read coils, discrete inputs, holding or input registers",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "fc", Usage: "coils, discrete, holding, input", Required: true},
					&cli.UintFlag{Name: "start", Usage: "starting address", Required: true},
					&cli.UintFlag{Name: "count", Usage: "quantity", Required: true},
				},
				Action: readAction,
			},
			{
				Name:  "write",
				Usage: "write a single or multiple coils/registers",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "fc", Usage: "coil, register, coils, registers", Required: true},
					&cli.UintFlag{Name: "start", Usage: "starting address", Required: true},
					&cli.StringFlag{Name: "values", Usage: "comma-separated values (0/1 for coils, u16 for registers)", Required: true},
				},
				Action: writeAction,
			},
			{
				Name:  "broadcast",
				Usage: "send an RTU broadcast (server id 0)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "hex", Usage: "hex-encoded function code + payload, e.g. 060001002A", Required: true},
				},
				Action: broadcastAction,
			},
			{
				Name:   "stats",
				Usage:  "print pending/message/error counts after a brief idle window",
				Action: statsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func buildClient(c *cli.Context) (*modbus.Client, error) {
	protocol := c.String("protocol")
	address := c.String("address")
	cfg := modbus.DefaultClientConfig()
	cfg.ResponseTimeout = c.Duration("timeout")
	cfg.Logger = os.Stderr

	switch protocol {
	case "tcp":
		client := modbus.NewTCPClient(cfg, address)
		client.Begin()
		return client, nil

	case "rtu", "ascii":
		stream, err := modbus.NewSerialByteStream(goserial.Config{
			Address:  address,
			BaudRate: c.Int("baud"),
			DataBits: c.Int("data-bits"),
			StopBits: c.Int("stop-bits"),
			Parity:   c.String("parity"),
			Timeout:  c.Duration("timeout"),
		})
		if err != nil {
			return nil, fmt.Errorf("opening serial port: %w", err)
		}
		client := modbus.NewRTUClient(cfg, stream, c.Int("baud"), nil)
		if protocol == "ascii" {
			client.UseModbusASCII()
		}
		client.Begin()
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported protocol: %s (must be tcp, rtu, or ascii)", protocol)
	}
}

func readAction(c *cli.Context) error {
	client, err := buildClient(c)
	if err != nil {
		return err
	}
	defer client.End()

	serverID := byte(c.Int("slave-id"))
	start := uint16(c.Uint("start"))
	count := uint16(c.Uint("count"))
	token := uint32(1)

	switch strings.ToLower(c.String("fc")) {
	case "coils":
		bits, kind := client.ReadCoils(token, serverID, start, count)
		if kind != modbus.Success {
			return fmt.Errorf("read coils failed: %s", kind)
		}
		printBits(start, bits)
	case "discrete":
		bits, kind := client.ReadDiscreteInputs(token, serverID, start, count)
		if kind != modbus.Success {
			return fmt.Errorf("read discrete inputs failed: %s", kind)
		}
		printBits(start, bits)
	case "holding":
		regs, kind := client.ReadHoldingRegisters(token, serverID, start, count)
		if kind != modbus.Success {
			return fmt.Errorf("read holding registers failed: %s", kind)
		}
		printRegisters(start, regs)
	case "input":
		regs, kind := client.ReadInputRegisters(token, serverID, start, count)
		if kind != modbus.Success {
			return fmt.Errorf("read input registers failed: %s", kind)
		}
		printRegisters(start, regs)
	default:
		return fmt.Errorf("unknown --fc %q (want coils, discrete, holding, input)", c.String("fc"))
	}
	return nil
}

func writeAction(c *cli.Context) error {
	client, err := buildClient(c)
	if err != nil {
		return err
	}
	defer client.End()

	serverID := byte(c.Int("slave-id"))
	start := uint16(c.Uint("start"))
	token := uint32(2)
	parts := strings.Split(c.String("values"), ",")

	switch strings.ToLower(c.String("fc")) {
	case "coil":
		v, err := strconv.ParseBool(strings.TrimSpace(parts[0]))
		if err != nil {
			return fmt.Errorf("invalid coil value: %w", err)
		}
		if kind := client.WriteSingleCoil(token, serverID, start, v); kind != modbus.Success {
			return fmt.Errorf("write coil failed: %s", kind)
		}
	case "register":
		v, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 16)
		if err != nil {
			return fmt.Errorf("invalid register value: %w", err)
		}
		if kind := client.WriteSingleRegister(token, serverID, start, uint16(v)); kind != modbus.Success {
			return fmt.Errorf("write register failed: %s", kind)
		}
	case "coils":
		values := make([]bool, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.ParseBool(strings.TrimSpace(p))
			if err != nil {
				return fmt.Errorf("invalid coil value %q: %w", p, err)
			}
			values = append(values, v)
		}
		if kind := client.WriteMultipleCoils(token, serverID, start, values); kind != modbus.Success {
			return fmt.Errorf("write coils failed: %s", kind)
		}
	case "registers":
		values := make([]uint16, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
			if err != nil {
				return fmt.Errorf("invalid register value %q: %w", p, err)
			}
			values = append(values, uint16(v))
		}
		if kind := client.WriteMultipleRegisters(token, serverID, start, values); kind != modbus.Success {
			return fmt.Errorf("write registers failed: %s", kind)
		}
	default:
		return fmt.Errorf("unknown --fc %q (want coil, register, coils, registers)", c.String("fc"))
	}
	fmt.Println("ok")
	return nil
}

func broadcastAction(c *cli.Context) error {
	client, err := buildClient(c)
	if err != nil {
		return err
	}
	defer client.End()

	hexStr := strings.TrimSpace(c.String("hex"))
	if len(hexStr)%2 != 0 {
		return fmt.Errorf("hex payload must have an even number of digits")
	}
	data := make([]byte, len(hexStr)/2)
	for i := range data {
		v, err := strconv.ParseUint(hexStr[2*i:2*i+2], 16, 8)
		if err != nil {
			return fmt.Errorf("invalid hex byte %q: %w", hexStr[2*i:2*i+2], err)
		}
		data[i] = byte(v)
	}
	if kind := client.AddBroadcastMessage(data); kind != modbus.Success {
		return fmt.Errorf("broadcast failed: %s", kind)
	}
	fmt.Println("broadcast admitted")
	return nil
}

func statsAction(c *cli.Context) error {
	client, err := buildClient(c)
	if err != nil {
		return err
	}
	defer client.End()

	time.Sleep(200 * time.Millisecond)
	stats := client.Stats()
	fmt.Printf("pending=%d messages=%d errors=%d last_activity=%s\n",
		stats.Pending, stats.MessageCount, stats.ErrorCount, stats.LastActivity.Format(time.RFC3339))
	return nil
}

func printBits(start uint16, bits []bool) {
	for i, b := range bits {
		v := 0
		if b {
			v = 1
		}
		fmt.Printf("0x%04X: %d\n", start+uint16(i), v)
	}
}

func printRegisters(start uint16, regs []uint16) {
	for i, v := range regs {
		fmt.Printf("0x%04X: 0x%04X\n", start+uint16(i), v)
	}
}

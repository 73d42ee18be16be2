// Copyright 2026 Pulsecast authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/config"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/receiver"
	"github.com/pulsecast/pulsecast/version"
)

const (
	exitOK      = 0
	exitConfig  = 1
	exitBind    = 2
	exitRuntime = 3
)

func main() {
	app := &cli.App{
		Name:    "pulsecast-recv",
		Usage:   "receive a PCM stream over RTP with FEC and write raw samples to stdout",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config file",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "source endpoint, e.g. rtp+rs8m://0.0.0.0:10001",
			},
			&cli.StringFlag{
				Name:  "repair",
				Usage: "repair endpoint, e.g. rs8m://0.0.0.0:10002",
			},
			&cli.StringFlag{
				Name:  "control",
				Usage: "control endpoint, e.g. rtcp://0.0.0.0:10003",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		if code, ok := err.(cli.ExitCoder); ok {
			os.Exit(code.ExitCode())
		}
		os.Exit(exitRuntime)
	}
}

func run(c *cli.Context) error {
	conf, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	if s := c.String("source"); s != "" {
		conf.SourceEndpoint = s
	}
	if s := c.String("repair"); s != "" {
		conf.RepairEndpoint = s
	}
	if s := c.String("control"); s != "" {
		conf.ControlEndpoint = s
	}
	if conf.SourceEndpoint == "" {
		return cli.Exit("source endpoint is required", exitConfig)
	}

	if err := logger.InitFromLevel(conf.LogLevel); err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	log := logger.GetLogger()

	rconf, err := conf.ReceiverConfig()
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	recv, err := receiver.New(rconf, nil, nil, nil, log)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer recv.Close()

	slot, err := recv.CreateSlot()
	if err != nil {
		return cli.Exit(err.Error(), exitRuntime)
	}

	var conns []*net.UDPConn
	defer func() {
		for _, conn := range conns {
			conn.Close()
		}
	}()

	for _, uriStr := range []string{conf.SourceEndpoint, conf.RepairEndpoint, conf.ControlEndpoint} {
		if uriStr == "" {
			continue
		}
		uri, err := receiver.ParseEndpointURI(uriStr)
		if err != nil {
			return cli.Exit(err.Error(), exitConfig)
		}
		ep, err := slot.AddEndpoint(uri)
		if err != nil {
			return cli.Exit(err.Error(), exitConfig)
		}
		conn, err := bindEndpoint(uri, ep)
		if err != nil {
			return cli.Exit(err.Error(), exitBind)
		}
		conns = append(conns, conn)
		log.Infow("listening", "uri", uri.String())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	spec := rconf.OutSpec
	frame := audio.NewFrame(spec, spec.NsToSamplesPerChan(10*time.Millisecond))
	out := make([]byte, len(frame.Samples)*2)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			return nil
		case <-ticker.C:
			frame.Clear()
			if err := recv.Read(frame); err != nil {
				return cli.Exit(err.Error(), exitRuntime)
			}
			writePCM16(out, frame.Samples)
			if _, err := os.Stdout.Write(out); err != nil {
				return cli.Exit(err.Error(), exitRuntime)
			}
		}
	}
}

func bindEndpoint(uri receiver.EndpointURI, ep *receiver.Endpoint) (*net.UDPConn, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(uri.Host), Port: uri.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", uri, err)
	}

	go func() {
		buf := make([]byte, 65536)
		for {
			n, src, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			ep.WriteDatagram(buf[:n], src, time.Now())
		}
	}()
	return conn, nil
}

func writePCM16(dst []byte, src []audio.Sample) {
	for i, s := range src {
		v := float64(s) * 32768
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		binary.BigEndian.PutUint16(dst[i*2:], uint16(int16(v)))
	}
}

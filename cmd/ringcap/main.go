//go:build linux
// +build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fako1024/ringcap/capture"
	"github.com/fako1024/ringcap/capture/afpacket/afring"
	"github.com/fako1024/ringcap/capture/afpacket/socket"
	"github.com/fako1024/ringcap/event"
	"github.com/fako1024/ringcap/link"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.StandardLogger()

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {

	cfg := defaultConfig()
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "ringcap",
		Short: "Set up an AF_PACKET RX ring and report kernel capture statistics",
		Long: `ringcap negotiates, maps and binds a kernel RX ring buffer on the selected
interface (degrading gracefully under memory pressure), lets traffic accumulate
for the configured duration and reports the kernel-tracked capture / drop
statistics on exit. Both TPacket ring ABI generations are supported.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {

			// Values from an optional config file act as defaults, explicitly
			// provided flags take precedence
			if cfgPath != "" {
				fileCfg := defaultConfig()
				if err := fileCfg.loadFile(cfgPath); err != nil {
					return err
				}
				mergeUnchangedFlags(cmd, cfg, fileCfg)
			}

			lvl, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to parse log level: %w", err)
			}
			log.SetLevel(lvl)

			return nil
		},
		RunE: func(*cobra.Command, []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Iface, "iface", "i", "", "interface to capture on")
	flags.IntVarP(&cfg.RingSize, "ring-size", "s", afring.DefaultRingSize, "requested total ring buffer size in bytes")
	flags.IntVar(&cfg.SnapLen, "snap-len", defaultSnapLen, "capture length per packet in bytes")
	flags.BoolVar(&cfg.Jumbo, "jumbo", false, "use the jumbo frame sizing profile")
	flags.BoolVar(&cfg.TPacketV2, "tpacket-v2", false, "negotiate the older (V2) ring ABI generation")
	flags.BoolVarP(&cfg.Promiscuous, "promiscuous", "p", false, "enable promiscuous capture mode")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "print the granted ring geometry after negotiation")
	flags.DurationVarP(&cfg.Duration, "duration", "d", 0, "stop after this duration (0: until interrupted)")
	flags.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level")
	flags.StringVarP(&cfgPath, "config", "c", "", "optional YAML configuration file")

	cmd.AddCommand(newIfacesCommand())

	return cmd
}

func newIfacesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ifaces",
		Short: "List system network interfaces and their link type",
		RunE: func(*cobra.Command, []string) error {
			links, err := link.FindAllLinks()
			if err != nil {
				return err
			}

			for _, l := range links {
				status := "down"
				if l.IsUp() {
					status = "up"
				}
				fmt.Printf("%-16s idx=%-3d type=%-5d hwaddr=%-17s %s\n",
					l.Name, l.Index, l.Type, l.HardwareAddr, status)
			}

			return nil
		},
	}
}

func run(cfg *Config) error {

	if cfg.Iface == "" {
		return errors.New("no interface provided (-i)")
	}

	l, err := link.New(cfg.Iface)
	if err != nil {
		return fmt.Errorf("failed to set up link on %s: %w", cfg.Iface, err)
	}
	if !l.IsUp() {
		return fmt.Errorf("link %s is not up", l.Name)
	}

	sd, err := socket.New()
	if err != nil {
		return fmt.Errorf("failed to setup AF_PACKET socket on %s: %w", l.Name, err)
	}
	defer func() {
		if cerr := sd.Close(); cerr != nil {
			log.Errorf("failed to close AF_PACKET socket on `%s`: %s", l.Name, cerr)
		}
	}()

	snapLen := link.CaptureLengthFixed(cfg.SnapLen)(l)
	if err = sd.SetSocketOptions(l, snapLen, cfg.Promiscuous); err != nil {
		return fmt.Errorf("failed to set AF_PACKET socket options on %s: %w", l.Name, err)
	}

	version := socket.TPacketV3
	if cfg.TPacketV2 {
		version = socket.TPacketV2
	}

	ring := afring.New(
		afring.BufferSize(cfg.RingSize),
		afring.JumboFrames(cfg.Jumbo),
		afring.Version(version),
		afring.Verbose(cfg.Verbose),
	)

	hdl := &event.Handler{}
	if err = ring.Setup(sd, l.Index, hdl); err != nil {
		return fmt.Errorf("failed to set up RX ring on %s: %w", l.Name, err)
	}

	blockSize, blockNr, frameSize, frameNr := ring.Geometry()
	log.Infof("capturing on `%s` (TPacket %s ring: %s mapped, %d x %s blocks, %d x %s frames)",
		l.Name, ring.Version(), humanize.IBytes(uint64(ring.MappedLength())),
		blockNr, humanize.IBytes(uint64(blockSize)),
		frameNr, humanize.IBytes(uint64(frameSize)))

	// Block a pseudo-consumer on the polling descriptor for the lifetime of the
	// capture (no socket events requested, the ring is left to fill). It is
	// released by the stop signal during shutdown
	captureDone := make(chan error, 1)
	go func() {
		for {
			if perr := afring.PollEvent(hdl, 0); perr != nil {
				captureDone <- perr
				return
			}
		}
	}()

	// Let traffic accumulate in the ring until interrupted (or for the
	// configured duration), then quiesce and tear down
	sigExitChan := make(chan os.Signal, 1)
	signal.Notify(sigExitChan, syscall.SIGTERM, os.Interrupt)

	var timeout <-chan time.Time
	if cfg.Duration > 0 {
		timeout = time.After(cfg.Duration)
	}

	select {
	case <-sigExitChan:
		log.Debugf("received exit signal")
	case <-timeout:
		log.Debugf("capture duration elapsed")
	}

	// Release the consumer blocking on the polling descriptor and await its
	// confirmation before the mapping goes away
	if err = hdl.Efd.Signal(event.SignalStop); err != nil {
		log.Warnf("failed to signal capture stop on `%s`: %s", l.Name, err)
	}
	if perr := <-captureDone; !errors.Is(perr, capture.ErrCaptureStopped) {
		log.Warnf("capture on `%s` ended unexpectedly: %s", l.Name, perr)
	}

	if err = ring.Teardown(sd); err != nil {
		return fmt.Errorf("failed to tear down RX ring on %s: %w", l.Name, err)
	}

	// This tool does not consume frames itself, hence nothing was seen by a
	// reader (on V3 all incoming packets are reported unread)
	ring.WriteStats(os.Stdout, sd, 0)

	return nil
}

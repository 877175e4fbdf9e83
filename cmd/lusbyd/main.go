// Command lusbyd is the privileged USB access-control daemon: it owns the
// org.lusby.Daemon system-bus name, bridges udev hotplug events and logind
// session signals into policy decisions, and enforces them through the
// configured backend engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	flags "github.com/jessevdk/go-flags"
	"gopkg.in/retry.v1"
	"gopkg.in/tomb.v2"

	"github.com/MK2112/lusby/audit"
	"github.com/MK2112/lusby/daemon"
	"github.com/MK2112/lusby/dirs"
	"github.com/MK2112/lusby/internal/logging"
	"github.com/MK2112/lusby/trustedkeys"
	"github.com/MK2112/lusby/usbbackend"
	"github.com/MK2112/lusby/usbevents"
)

// Config holds every flag lusbyd accepts; it exists as its own type so
// tests can construct and validate it without touching the process's real
// argv.
type Config struct {
	RootDir      string `long:"root-dir" description:"root directory all other paths are resolved under (testing only)" default:"/"`
	EngineBinary string `long:"engine-binary" description:"external rule engine executable" default:"usbguard"`
	EventBacklog int    `long:"event-backlog" description:"buffered USB hotplug events before ingestion blocks" default:"64"`
	Debug        bool   `long:"debug" description:"enable verbose logging"`
}

func main() {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logging.Noticef("lusbyd exiting with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	logging.SetDebug(cfg.Debug)
	if cfg.RootDir != "" && cfg.RootDir != "/" {
		dirs.SetRootDir(cfg.RootDir)
	}
	logging.Noticef("lusbyd starting")

	auditLg, err := audit.Open(dirs.AuditLogPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLg.Close()

	backend := &usbbackend.EngineBackend{
		Binary:   cfg.EngineBinary,
		RulesDir: dirs.EngineRulesDir,
	}
	trustedStore := trustedkeys.New(dirs.TrustedPubkeysDir)

	state := daemon.NewState(backend, auditLg, trustedStore, dirs.BaselinesDir)

	conn, err := connectWithRetry()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	if err := daemon.Export(conn, state); err != nil {
		return fmt.Errorf("export daemon service: %w", err)
	}
	reply, err := conn.RequestName(daemon.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already owned", daemon.BusName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var t tomb.Tomb
	daemon.RunExpirySweeper(&t, state)

	t.Go(func() error {
		return daemon.RunSessionListener(ctx, conn, state)
	})

	t.Go(func() error {
		return runEventIngestion(ctx, state, cfg.EventBacklog)
	})

	waitForSignal()
	logging.Noticef("received shutdown signal, exiting")
	cancel()
	t.Kill(nil)
	return t.Wait()
}

func connectWithRetry() (*dbus.Conn, error) {
	var conn *dbus.Conn
	strategy := retry.LimitCount(5, retry.Exponential{
		Initial: 200 * time.Millisecond,
		Factor:  2,
	})
	var lastErr error
	for a := retry.Start(strategy, nil); a.Next(); {
		conn, lastErr = dbus.ConnectSystemBus()
		if lastErr == nil {
			return conn, nil
		}
		logging.Debugf("system bus connect attempt failed: %v", lastErr)
	}
	return nil, lastErr
}

func runEventIngestion(ctx context.Context, state *daemon.State, backlog int) error {
	source := usbevents.NewSource()
	events, err := source.Watch(ctx, backlog)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			info := usbbackend.DeviceInfo{
				ID:          evt.DeviceID,
				VendorID:    evt.VendorID,
				ProductID:   evt.ProductID,
				Serial:      evt.Serial,
				Fingerprint: evt.Fingerprint,
				DeviceType:  evt.DeviceType,
			}
			switch evt.Kind {
			case usbevents.KindInserted:
				if err := state.EmitUnknownDeviceInserted(info); err != nil {
					logging.Debugf("emit unknown_device_inserted failed: %v", err)
				}
			case usbevents.KindRemoved:
				if err := state.EmitDeviceRemoved(evt.DeviceID); err != nil {
					logging.Debugf("emit device_removed failed: %v", err)
				}
			}
		}
	}
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}

// Command door-controller drives a two-relay door actuator and a battery
// status LED from GPIO interrupts, and publishes controller events to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sweeney/door-controller/internal/gpio"
	"github.com/sweeney/door-controller/internal/logic"
	"github.com/sweeney/door-controller/internal/mqtt"
	"github.com/sweeney/door-controller/internal/status"
	"github.com/sweeney/door-controller/internal/tick"
	"github.com/sweeney/door-controller/internal/web"
)

type options struct {
	chip           string
	tick           time.Duration
	broker         string
	heartbeat      time.Duration
	httpAddr       string
	wsBroker       string
	relayActiveLow bool
	printState     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.chip, "chip", "gpiochip0", "GPIO character device")
	flag.DurationVar(&opts.tick, "tick", tick.DefaultPeriod, "Tick period for LED blinking")
	flag.StringVar(&opts.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&opts.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	wsBroker := flag.String("ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	flag.BoolVar(&opts.relayActiveLow, "relay-active-low", true, "Relay lines are driven through an inverting stage")
	flag.BoolVar(&opts.printState, "print-state", false, "Print current input levels and exit")

	flag.Parse()

	opts.wsBroker = resolveWSBroker(*wsBroker, opts.broker)
	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(opts options) error {
	dev, err := gpio.NewReal(opts.chip, gpio.DefaultLineMap)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer dev.Close()

	// Print state mode
	if opts.printState {
		return printState(dev, os.Stdout)
	}

	ctrl := logic.New(dev, tick.NewTicker(), logic.Config{
		TickPeriod:     opts.tick,
		RelayActiveLow: opts.relayActiveLow,
	})
	if err := ctrl.Init(); err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	// Initialize MQTT
	hostname, _ := os.Hostname()
	publisher, err := mqtt.NewRealPublisher(opts.broker, "door-controller-"+hostname)
	if err != nil {
		ctrl.Shutdown()
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:         opts.tick.Milliseconds(),
		HeartbeatMs:    opts.heartbeat.Milliseconds(),
		Broker:         opts.broker,
		HTTPPort:       opts.httpAddr,
		WSBroker:       opts.wsBroker,
		Chip:           opts.chip,
		RelayActiveLow: opts.relayActiveLow,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(ctrl.Snapshot())
	tracker.SetMQTTConnected(publisher.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", opts.httpAddr)
	}

	polarity := "active-high"
	if opts.relayActiveLow {
		polarity = "active-low"
	}
	log.Printf("started: chip=%s tick=%v relays=%s broker=%s heartbeat=%v", opts.chip, opts.tick, polarity, opts.broker, opts.heartbeat)

	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	var heartbeat <-chan time.Time
	if opts.heartbeat > 0 {
		hb := time.NewTicker(opts.heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctrl, publisher, publisher, tracker, time.Now, ctrl.Events(), refresh.C, heartbeat, sigCh)
}

// controller is the part of *logic.Controller the run loop needs.
type controller interface {
	Snapshot() logic.Snapshot
	Shutdown() error
}

// runLoop forwards controller events to MQTT and keeps the status tracker
// current until a signal arrives. The controller itself runs from interrupt
// and tick callbacks; nothing here touches GPIO except Shutdown.
func runLoop(ctrl controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, events <-chan logic.Event, refresh, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	refreshTracker := func() {
		if tracker == nil {
			return
		}
		tracker.Update(ctrl.Snapshot())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			if err := ctrl.Shutdown(); err != nil {
				log.Printf("controller shutdown: %v", err)
			}
			drainEvents(events, publisher, tracker)

			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				refreshTracker()
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case e := <-events:
			forward(e, publisher, tracker)
			refreshTracker()

		case <-refresh:
			refreshTracker()

		case <-heartbeat:
			cs := ctrl.Snapshot()
			log.Printf("heartbeat: door=%s battery=%s toggles=%d stops=%d spurious=%d relay_faults=%d dropped=%d",
				cs.Door, cs.Battery, cs.Counts.Toggles, cs.Counts.Stops, cs.Counts.Spurious, cs.Counts.RelayFaults, cs.Counts.Dropped)

			hbEvent := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				refreshTracker()
				snap := tracker.Snapshot()
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func forward(e logic.Event, publisher mqtt.Publisher, tracker *status.Tracker) {
	if e.Detail != "" {
		log.Printf("event: %s source=%s (door=%s battery=%s): %s", e.Type, e.Source, e.Door, e.Battery, e.Detail)
	} else {
		log.Printf("event: %s source=%s (door=%s battery=%s)", e.Type, e.Source, e.Door, e.Battery)
	}
	if tracker != nil {
		tracker.RecordEvent(e)
	}
	if err := publisher.Publish(e); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
}

// drainEvents forwards whatever is already queued without waiting for more.
func drainEvents(events <-chan logic.Event, publisher mqtt.Publisher, tracker *status.Tracker) {
	for {
		select {
		case e := <-events:
			forward(e, publisher, tracker)
		default:
			return
		}
	}
}

var inputNames = []struct {
	name string
	pin  uint32
}{
	{logic.SourceDoorButton, gpio.DoorButton},
	{logic.SourceEndstop1, gpio.Endstop1},
	{logic.SourceEndstop2, gpio.Endstop2},
	{logic.SourceBatteryLow, gpio.BatteryLow},
	{logic.SourceBatteryMid, gpio.BatteryMid},
	{logic.SourceBatteryMax, gpio.BatteryMax},
}

// printState configures the inputs with their pull-downs and prints one
// line per input. Outputs are left untouched.
func printState(dev gpio.Device, w io.Writer) error {
	if err := dev.SetPull(gpio.InputPort, gpio.WatchedInputs, gpio.PullDown); err != nil {
		return fmt.Errorf("pull inputs: %w", err)
	}
	if err := dev.SetDirection(gpio.InputPort, gpio.WatchedInputs, gpio.Input); err != nil {
		return fmt.Errorf("input direction: %w", err)
	}
	v, err := dev.Read(gpio.InputPort)
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}

	high := color.New(color.FgGreen, color.Bold).SprintFunc()
	low := color.New(color.Faint).SprintFunc()
	for _, in := range inputNames {
		level := low("LOW")
		if v&in.pin != 0 {
			level = high("HIGH")
		}
		fmt.Fprintf(w, "%-12s %s\n", in.name+":", level)
	}
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}

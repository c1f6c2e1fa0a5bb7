// companionctl is a command-line remote control for Apple TV devices
// speaking the Companion protocol.
//
// Usage:
//
//	companionctl scan
//	companionctl pair  -host 192.168.1.20 -port 49152 -pin 1234 [-credentials FILE]
//	companionctl press -host 192.168.1.20 -port 49152 -credentials FILE BUTTON
//	companionctl apps  -host 192.168.1.20 -port 49152 -credentials FILE
//	companionctl launch -host 192.168.1.20 -port 49152 -credentials FILE BUNDLE_ID
//
// Buttons: up, down, left, right, select, menu, home, playpause,
// volumeup, volumedown.
//
// Example:
//
//	companionctl pair -host 192.168.1.20 -port 49152 -pin 1234 -credentials atv.json
//	companionctl press -host 192.168.1.20 -port 49152 -credentials atv.json select
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/backkem/companion/pkg/companion"
	"github.com/backkem/companion/pkg/credentials"
	"github.com/backkem/companion/pkg/discovery"
)

var buttons = map[string]companion.HIDCommand{
	"up":         companion.HIDUp,
	"down":       companion.HIDDown,
	"left":       companion.HIDLeft,
	"right":      companion.HIDRight,
	"select":     companion.HIDSelect,
	"menu":       companion.HIDMenu,
	"home":       companion.HIDHome,
	"playpause":  companion.HIDPlayPause,
	"volumeup":   companion.HIDVolumeUp,
	"volumedown": companion.HIDVolumeDown,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = runScan(os.Args[2:])
	case "pair":
		err = runPair(os.Args[2:])
	case "press":
		err = runPress(os.Args[2:])
	case "apps":
		err = runApps(os.Args[2:])
	case "launch":
		err = runLaunch(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "companionctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: companionctl <scan|pair|press|apps|launch> [options]")
}

// deviceFlags holds the flags shared by all device-targeting verbs.
type deviceFlags struct {
	host        string
	port        int
	credentials string
}

func addDeviceFlags(fs *flag.FlagSet) *deviceFlags {
	d := &deviceFlags{}
	fs.StringVar(&d.host, "host", "", "device address")
	fs.IntVar(&d.port, "port", 49152, "device port")
	fs.StringVar(&d.credentials, "credentials", "companion-credentials.json", "credential file path")
	return d
}

func (d *deviceFlags) address() (string, error) {
	if d.host == "" {
		return "", fmt.Errorf("missing -host")
	}
	return fmt.Sprintf("%s:%d", d.host, d.port), nil
}

func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	timeout := fs.Duration("timeout", 5*time.Second, "browse duration")
	fs.Parse(args)

	resolver, err := discovery.NewResolver(discovery.ResolverConfig{BrowseTimeout: *timeout})
	if err != nil {
		return err
	}

	services, err := resolver.Browse(context.Background())
	if err != nil {
		return err
	}

	for svc := range services {
		pairable := "pairable"
		if svc.PairingDisabled() {
			pairable = "pairing disabled"
		} else if svc.SupportsPINPairing() {
			pairable = "PIN pairing"
		}
		fmt.Printf("%-30s %-21s %-12s %s\n", svc.InstanceName, svc.Address(), svc.Model(), pairable)
	}
	return nil
}

func runPair(args []string) error {
	fs := flag.NewFlagSet("pair", flag.ExitOnError)
	device := addDeviceFlags(fs)
	pin := fs.String("pin", "", "4-digit PIN shown on screen")
	name := fs.String("name", "companionctl", "display name announced to the device")
	fs.Parse(args)

	addr, err := device.address()
	if err != nil {
		return err
	}
	if *pin == "" {
		return fmt.Errorf("missing -pin")
	}

	session, err := companion.NewSession(companion.Config{Address: addr, Name: *name})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	creds, err := session.PairSetup(ctx, *pin)
	if err != nil {
		return err
	}
	if err := credentials.NewFileStore(device.credentials).Save(creds); err != nil {
		return err
	}
	fmt.Printf("paired, credentials written to %s\n", device.credentials)
	return nil
}

// connect loads credentials and establishes a session.
func connect(ctx context.Context, device *deviceFlags) (*companion.Session, error) {
	addr, err := device.address()
	if err != nil {
		return nil, err
	}
	creds, err := credentials.NewFileStore(device.credentials).Load()
	if err != nil {
		return nil, err
	}

	session, err := companion.NewSession(companion.Config{Address: addr, Credentials: creds})
	if err != nil {
		return nil, err
	}
	if err := session.Connect(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func runPress(args []string) error {
	fs := flag.NewFlagSet("press", flag.ExitOnError)
	device := addDeviceFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		names := make([]string, 0, len(buttons))
		for name := range buttons {
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Errorf("press needs one button: %s", strings.Join(names, ", "))
	}
	button, ok := buttons[strings.ToLower(fs.Arg(0))]
	if !ok {
		return fmt.Errorf("unknown button %q", fs.Arg(0))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := connect(ctx, device)
	if err != nil {
		return err
	}
	defer session.Close()

	return session.PressButton(ctx, button)
}

func runApps(args []string) error {
	fs := flag.NewFlagSet("apps", flag.ExitOnError)
	device := addDeviceFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := connect(ctx, device)
	if err != nil {
		return err
	}
	defer session.Close()

	apps, err := session.FetchLaunchableApplications(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(apps))
	for id := range apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("%-40s %s\n", id, apps[id])
	}
	return nil
}

func runLaunch(args []string) error {
	fs := flag.NewFlagSet("launch", flag.ExitOnError)
	device := addDeviceFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("launch needs one bundle id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := connect(ctx, device)
	if err != nil {
		return err
	}
	defer session.Close()

	return session.LaunchApp(ctx, fs.Arg(0))
}

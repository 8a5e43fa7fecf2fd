// istrip-scan enumerates nearby BLE peripherals for manual inspection:
// addresses, names, RSSI, and advertising data. Given -address it connects
// and dumps the device's services and characteristics, which is how the
// strip's control characteristic UUID was found in the first place.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"tinygo.org/x/bluetooth"
)

func main() {
	timeout := flag.Duration("timeout", 15*time.Second, "scan duration")
	address := flag.String("address", "", "connect to this device and dump its GATT tree instead of scanning")
	flag.Parse()

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		log.Fatalf("enable adapter: %v", err)
	}

	if *address != "" {
		if err := dumpGATT(adapter, *address); err != nil {
			log.Fatalf("inspect %s: %v", *address, err)
		}
		return
	}

	fmt.Printf("Scanning for %s...\n", *timeout)
	fmt.Println("--------------------------------------------------------------------------------")

	seen := make(map[string]bool)
	count := 0

	go func() {
		time.Sleep(*timeout)
		adapter.StopScan()
	}()

	err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()
		if seen[addr] {
			return
		}
		seen[addr] = true
		count++

		name := result.LocalName()
		if name == "" {
			name = "(unknown)"
		}
		fmt.Printf("Address: %s\n", addr)
		fmt.Printf("  Name: %s\n", name)
		fmt.Printf("  RSSI: %d\n", result.RSSI)
		for _, md := range result.ManufacturerData() {
			fmt.Printf("  Manufacturer Data: company=0x%04x data=%x\n", md.CompanyID, md.Data)
		}
		for _, sd := range result.ServiceData() {
			fmt.Printf("  Service Data: %s = %x\n", sd.UUID.String(), sd.Data)
		}
		fmt.Println("----------------------------------------")
	})
	if err != nil {
		log.Fatalf("scan: %v", err)
	}

	fmt.Printf("\nFound %d unique devices.\n", count)
}

// dumpGATT connects to a device and prints every service and characteristic.
func dumpGATT(adapter *bluetooth.Adapter, address string) error {
	var addr bluetooth.Address
	addr.Set(address)

	fmt.Printf("Connecting to %s...\n", address)
	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer device.Disconnect()

	svcs, err := device.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}

	for _, svc := range svcs {
		fmt.Printf("Service %s\n", svc.UUID().String())
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			fmt.Printf("  (characteristic discovery failed: %v)\n", err)
			continue
		}
		for _, char := range chars {
			fmt.Printf("  Characteristic %s\n", char.UUID().String())
		}
	}
	return nil
}

// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"fmt"
	"net"
	"time"

	"beatlight/internal/log"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD type the control surface is advertised under.
const ServiceType = "_beatlight._tcp"

// Advertisement describes this instance on the network.
type Advertisement struct {
	Instance string // unique instance name, usually a UUID
	Port     int
	Version  string
}

// Advertise publishes the control surface over mDNS and blocks until ctx
// is cancelled.
func Advertise(ctx context.Context, ad Advertisement) error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("mdns: local addresses: %w", err)
	}

	service, err := mdns.NewMDNSService(
		ad.Instance,
		ServiceType,
		"",
		"",
		ad.Port,
		ips,
		[]string{"path=/", "version=" + ad.Version},
	)
	if err != nil {
		return fmt.Errorf("mdns: service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("mdns: server: %w", err)
	}
	log.Infof("mDNS: advertising %s as %s on port %d", ServiceType, ad.Instance, ad.Port)

	<-ctx.Done()
	return server.Shutdown()
}

// Peer is a discovered instance.
type Peer struct {
	Instance string `json:"instance"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Info     string `json:"info,omitempty"`
}

// Browse queries the LAN for other instances for up to timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Peer, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var peers []Peer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			host := e.Host
			if e.AddrV4 != nil {
				host = e.AddrV4.String()
			}
			peers = append(peers, Peer{Instance: e.Name, Host: host, Port: e.Port, Info: e.Info})
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-done
	if err != nil {
		return peers, fmt.Errorf("mdns: query: %w", err)
	}
	return peers, nil
}

func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}

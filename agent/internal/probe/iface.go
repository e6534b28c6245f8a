package probe

import (
	"errors"
	"slices"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/linkscope/linkscope/pkg/types"
)

var errNoInterface = errors.New("probe: no active non-loopback interface")

// localInterface picks the first interface that is up, not loopback and has
// an IPv4 address.
func localInterface() (*types.ConnectionMeta, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return nil, err
	}
	return pickInterface(ifaces)
}

func pickInterface(ifaces psnet.InterfaceStatList) (*types.ConnectionMeta, error) {
	for _, ifc := range ifaces {
		if !slices.Contains(ifc.Flags, "up") || slices.Contains(ifc.Flags, "loopback") {
			continue
		}
		for _, a := range ifc.Addrs {
			ip, _, _ := strings.Cut(a.Addr, "/")
			if strings.Contains(ip, ":") || ip == "" {
				continue
			}
			return &types.ConnectionMeta{
				Interface:      ifc.Name,
				LocalAddress:   ip,
				ConnectionType: connectionType(ifc.Name),
			}, nil
		}
	}
	return nil, errNoInterface
}

// connectionType guesses the link type from the interface name.
func connectionType(name string) string {
	n := strings.ToLower(name)
	switch {
	case hasAnyPrefix(n, "wl", "wlan", "wifi", "ath"):
		return "wifi"
	case hasAnyPrefix(n, "ww", "rmnet", "wwan", "pdp_ip"):
		return "cellular"
	case hasAnyPrefix(n, "tun", "tap", "wg", "utun", "ppp", "ipsec"):
		return "vpn"
	case hasAnyPrefix(n, "en", "eth", "em", "eno", "enp"):
		return "ethernet"
	default:
		return "unknown"
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

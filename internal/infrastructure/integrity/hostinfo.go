package integrity

import (
	"net"
	"os"

	"github.com/fiscal/backend/internal/domain/fiscal"
)

// Fallbacks recorded when a host identifier cannot be determined. Values
// match the legacy audit trail so downstream parsers keep working.
const (
	hostUnavailable = "HOST_NO_DISPONIBLE"
	ipUnavailable   = "IP_NO_DISPONIBLE"
	macUnavailable  = "MAC_NO_DISPONIBLE"
)

// CollectHostInfo gathers the local machine identifiers stamped into
// security metadata and audit entries. Informational only; failures degrade
// to fixed placeholder values instead of erroring.
func CollectHostInfo() fiscal.HostInfo {
	info := fiscal.HostInfo{
		Hostname:   hostUnavailable,
		LocalIP:    ipUnavailable,
		MACAddress: macUnavailable,
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		info.Hostname = hostname
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return info
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if info.MACAddress == macUnavailable && len(iface.HardwareAddr) > 0 {
			info.MACAddress = iface.HardwareAddr.String()
		}
		if info.LocalIP != ipUnavailable {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			if v4 := ipNet.IP.To4(); v4 != nil {
				info.LocalIP = v4.String()
				break
			}
		}
	}
	return info
}

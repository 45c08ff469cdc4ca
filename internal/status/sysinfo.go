package status

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo is a point-in-time sample of host health for the status
// page.
type SystemInfo struct {
	CPUPercent  float64
	MemUsedMB   float64
	MemTotalMB  float64
	DiskUsedGB  float64
	DiskTotalGB float64
	HostUptime  time.Duration
}

// ReadSystemInfo samples host health. Probes that fail leave their fields
// zero; the page renders whatever it gets.
func ReadSystemInfo() SystemInfo {
	var info SystemInfo

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		info.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemUsedMB = float64(vm.Total-vm.Available) / (1 << 20)
		info.MemTotalMB = float64(vm.Total) / (1 << 20)
	}
	if du, err := disk.Usage("/"); err == nil {
		info.DiskUsedGB = float64(du.Used) / (1 << 30)
		info.DiskTotalGB = float64(du.Total) / (1 << 30)
	}
	if up, err := host.Uptime(); err == nil {
		info.HostUptime = time.Duration(up) * time.Second
	}

	return info
}

package utils

import "github.com/shirou/gopsutil/cpu"

// CPUUsage returns the host-wide CPU usage in percent since the last call.
func CPUUsage() (float64, error) {
	usage, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(usage) == 0 {
		return 0, nil
	}
	return usage[0], nil
}

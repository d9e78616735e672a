package health

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceChecker reports degraded once host CPU or memory utilization
// crosses its threshold (0-100), feeding the process's own resource
// pressure into the aggregate health check alongside collaborator checks.
func ResourceChecker(cpuThresholdPct, memThresholdPct float64) CheckerFunc {
	return func(ctx context.Context) ComponentCheck {
		cpuPct, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			return ComponentCheck{Status: StatusDegraded, Message: fmt.Sprintf("cpu stat: %v", err)}
		}
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return ComponentCheck{Status: StatusDegraded, Message: fmt.Sprintf("memory stat: %v", err)}
		}

		var usedCPU float64
		if len(cpuPct) > 0 {
			usedCPU = cpuPct[0]
		}

		if usedCPU >= cpuThresholdPct {
			return ComponentCheck{Status: StatusDegraded, Message: fmt.Sprintf("cpu at %.1f%%, threshold %.1f%%", usedCPU, cpuThresholdPct)}
		}
		if vm.UsedPercent >= memThresholdPct {
			return ComponentCheck{Status: StatusDegraded, Message: fmt.Sprintf("memory at %.1f%%, threshold %.1f%%", vm.UsedPercent, memThresholdPct)}
		}
		return ComponentCheck{Status: StatusHealthy}
	}
}

package api

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostStats samples machine load so the UI can warn before a long export
// on a busy box. Fields that cannot be read stay zero.
func hostStats(ctx context.Context, logger *slog.Logger) *HostResponse {
	resp := &HostResponse{}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		resp.CPUCount = n
	} else {
		logger.Debug("cpu count unavailable", "error", err)
	}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		resp.CPUPercent = pct[0]
	} else if err != nil {
		logger.Debug("cpu percent unavailable", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.MemTotal = vm.Total
		resp.MemUsedPercent = vm.UsedPercent
	} else {
		logger.Debug("memory stats unavailable", "error", err)
	}

	return resp
}

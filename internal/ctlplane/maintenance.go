// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"context"
	"time"

	"github.com/packetware/ghostwire/internal/logging"
)

// DefaultMaintenanceInterval is how often the ratelimit window resets.
const DefaultMaintenanceInterval = 60 * time.Second

// RunMaintenance resets the ratelimit window on a fixed cadence for as
// long as the firewall is loaded, returning when ctx is cancelled. It is a
// no-op tick, not an error, when the firewall is currently disabled: the
// loop keeps running so it picks the window back up the moment the
// firewall is re-enabled.
func RunMaintenance(ctx context.Context, state *OverallState, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	if logger == nil {
		logger = logging.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, loaded := state.Snapshot()
			if loaded == nil {
				continue
			}
			loaded.Ratelimits.ClearAll()
			logger.Debug("ratelimit window reset", "interface", loaded.Interface)
		}
	}
}

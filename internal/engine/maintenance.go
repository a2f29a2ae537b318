package engine

import "time"

// maintenanceInterval is how often a device's background goroutine wakes up.
const maintenanceInterval = 50 * time.Millisecond

// startMaintenance launches the per-device background goroutine. It
// currently does no simulated work on each tick; it exists so a future
// tenant (link-state flaps, periodic stats) has somewhere to live, and so
// Close has a well-defined goroutine to wait on.
func (d *Device) startMaintenance() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

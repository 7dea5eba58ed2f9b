package metrics

import (
	"time"

	"github.com/cuemby/gpubox/pkg/storage"
)

// Collector periodically refreshes fleet gauges from the store
type Collector struct {
	store    storage.Store
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:    store,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	containers, err := c.store.ListContainers()
	ReportError(ComponentStore, err)
	if err != nil {
		return
	}
	ContainersTotal.Set(float64(len(containers)))

	claims, err := c.store.ListPortClaims()
	if err != nil {
		return
	}
	PortsClaimed.Set(float64(len(claims)))
}

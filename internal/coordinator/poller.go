package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Poller refreshes the state of every supported device on a cron schedule,
// for devices that do not report on their own.
type Poller struct {
	coord  *Coordinator
	cron   *cron.Cron
	logger *slog.Logger
}

// NewPoller schedules a state refresh with a standard five-field cron spec
// or a descriptor such as "@every 10m".
func NewPoller(coord *Coordinator, spec string, logger *slog.Logger) (*Poller, error) {
	p := &Poller{
		coord:  coord,
		cron:   cron.New(),
		logger: logger.With("component", "poller"),
	}
	if _, err := p.cron.AddFunc(spec, p.poll); err != nil {
		return nil, fmt.Errorf("poll schedule %q: %w", spec, err)
	}
	return p, nil
}

// Start runs the schedule in the background.
func (p *Poller) Start() {
	p.cron.Start()
}

// Stop stops the schedule and waits for a running poll.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Poller) poll() {
	devs, err := p.coord.Store().ListDevices()
	if err != nil {
		p.logger.Error("list devices", "err", err)
		return
	}
	start := time.Now()
	polled := 0
	for _, dev := range devs {
		if p.coord.Context().Err() != nil {
			return
		}
		if !dev.Interviewed || p.coord.Definition(dev) == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(p.coord.Context(), frameTimeout)
		_, err := p.coord.GetState(ctx, dev.IEEEAddress, nil)
		cancel()
		if err != nil {
			p.logger.Warn("poll device", "ieee", dev.IEEEAddress, "name", dev.DisplayName(), "err", err)
			continue
		}
		polled++
	}
	p.logger.Debug("poll complete", "devices", polled, "took", time.Since(start))
}

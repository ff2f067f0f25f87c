package service

import (
    "context"
    "time"

    "github.com/labstack/gommon/log"
)

// Sweeper periodically reclaims expired locks.  Lock and Confirm already
// treat a lapsed lock as AVAILABLE, so the sweeper only keeps the table
// tidy and tells idle kiosks that the seat is free again.
type Sweeper struct {
    coord    *Coordinator
    interval time.Duration
    log      *log.Logger
}

// NewSweeper returns a sweeper ticking every interval.  A non-positive
// interval disables it.
func NewSweeper(coord *Coordinator, interval time.Duration, logger *log.Logger) *Sweeper {
    if logger == nil {
        logger = log.New("sweeper")
    }
    return &Sweeper{coord: coord, interval: interval, log: logger}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
    if s.interval <= 0 {
        s.log.Info("sweeper: disabled")
        <-ctx.Done()
        return nil
    }
    t := time.NewTicker(s.interval)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return nil
        case <-t.C:
            s.SweepOnce(ctx)
        }
    }
}

// SweepOnce reclaims whatever has expired right now.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
    n, err := s.coord.ReclaimExpired(ctx)
    if err != nil && ctx.Err() == nil {
        s.log.Warnf("sweeper: reclaim failed after %d seats: %v", n, err)
    }
    if n > 0 {
        s.log.Infof("sweeper: reclaimed %d expired locks", n)
    }
    return n
}

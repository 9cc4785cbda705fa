package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper deletes rows that can no longer open a lock and went inert before
// the cutoff. Both the credential and invite repositories implement it.
type Sweeper interface {
	DeleteInert(ctx context.Context, before time.Time) (int64, error)
}

type target struct {
	name    string
	sweeper Sweeper
}

// CleanupJob purges inert credentials and invites. Expiry is always checked
// live, so a missed sweep only costs storage.
type CleanupJob struct {
	targets   []target
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	done      chan struct{}
}

func NewCleanupJob(credentials, invites Sweeper, retention, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		targets: []target{
			{name: "credentials", sweeper: credentials},
			{name: "invites", sweeper: invites},
		},
		retention: retention,
		interval:  interval,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	j.RunOnce(ctx)
}

// RunOnce sweeps every target and returns the rows deleted per target. A
// failing target does not stop the others.
func (j *CleanupJob) RunOnce(ctx context.Context) (map[string]int64, error) {
	cutoff := j.now().Add(-j.retention)
	counts := make(map[string]int64, len(j.targets))
	var errs []error

	for _, t := range j.targets {
		count, err := t.sweeper.DeleteInert(ctx, cutoff)
		if err != nil {
			log.Error().Err(err).Msgf("failed to cleanup %s", t.name)
			errs = append(errs, err)
			continue
		}
		counts[t.name] = count
		if count > 0 {
			log.Info().Int64("count", count).Msgf("cleaned up %s", t.name)
		}
	}
	return counts, errors.Join(errs...)
}

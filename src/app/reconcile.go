package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Reconciler removes objects that no photo record references, e.g. when the
// compensating delete of a failed insert did not go through.
type Reconciler struct {
	objects ObjectStore
	photos  PhotoStore
	grace   time.Duration
	log     *logrus.Entry
	now     func() time.Time
}

func NewReconciler(objects ObjectStore, photos PhotoStore, grace time.Duration, log *logrus.Entry) *Reconciler {
	return &Reconciler{objects: objects, photos: photos, grace: grace, log: log, now: time.Now}
}

// Sweep deletes unreferenced objects older than the grace period. Younger
// objects may belong to an upload whose insert is still in flight.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	objects, err := r.objects.List(ctx, "")
	if err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-r.grace)
	removed := 0
	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		referenced, err := r.photos.ExistsByPath(ctx, obj.Key)
		if err != nil {
			return removed, err
		}
		if referenced {
			continue
		}
		if err := r.objects.Delete(ctx, obj.Key); err != nil {
			r.log.WithError(err).WithField("key", obj.Key).Warn("can not remove orphan")
			continue
		}
		orphansRemovedTotal.Inc()
		removed++
	}
	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := r.Sweep(ctx)
			if err != nil {
				r.log.WithError(err).Warn("reconciliation sweep failed")
				continue
			}
			if removed > 0 {
				r.log.WithField("removed", removed).Info("orphan objects removed")
			}
		}
	}
}

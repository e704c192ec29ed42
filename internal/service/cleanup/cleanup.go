package cleanup

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jgivc/acstdl/internal/metrics"
)

type Storage interface {
	ListMP3(folder string) ([]string, error)
	Remove(folder, name string) error
}

type CleanupReconciler struct {
	storage Storage
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewCleanupReconciler(storage Storage, m *metrics.Metrics, log *slog.Logger) *CleanupReconciler {
	return &CleanupReconciler{
		storage: storage,
		metrics: m,
		log:     log.With(slog.String("item", "CleanupReconciler")),
	}
}

// Reconcile removes every .mp3 of folder that is not in kept.
// It keeps going after a failed removal and returns the joined errors.
func (c *CleanupReconciler) Reconcile(folder string, kept map[string]struct{}) (int, error) {
	names, err := c.storage.ListMP3(folder)
	if err != nil {
		return 0, fmt.Errorf("cannot list folder %s: %w", folder, err)
	}

	var (
		removed int
		errs    []error
	)
	for _, name := range names {
		if _, exists := kept[name]; exists {
			continue
		}

		if err := c.storage.Remove(folder, name); err != nil {
			c.log.Error("Cannot remove stale file", slog.String("folder", folder), slog.String("file", name), slog.Any("error", err))
			errs = append(errs, err)

			continue
		}

		c.log.Info("Removed stale file", slog.String("folder", folder), slog.String("file", name))
		removed++
	}

	c.metrics.ObserveCleanup(removed)

	return removed, errors.Join(errs...)
}

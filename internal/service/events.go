package service

import (
	"context"
	"slices"

	"github.com/syllabus-search/offline-index/pkg/kafka"
	"github.com/syllabus-search/offline-index/pkg/logger"
)

// ConfigChange is published when remote configuration keys are edited.
type ConfigChange struct {
	Keys []string `json:"keys"`
}

// HandleConfigChange returns a consumer handler that starts a background
// sync when a change touches one of watched. A change listing no keys
// matches everything.
func HandleConfigChange(svc *Service, watched []string) kafka.MessageHandler {
	return func(ctx context.Context, _, value []byte) error {
		change, err := kafka.DecodeJSON[ConfigChange](value)
		if err != nil {
			// Undecodable messages are dropped so the partition keeps moving.
			logger.FromContext(ctx).Warn("ignoring config change", "error", err)
			return nil
		}
		if !touches(change.Keys, watched) {
			return nil
		}
		logger.FromContext(ctx).Info("manifest keys changed, syncing", "keys", change.Keys)
		svc.TriggerSync()
		return nil
	}
}

func touches(changed, watched []string) bool {
	if len(changed) == 0 {
		return true
	}
	for _, k := range changed {
		if slices.Contains(watched, k) {
			return true
		}
	}
	return false
}

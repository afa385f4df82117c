package chat

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
)

// Health probes the model backend and the store concurrently. It never fails: probe
// errors become per-dependency status values.
func (s *Service) Health(ctx context.Context) chat.HealthReport {
	report := chat.HealthReport{
		Model:         s.backend.Model(),
		BackendStatus: chat.StatusUnhealthy,
		StoreStatus:   chat.StatusUnavailable,
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := s.backend.Ping(ctx); err != nil {
			log.WithError(err).Debug("model backend probe failed")
			return
		}
		report.BackendStatus = chat.StatusHealthy
	}()

	go func() {
		defer wg.Done()
		if s.store == nil {
			return
		}
		if err := s.store.Ping(ctx); err != nil {
			log.WithError(err).Debug("store probe failed")
			return
		}
		report.StoreStatus = chat.StatusHealthy
	}()

	wg.Wait()

	backendUp := report.BackendStatus == chat.StatusHealthy
	storeUp := report.StoreStatus == chat.StatusHealthy
	setDependencyUp("model", backendUp)
	setDependencyUp("database", storeUp)

	report.Status = chat.StatusDegraded
	if backendUp && storeUp {
		report.Status = chat.StatusHealthy
	}
	return report
}

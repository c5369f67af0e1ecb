/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/config"
)

const (
	// dispatcherStopTimeout bounds how long Reload and Stop wait for
	// workers to finish their current task.
	dispatcherStopTimeout = 30 * time.Second
)

// Service manages the dispatcher lifecycle and supports hot-reload when the
// mail configuration changes. A Service without mail configuration is
// valid: enqueues are dropped with a warning until Reload provides one.
type Service struct {
	log *zap.Logger

	mu         sync.RWMutex
	dispatcher *Dispatcher
}

// NewService creates a stopped mail service.
func NewService(log *zap.Logger) *Service {
	return &Service{log: log.Named("mail-service")}
}

// Start builds a dispatcher from cfg and launches its workers.
func (s *Service) Start(cfg config.Mail) error {
	return s.Reload(cfg)
}

// Reload replaces the running dispatcher with one built from the new
// configuration. The old dispatcher is shut down first, waiting for
// in-flight deliveries.
func (s *Service) Reload(cfg config.Mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dispatcher != nil {
		s.log.Info("stopping mail dispatcher for reload")
		s.dispatcher.Shutdown(true, dispatcherStopTimeout)
		s.dispatcher = nil
	}

	if cfg.Host == "" {
		s.log.Warn("no smtp host configured, mail notifications disabled")
		return nil
	}

	transport, err := NewSMTPTransport(cfg, s.log)
	if err != nil {
		return err
	}
	s.dispatcher = NewDispatcher(cfg, transport, s.log)
	s.dispatcher.Start()
	s.log.Info("mail dispatcher initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Strings("defaultRecipients", cfg.DefaultRecipients))
	return nil
}

// Stop shuts the dispatcher down, waiting for in-flight deliveries.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatcher != nil {
		s.log.Info("stopping mail service")
		s.dispatcher.Shutdown(true, dispatcherStopTimeout)
		s.dispatcher = nil
	}
}

// IsEnabled reports whether a dispatcher is active.
func (s *Service) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatcher != nil
}

// Stats returns the dispatcher counters, or zero stats when disabled.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	d := s.dispatcher
	s.mu.RUnlock()
	if d == nil {
		return Stats{}
	}
	return d.Stats()
}

// Drain waits for the queue to empty, reporting whether it fully drained.
// A zero timeout waits forever.
func (s *Service) Drain(timeout time.Duration) bool {
	s.mu.RLock()
	d := s.dispatcher
	s.mu.RUnlock()
	if d == nil {
		return true
	}
	return d.Drain(timeout)
}

func (s *Service) enqueue(p Payload) (bool, string) {
	s.mu.RLock()
	d := s.dispatcher
	s.mu.RUnlock()
	if d == nil {
		s.log.Warn("mail service disabled, dropping notification", zap.String("kind", string(p.Kind())))
		return false, "mail service disabled"
	}
	return d.enqueue(p)
}

// EnqueueBackup queues a backup report notification.
func (s *Service) EnqueueBackup(p BackupPayload) (bool, string) { return s.enqueue(p) }

// EnqueueError queues an error alert notification.
func (s *Service) EnqueueError(p ErrorPayload) (bool, string) { return s.enqueue(p) }

// EnqueueCustom queues a free-form templated notification.
func (s *Service) EnqueueCustom(p CustomPayload) (bool, string) { return s.enqueue(p) }

// EnqueueDirect queues a raw email with caller-supplied subject and body.
func (s *Service) EnqueueDirect(p DirectPayload) (bool, string) { return s.enqueue(p) }

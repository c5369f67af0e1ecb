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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/config"
)

func TestService_DisabledWithoutHost(t *testing.T) {
	s := NewService(zap.NewNop())
	require.NoError(t, s.Start(config.Mail{}))
	assert.False(t, s.IsEnabled())

	ok, msg := s.EnqueueDirect(DirectPayload{To: []string{"user@example.com"}, Subject: "x"})
	assert.False(t, ok)
	assert.Contains(t, msg, "disabled")
	assert.Equal(t, Stats{}, s.Stats())
	assert.True(t, s.Drain(time.Millisecond))
}

func TestService_StartStop(t *testing.T) {
	s := NewService(zap.NewNop())
	require.NoError(t, s.Start(testMailConfig()))
	assert.True(t, s.IsEnabled())

	s.Stop()
	assert.False(t, s.IsEnabled())
	// stopping a stopped service is fine
	s.Stop()
}

func TestService_ReloadReplacesDispatcher(t *testing.T) {
	s := NewService(zap.NewNop())
	require.NoError(t, s.Start(testMailConfig()))
	first := s.dispatcher
	require.NotNil(t, first)

	require.NoError(t, s.Reload(testMailConfig()))
	assert.True(t, s.IsEnabled())
	assert.NotSame(t, first, s.dispatcher)
	assert.False(t, first.Running())
	s.Stop()
}

func TestService_ReloadToDisabled(t *testing.T) {
	s := NewService(zap.NewNop())
	require.NoError(t, s.Start(testMailConfig()))
	require.NoError(t, s.Reload(config.Mail{}))
	assert.False(t, s.IsEnabled())
}

func TestService_EnqueuePassthrough(t *testing.T) {
	stub := newStubTransport()
	s := NewService(zap.NewNop())
	s.dispatcher = newTestDispatcher(t, config.Mail{Workers: 1, MaxRetries: 0}, stub)
	s.dispatcher.Start()
	defer s.Stop()

	ok, _ := s.EnqueueCustom(CustomPayload{
		To:      []string{"ops@example.com"},
		Title:   "hello",
		Message: "world",
	})
	require.True(t, ok)

	waitFor(t, 2*time.Second, func() bool { return s.Stats().SentCount == 1 })
	assert.Equal(t, int64(1), s.Stats().TotalProcessed)
}

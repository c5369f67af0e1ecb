package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{0, "0h 0m 0s"},
		{59, "0h 0m 59s"},
		{60, "0h 1m 0s"},
		{3661, "1h 1m 1s"},
		{93784, "26h 3m 4s"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatUptime(c.seconds), "seconds %d", c.seconds)
	}
}

func TestSystemSchemasExcluded(t *testing.T) {
	for _, schema := range []string{"mysql", "sys", "performance_schema", "information_schema"} {
		assert.True(t, systemSchemas[schema], schema)
	}
	assert.False(t, systemSchemas["app"])
}

func TestSystemMonitorReport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := NewSystemMonitor(zap.NewNop()).Report(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, report.Hostname)
	assert.NotEmpty(t, report.Uptime)
	assert.Greater(t, report.Memory.TotalBytes, uint64(0))
	assert.GreaterOrEqual(t, report.CPU.LogicalCores, 1)
}

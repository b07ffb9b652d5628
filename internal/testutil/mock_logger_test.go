package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
}

func TestMockLogger_ChildrenShareRecord(t *testing.T) {
	logger := testutil.NewMockLogger()
	child := logger.Named("expansion").With(logging.String("run_id", "r1"))
	child.Warn("best effort", logging.Int("deficit", 3))

	msgs := logger.GetMessages()
	assert.Len(t, msgs, 1)
	assert.Equal(t, "expansion", msgs[0].Logger)

	v, ok := logger.Field("warn", "best effort", "run_id")
	assert.True(t, ok)
	assert.Equal(t, "r1", v)
	v, ok = logger.Field("warn", "best effort", "deficit")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, logger.Count("warn", "best effort"))
}

func TestTwoClusterCensus(t *testing.T) {
	rows, attrs := testutil.TwoClusterCensus()
	assert.Len(t, attrs, 12)
	ids := map[string]bool{}
	for _, r := range rows {
		ids[r.UnitID] = true
	}
	assert.Len(t, ids, 12)
}

package metrics

import (
	"testing"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
)

func TestDefaultClientIsNoOp(t *testing.T) {
	_, ok := Client().(*ddstatsd.NoOpClient)
	assert.True(t, ok)

	// No-op emissions must never panic.
	EmitTickStat(time.Now())
	CountGoal("alpha")
	GaugeConnections(3)
}

func TestInitRejectsEmptyAddress(t *testing.T) {
	assert.Error(t, Init("", nil))
}

// Package metrics wraps the statsd client so the datadog dependency stays
// behind one file. The default client is a no-op; Init swaps in a real one
// when a statsd address is configured.
package metrics

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// Init replaces the global no-op client with a real statsd client.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("statsd address must not be empty")
	}
	opts := []ddstatsd.Option{
		ddstatsd.WithNamespace("pitchside"),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}
	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "init statsd")
	}
	client = newClient
	return nil
}

// EmitTickStat reports how long one scheduler sweep took.
func EmitTickStat(start time.Time) {
	if err := Client().Timing("tick", time.Since(start), nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit tick stat: %v", err)
	}
}

// CountGoal bumps the per-team goal counter.
func CountGoal(team string) {
	if err := Client().Incr("goals", []string{"team:" + team}, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit goal stat: %v", err)
	}
}

// Close flushes buffered stats and shuts the client down.
func Close() {
	if err := Client().Close(); err != nil {
		log.Logger.Warn().Msgf("failed to close statsd client: %v", err)
	}
}

// GaugeConnections reports the number of live websocket connections.
func GaugeConnections(n int) {
	if err := Client().Gauge("connections", float64(n), nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit connection gauge: %v", err)
	}
}

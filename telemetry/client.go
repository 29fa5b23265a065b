package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/elijahnyp/stairway_controller/stairway"
	. "github.com/elijahnyp/stairway_controller/util"
)

const (
	defaultConnectTimeout = 10 * time.Second
	measurementWave       = "stairway_wave"
)

var (
	ErrDisabled         = errors.New("influxdb: telemetry disabled")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)

type Settings struct {
	Enabled       bool
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     int
	FlushInterval time.Duration
}

// LoadSettings reads the influxdb.* keys.
func LoadSettings() Settings {
	return Settings{
		Enabled:       Config.GetBool("influxdb.enabled"),
		URL:           Config.GetString("influxdb.url"),
		Token:         Config.GetString("influxdb.token"),
		Org:           Config.GetString("influxdb.org"),
		Bucket:        Config.GetString("influxdb.bucket"),
		BatchSize:     Config.GetInt("influxdb.batch_size"),
		FlushInterval: Config.GetDuration("influxdb.flush_interval"),
	}
}

// WaveWriter writes one point per completed wave. Writes are batched and never
// block the caller.
type WaveWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
}

func Connect(s Settings) (*WaveWriter, error) {
	if !s.Enabled {
		return nil, ErrDisabled
	}

	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := s.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	client := influxdb2.NewClientWithOptions(
		s.URL,
		s.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &WaveWriter{
		client:    client,
		writeAPI:  client.WriteAPI(s.Org, s.Bucket),
		connected: true,
	}
	go c.logWriteErrors(c.writeAPI.Errors())
	Logger.Info().Msgf("telemetry writing to %s bucket %s", s.URL, s.Bucket)
	return c, nil
}

func (c *WaveWriter) logWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		Logger.Warn().Msgf("telemetry write failed: %v", err)
	}
}

func (c *WaveWriter) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// WaveCompleted records a wave as a stairway_wave point tagged by direction.
func (c *WaveWriter) WaveCompleted(wave stairway.Wave) {
	// Close waits for a write in progress
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return
	}
	point := write.NewPoint(
		measurementWave,
		map[string]string{
			"direction": wave.Direction.String(),
		},
		map[string]interface{}{
			"duration_ms": wave.Duration().Milliseconds(),
			"lights":      wave.Lights,
		},
		wave.Finished,
	)
	c.writeAPI.WritePoint(point)
}

// Observe is a stairway change subscriber.
func (c *WaveWriter) Observe(change stairway.Change) {
	if change.Property != stairway.PropWave {
		return
	}
	if wave, ok := change.Value.(stairway.Wave); ok {
		c.WaveCompleted(wave)
	}
}

// Close flushes pending points and closes the connection.
func (c *WaveWriter) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

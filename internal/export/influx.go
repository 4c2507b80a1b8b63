// Package export mirrors stored readings into external time-series and cache stores.
package export

import (
	"context"
	"fmt"

	"sensor_gateway/internal/models"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement every reading is written to.
const Measurement = "sensor_reading"

// InfluxOptions locates the target bucket.
type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes one point per reading.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInfluxSink(opts InfluxOptions) *InfluxSink {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(opts.Org, opts.Bucket),
	}
}

func (s *InfluxSink) Name() string { return "influxdb" }

// Publish writes r as a sensor_reading point tagged with its node id.
func (s *InfluxSink) Publish(ctx context.Context, r models.Reading) error {
	if err := s.writeAPI.WritePoint(ctx, ReadingPoint(r)); err != nil {
		return fmt.Errorf("write %s point for %s: %w", Measurement, r.ID, err)
	}
	return nil
}

// Close releases the client's HTTP resources.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// ReadingPoint converts r into a point. Absent measures are left out.
func ReadingPoint(r models.Reading) *write.Point {
	fields := map[string]interface{}{
		"relay":  r.Relay,
		"manual": r.Manual,
	}
	for name, v := range map[string]*float64{
		"temp": r.Temp, "hum": r.Hum,
		"temp1": r.Temp1, "hum1": r.Hum1,
		"temp2": r.Temp2, "hum2": r.Hum2,
	} {
		if v != nil {
			fields[name] = *v
		}
	}
	if r.IsAck() {
		fields["ack"] = true
	}
	return influxdb2.NewPoint(Measurement, map[string]string{"node_id": r.ID}, fields, r.Timestamp)
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/xid"

	"github.com/soypat/ctcp"
)

type discardEndpoint struct{}

func (discardEndpoint) Send(b []byte) (int, error) { return len(b), nil }
func (discardEndpoint) Close() error                { return nil }

type noInput struct{}

func (noInput) Read(b []byte) (int, error) { return 0, nil }

type discardOutput struct{}

func (discardOutput) Write(b []byte) (int, error) { return len(b), nil }
func (discardOutput) BufferSpace() int            { return 1 << 20 }

func TestCollectorReportsActiveCount(t *testing.T) {
	cfg := ctcp.DefaultConfig()
	conn, err := ctcp.NewConnection(cfg, discardEndpoint{}, noInput{}, discardOutput{}, ctcp.NewSystemClock(), nil)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}

	coll := NewCollector(prometheus.Labels{"instance": "test"})
	id := xid.New()
	coll.Add(id, conn)

	metricChan := make(chan prometheus.Metric, 16)
	coll.Collect(metricChan)
	close(metricChan)

	var sawActive bool
	for m := range metricChan {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if pb.Gauge != nil && pb.GetGauge().GetValue() == 1 {
			sawActive = true
		}
	}
	if !sawActive {
		t.Fatalf("expected to observe the single active connection in collected metrics")
	}

	coll.Remove(id)
	metricChan = make(chan prometheus.Metric, 16)
	coll.Collect(metricChan)
	close(metricChan)
	for m := range metricChan {
		var pb dto.Metric
		m.Write(&pb)
		if pb.Gauge != nil && pb.GetGauge().GetValue() != 0 {
			t.Fatalf("expected active count 0 after Remove, got %v", pb.GetGauge().GetValue())
		}
	}
}

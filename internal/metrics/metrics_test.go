package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type fakeSource struct {
	ssrcs []uint32
}

func (f *fakeSource) SSRCs() []uint32 { return f.ssrcs }

func (f *fakeSource) CountersFor(ssrc uint32) (displayed, dropped, corrupted uint64, maxFrameSize int, ok bool) {
	if ssrc != 1 {
		return 0, 0, 0, 0, false
	}
	return 10, 2, 1, 4096, true
}

func TestCollector_CollectsKnownSSRCs(t *testing.T) {
	c := New(&fakeSource{ssrcs: []uint32{1, 2}})

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var found bool
	for _, fam := range families {
		if fam.GetName() != "media_streamer_frames_displayed_total" {
			continue
		}
		for _, m := range fam.Metric {
			if labelValue(m, "ssrc") == "1" && m.GetCounter().GetValue() == 10 {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected a displayed_total sample for ssrc=1 with value 10")
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.Label {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

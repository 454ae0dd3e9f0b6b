package checker

import (
	"testing"
)

func Test_containerResult(t *testing.T) {
	tests := []struct {
		Input    string
		Healthy  bool
		Error    string
		Restarts string
	}{
		{"running 0", true, "", "0"},
		{"running 3", true, "", "3"},
		{"exited 5", false, "container is exited", "5"},
		{"restarting 12", false, "container is restarting", "12"},
		{"paused 0", false, "container is paused", "0"},
		{"dead 1", false, "container is dead", "1"},
		{"", false, "empty docker inspect output", ""},
	}

	for i, tt := range tests {
		r := containerResult(tt.Input)

		if r.Healthy != tt.Healthy {
			t.Errorf("%d: expected healthy=%v but got %v", i, tt.Healthy, r.Healthy)
		}
		if r.Error != tt.Error {
			t.Errorf("%d: expected error %q but got %q", i, tt.Error, r.Error)
		}
		if tt.Restarts != "" && r.Detail["restarts"] != tt.Restarts {
			t.Errorf("%d: expected restarts %q but got %q", i, tt.Restarts, r.Detail["restarts"])
		}
	}
}

func Test_serviceResult(t *testing.T) {
	tests := []struct {
		Input   string
		Healthy bool
		Error   string
	}{
		{"active", true, ""},
		{"inactive", false, "unit is inactive"},
		{"failed", false, "unit is failed"},
		{"activating", false, "unit is activating"},
	}

	for i, tt := range tests {
		r := serviceResult(tt.Input)

		if r.Healthy != tt.Healthy {
			t.Errorf("%d: expected healthy=%v but got %v", i, tt.Healthy, r.Healthy)
		}
		if r.Error != tt.Error {
			t.Errorf("%d: expected error %q but got %q", i, tt.Error, r.Error)
		}
	}
}

func Test_resourceResult(t *testing.T) {
	tests := []struct {
		Kind      string
		Value     float64
		Threshold float64
		Healthy   bool
		Error     string
	}{
		{"cpu", 45.2, 90, true, ""},
		{"cpu", 90.0, 90, false, "cpu usage 90.0% exceeds threshold 90.0%"},
		{"memory", 95.5, 90, false, "memory usage 95.5% exceeds threshold 90.0%"},
		{"disk", 89.9, 90, true, ""},
		{"load", 2.5, 8, true, ""},
		{"load", 9.1, 8, false, "load usage 9.1 exceeds threshold 8.0"},
	}

	for i, tt := range tests {
		r := resourceResult(tt.Kind, tt.Value, tt.Threshold)

		if r.Healthy != tt.Healthy {
			t.Errorf("%d: expected healthy=%v but got %v", i, tt.Healthy, r.Healthy)
		}
		if r.Error != tt.Error {
			t.Errorf("%d: expected error %q but got %q", i, tt.Error, r.Error)
		}
	}
}

func TestNewResource_defaultThresholds(t *testing.T) {
	tests := []struct {
		Kind string
		Want float64
	}{
		{"cpu", DefaultCPUThreshold},
		{"memory", DefaultMemoryThreshold},
		{"disk", DefaultDiskThreshold},
		{"load", DefaultLoadThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.Kind, func(t *testing.T) {
			c, err := NewResource("host", tt.Kind, 0, "")
			if err != nil {
				t.Fatalf("failed to build checker: %s", err)
			}
			if c.threshold != tt.Want {
				t.Errorf("expected threshold %v but got %v", tt.Want, c.threshold)
			}
		})
	}
}

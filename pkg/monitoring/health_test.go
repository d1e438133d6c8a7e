package monitoring

import (
	"strings"
	"testing"
)

func TestCheckHealthAggregation(t *testing.T) {
	hc := NewHealthChecker("timeline-fanout", "test")
	hc.AddCheck("ok", func() CheckResult {
		return CheckResult{Status: StatusHealthy}
	})

	if status := hc.CheckHealth(); status.Status != StatusHealthy {
		t.Fatalf("status = %s, want healthy", status.Status)
	}

	hc.AddCheck("slow", func() CheckResult {
		return CheckResult{Status: StatusDegraded}
	})
	if status := hc.CheckHealth(); status.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", status.Status)
	}

	hc.AddCheck("down", func() CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})
	status := hc.CheckHealth()
	if status.Status != StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy", status.Status)
	}
	if len(status.Checks) != 3 {
		t.Fatalf("expected 3 check results, got %d", len(status.Checks))
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	check := ConfigurationHealthCheck(map[string]string{
		"TIMELINES_TABLE": "timelines",
		"KAFKA_BROKERS":   "localhost:9092",
	})
	if result := check(); result.Status != StatusHealthy {
		t.Fatalf("status = %s, want healthy", result.Status)
	}

	check = ConfigurationHealthCheck(map[string]string{
		"TIMELINES_TABLE": "",
	})
	result := check()
	if result.Status != StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy", result.Status)
	}
	if !strings.Contains(result.Message, "TIMELINES_TABLE") {
		t.Fatalf("message should name the missing key: %s", result.Message)
	}
}

func TestDynamoDBHealthCheckNilClient(t *testing.T) {
	check := DynamoDBHealthCheck(nil, "timelines")
	if result := check(); result.Status != StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy for nil client", result.Status)
	}
}

func TestKafkaConsumerHealthCheckNilClient(t *testing.T) {
	check := KafkaConsumerHealthCheck(nil)
	if result := check(); result.Status != StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy for nil client", result.Status)
	}
}

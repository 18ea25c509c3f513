package reporter

import (
	"errors"
	"strings"
	"testing"

	"lanewatch-go/internal/models"
)

func TestPublishReachesAllDestinations(t *testing.T) {
	c := New()
	var first, second int
	c.Add("first", func(*models.TrafficReport, *models.PerfReport) error {
		first++
		return nil
	})
	c.Add("second", func(*models.TrafficReport, *models.PerfReport) error {
		second++
		return nil
	})

	if err := c.Publish(&models.TrafficReport{}, &models.PerfReport{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if first != 1 || second != 1 {
		t.Fatalf("destinations hit %d/%d times, want 1/1", first, second)
	}
}

func TestFailingDestinationDoesNotBlockOthers(t *testing.T) {
	c := New()
	errBroker := errors.New("broker down")
	var stored int
	c.Add("nats", func(*models.TrafficReport, *models.PerfReport) error {
		return errBroker
	})
	c.Add("store", func(*models.TrafficReport, *models.PerfReport) error {
		stored++
		return nil
	})

	err := c.Publish(&models.TrafficReport{}, &models.PerfReport{})
	if !errors.Is(err, errBroker) {
		t.Fatalf("publish = %v, want the broker error surfaced", err)
	}
	if !strings.Contains(err.Error(), "nats") {
		t.Errorf("error does not name the failing destination: %v", err)
	}
	if stored != 1 {
		t.Fatal("store skipped after the broker failure")
	}
}

func TestEmpty(t *testing.T) {
	c := New()
	if !c.Empty() {
		t.Fatal("fresh composite should be empty")
	}
	c.Add("store", func(*models.TrafficReport, *models.PerfReport) error { return nil })
	if c.Empty() {
		t.Fatal("composite with a destination reported empty")
	}
}

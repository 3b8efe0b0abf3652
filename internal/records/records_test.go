package records

import (
	"testing"

	"github.com/marathon-track/split-crawler/internal/model"
)

func TestPickBestPrefersFinishLabel(t *testing.T) {
	splits := []model.Split{
		{PointLabel: "5km", NetTime: "00:25:00", PassClock: "09:25:00"},
		{PointLabel: "Finish", NetTime: "01:45:00", PassClock: "10:45:00"},
	}
	best, ok := PickBest(splits)
	if !ok {
		t.Fatal("expected a best record")
	}
	if best.Record != "01:45:00" {
		t.Errorf("got record %q, want 01:45:00", best.Record)
	}
}

func TestSortOrdersByNameThenDistanceThenRecord(t *testing.T) {
	items := []Item{
		{Name: "Alice", Distance: 10, Record: "00:50:00"},
		{Name: "Alice", Distance: 21.1, Record: "01:45:00"},
		{Name: "Bob", Distance: 10, Record: ""},
	}
	Sort(items)
	if items[0].Name != "Alice" || items[0].Distance != 21.1 {
		t.Errorf("expected Alice/21.1 first, got %+v", items[0])
	}
	if items[2].Name != "Bob" {
		t.Errorf("expected Bob last, got %+v", items[2])
	}
}

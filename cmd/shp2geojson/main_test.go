package main

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestMarshal(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{1.5, 2})
	f.ID = "01"
	f.Properties["rate"] = 12.5
	fc.Append(f)

	tests := []struct {
		format string
		want   []string
	}{
		{"json", []string{`"FeatureCollection"`, `"rate": 12.5`, `"id": "01"`}},
		{"yaml", []string{"type: FeatureCollection", "rate: 12.5", "- 1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			data, err := marshal(fc, tt.format)
			if err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(string(data), w) {
					t.Errorf("output missing %q:\n%s", w, data)
				}
			}
		})
	}
}

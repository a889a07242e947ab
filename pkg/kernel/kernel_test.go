package kernel

import (
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

func TestBoundsSize(t *testing.T) {
	tests := []struct {
		name string
		b    Bounds
		want v3.Vec
	}{
		{"empty", Bounds{}, v3.Vec{}},
		{"unit", Bounds{Max: v3.Vec{X: 1, Y: 1, Z: 1}}, v3.Vec{X: 1, Y: 1, Z: 1}},
		{"offset", Bounds{Min: v3.Vec{X: -2, Y: 1}, Max: v3.Vec{X: 2, Y: 4, Z: 5}}, v3.Vec{X: 4, Y: 3, Z: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Size(); got != tt.want {
				t.Errorf("Size() = %v, want %v", got, tt.want)
			}
		})
	}
}

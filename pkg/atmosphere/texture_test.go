package atmosphere

import (
	"math"
	"testing"
)

func TestTexture_Layout(t *testing.T) {
	tex := NewTexture(4, 3, 2, 3)
	if len(tex.Data) != 4*3*2*3 {
		t.Fatalf("expected %d floats, got %d", 4*3*2*3, len(tex.Data))
	}

	tex.SetTexel(1, 2, 1, Spectrum{1, 2, 3}, 0)
	i := ((1*3+2)*4 + 1) * 3
	if tex.Data[i] != 1 || tex.Data[i+1] != 2 || tex.Data[i+2] != 3 {
		t.Errorf("expected texel at index %d, got %v", i, tex.Data[i:i+3])
	}

	tex.AddTexel(1, 2, 1, Spectrum{1, 1, 1}, 0)
	rgb, alpha := tex.Texel(1, 2, 1)
	if rgb != (Spectrum{2, 3, 4}) || alpha != 0 {
		t.Errorf("expected {2 3 4} alpha 0, got %v alpha %v", rgb, alpha)
	}
}

func TestTexture_Alpha(t *testing.T) {
	tex := NewTexture(2, 2, 1, 4)
	tex.SetTexel(0, 1, 0, Spectrum{1, 1, 1}, 0.5)
	tex.AddTexel(0, 1, 0, Spectrum{}, 0.25)
	_, alpha := tex.Texel(0, 1, 0)
	if alpha != 0.75 {
		t.Errorf("expected alpha 0.75, got %v", alpha)
	}
}

func TestTexture_Sample2D(t *testing.T) {
	tex := NewTexture(2, 2, 1, 3)
	tex.SetTexel(0, 0, 0, Uniform(0), 0)
	tex.SetTexel(1, 0, 0, Uniform(1), 0)
	tex.SetTexel(0, 1, 0, Uniform(2), 0)
	tex.SetTexel(1, 1, 0, Uniform(3), 0)

	tests := []struct {
		name     string
		u, v     float64
		expected float64
	}{
		{"texel center", 0.25, 0.25, 0},
		{"opposite center", 0.75, 0.75, 3},
		{"middle", 0.5, 0.5, 1.5},
		{"clamp low", -1, -1, 0},
		{"clamp high", 2, 2, 3},
		{"half x", 0.5, 0.25, 0.5},
		{"nan", math.NaN(), 0.25, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rgb, _ := tex.Sample2D(tt.u, tt.v)
			if math.Abs(rgb[0]-tt.expected) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.expected, rgb[0])
			}
		})
	}
}

func TestTexture_Sample3D(t *testing.T) {
	tex := NewTexture(2, 2, 2, 3)
	for z := 0; z < 2; z++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				tex.SetTexel(x, y, z, Uniform(float64(x+2*y+4*z)), 0)
			}
		}
	}

	rgb, _ := tex.Sample3D(0.5, 0.5, 0.5)
	if math.Abs(rgb[0]-3.5) > 1e-9 {
		t.Errorf("expected 3.5 at center, got %v", rgb[0])
	}
	rgb, _ = tex.Sample3D(0.75, 0.25, 0.75)
	if rgb[0] != 5 {
		t.Errorf("expected 5 at texel (1,0,1), got %v", rgb[0])
	}
}

func TestTexture_Fetch2D(t *testing.T) {
	tex := NewTexture(4, 4, 1, 3)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			tex.SetTexel(x, y, 0, Uniform(float64(10*y+x)), 0)
		}
	}

	taps, fx, fy := tex.Fetch2D(0.5, 0.5, 0)
	expected := [4]float64{11, 12, 21, 22}
	for i, e := range expected {
		if taps[i][0] != e {
			t.Errorf("expected tap %d to be %v, got %v", i, e, taps[i][0])
		}
	}
	if math.Abs(fx-0.5) > 1e-12 || math.Abs(fy-0.5) > 1e-12 {
		t.Errorf("expected weights 0.5, got %v %v", fx, fy)
	}
}

func TestTexture_CloneEqual(t *testing.T) {
	tex := NewTexture(3, 2, 1, 3)
	tex.SetTexel(2, 1, 0, Spectrum{1, 2, 3}, 0)

	c := tex.Clone()
	if !tex.Equal(c) {
		t.Fatal("expected clone to be equal")
	}
	c.Data[0] = 1
	if tex.Equal(c) {
		t.Error("expected modified clone to differ")
	}
	if tex.Data[0] != 0 {
		t.Error("expected clone to be a deep copy")
	}

	c.Clear()
	for _, v := range c.Data {
		if v != 0 {
			t.Fatal("expected cleared texture")
		}
	}
}

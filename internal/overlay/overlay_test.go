package overlay

import "testing"

func TestParseHexColor(t *testing.T) {
	cases := []struct {
		in      string
		r, g, b uint8
		wantErr bool
	}{
		{in: "#00FF7F", g: 255, b: 127},
		{in: "#ffffff", r: 255, g: 255, b: 255},
		{in: "#000000"},
		{in: "#A0b1C2", r: 0xA0, g: 0xB1, b: 0xC2},
		{in: "00FF7F", wantErr: true},
		{in: "#0F7", wantErr: true},
		{in: "#GGHHII", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, c := range cases {
		got, err := parseHexColor(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseHexColor(%q) accepted bad input", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHexColor(%q): %v", c.in, err)
			continue
		}
		if got.R != c.r || got.G != c.g || got.B != c.b || got.A != 255 {
			t.Errorf("parseHexColor(%q) = %+v", c.in, got)
		}
	}
}

package detect

import "testing"

func TestParseClassNames(t *testing.T) {
	raw := []byte("person\nbicycle\ncar\n\nmotorbike\r\n  \nbus\n")
	names := parseClassNames(raw)
	want := []string{"person", "bicycle", "car", "motorbike", "bus"}
	if len(names) != len(want) {
		t.Fatalf("parsed %d names, want %d: %v", len(names), len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestResolveTargets(t *testing.T) {
	names := []string{"person", "bicycle", "car", "motorbike", "bus", "train", "truck"}

	targets, err := resolveTargets(names, []string{"car", "truck", "bus"})
	if err != nil {
		t.Fatalf("resolveTargets failed: %v", err)
	}
	for _, id := range []int{2, 4, 6} {
		if !targets[id] {
			t.Errorf("class id %d missing from targets", id)
		}
	}
	if targets[0] || targets[1] {
		t.Error("non-target classes leaked into the filter")
	}

	if _, err := resolveTargets(names, []string{"car", "zeppelin"}); err == nil {
		t.Error("unknown target class accepted")
	}
	if _, err := resolveTargets(names, nil); err == nil {
		t.Error("empty target list accepted")
	}
}

package main

import "testing"

func TestValidateEmbeddingDimensions(t *testing.T) {
	cases := []struct {
		name       string
		probed     int
		configured int
		wantErr    bool
	}{
		{"unconfigured accepts any width", 1536, 0, false},
		{"matching width", 1536, 1536, false},
		{"mismatched width", 768, 1536, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := validateEmbeddingDimensions(c.probed, c.configured)
			if (err != nil) != c.wantErr {
				t.Fatalf("validateEmbeddingDimensions(%d, %d) = %v, wantErr %v", c.probed, c.configured, err, c.wantErr)
			}
		})
	}
}

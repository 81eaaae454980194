package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameKey(t *testing.T) {
	cases := map[string]string{
		"  Acme   Robotics ": "acme robotics",
		"Café Robotics":      "cafe robotics",
		"ACME":               "acme",
		"":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NameKey(in), "input %q", in)
	}
}

package augment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromJSON(t *testing.T) {
	var specs []Spec
	require.NoError(t, json.Unmarshal([]byte(`[
		{"type": "resize", "attributes": {"width": 128, "height": 96}},
		{"type": "horizontal_flip"},
		{"type": "rotate90", "attributes": {"k": 2}}
	]`), &specs))

	p, err := Build(specs)
	require.NoError(t, err)
	assert.Equal(t, []string{"resize(128x96)", "horizontal_flip(p=0.5)", "rotate90(k=2,p=1)"}, p.Names())
	assert.Equal(t, 3, p.Len())
}

func TestBuildErrors(t *testing.T) {
	_, err := Build([]Spec{{Type: "shear"}})
	assert.ErrorContains(t, err, "unknown transform type")

	_, err = Build([]Spec{{Type: "resize", Attributes: map[string]any{"widht": 3}}})
	assert.Error(t, err)
}

func TestTypes(t *testing.T) {
	assert.Contains(t, Types(), "resize")
	assert.IsIncreasing(t, Types())
}

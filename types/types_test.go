package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPoints_PreservesOrderPerKind(t *testing.T) {
	points := []Point{
		{X: 1, Y: 1, Kind: PointPositive},
		{X: 2, Y: 2, Kind: PointNegative},
		{X: 3, Y: 3, Kind: PointPositive},
	}

	pos, neg := SplitPoints(points)
	assert.Equal(t, [][2]float64{{1, 1}, {3, 3}}, pos)
	assert.Equal(t, [][2]float64{{2, 2}}, neg)
}

func TestPoint_Validate(t *testing.T) {
	assert.NoError(t, Point{X: 0, Y: 10, Kind: PointNegative}.Validate())
	assert.True(t, IsCode(Point{X: 1, Y: 1, Kind: "maybe"}.Validate(), ErrInvalidRequest))
	assert.True(t, IsCode(Point{X: -1, Y: 1, Kind: PointPositive}.Validate(), ErrInvalidRequest))
}

func TestPoint_ValidateRejectsNonFinite(t *testing.T) {
	for _, p := range []Point{
		{X: math.NaN(), Y: 10, Kind: PointPositive},
		{X: 10, Y: math.NaN(), Kind: PointNegative},
		{X: math.Inf(1), Y: 10, Kind: PointPositive},
		{X: 10, Y: math.Inf(-1), Kind: PointPositive},
	} {
		assert.True(t, IsCode(p.Validate(), ErrInvalidRequest), "%v", p)
	}
}

func TestTransformPatch_Apply(t *testing.T) {
	base := IdentityTransform()
	pos := Vec3{1, 2, 3}
	scale := 2.5

	got := TransformPatch{Position: &pos, Scale: &scale}.Apply(base)
	assert.Equal(t, pos, got.Position)
	assert.Equal(t, Vec3{}, got.Rotation)
	assert.Equal(t, 2.5, got.Scale)

	zero := 0.0
	assert.Equal(t, 2.5, TransformPatch{Scale: &zero}.Apply(got).Scale, "non-positive scale is ignored")
	assert.True(t, TransformPatch{}.Empty())
}

func TestTransformDelta_Apply(t *testing.T) {
	start := Transform{Position: Vec3{1, 0, 0}, Rotation: Vec3{0, 0.5, 0}, Scale: 2}

	got := TransformDelta{Translate: Vec3{0, 1, 0}, Rotate: Vec3{0, 0.25, 0}, ScaleBy: 0.5}.Apply(start)
	assert.Equal(t, Vec3{1, 1, 0}, got.Position)
	assert.Equal(t, Vec3{0, 0.75, 0}, got.Rotation)
	assert.Equal(t, 1.0, got.Scale)

	assert.Equal(t, 2.0, TransformDelta{}.Apply(start).Scale)
}

func TestParseAssetFormat(t *testing.T) {
	f, err := ParseAssetFormat("mesh")
	require.NoError(t, err)
	assert.Equal(t, FormatMesh, f)

	f, err = ParseAssetFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatPointCloud, f)

	_, err = ParseAssetFormat("usdz")
	assert.True(t, IsCode(err, ErrInvalidRequest))
}

func TestMask_CloneIsDeep(t *testing.T) {
	m := &Mask{Data: []byte{1, 2, 3}, Encoding: MaskEncodingPNG, Score: 0.9}
	c := m.Clone()
	c.Data[0] = 9
	assert.Equal(t, byte(1), m.Data[0])

	var nilMask *Mask
	assert.Nil(t, nilMask.Clone())
}

package types

import (
	"fmt"
	"math"
	"slices"
)

// PointKind 点提示类型
type PointKind string

const (
	// PointPositive 正例点（包含）
	PointPositive PointKind = "positive"
	// PointNegative 负例点（排除）
	PointNegative PointKind = "negative"
)

// Valid reports whether k is a known kind.
func (k PointKind) Valid() bool {
	return k == PointPositive || k == PointNegative
}

// Point 是源图像像素空间中的一个点提示，创建后不可变。
type Point struct {
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	Kind PointKind `json:"kind"`
}

// Validate 校验点提示
func (p Point) Validate() error {
	if !p.Kind.Valid() {
		return NewError(ErrInvalidRequest, fmt.Sprintf("unknown point kind %q", p.Kind))
	}
	if !finite(p.X) || !finite(p.Y) {
		return NewError(ErrInvalidRequest, "point coordinates must be finite")
	}
	if p.X < 0 || p.Y < 0 {
		return NewError(ErrInvalidRequest, "point coordinates must be non-negative")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SplitPoints partitions prompts into positive and negative [x, y] lists,
// preserving relative order within each list.
func SplitPoints(points []Point) (positive, negative [][2]float64) {
	positive = make([][2]float64, 0, len(points))
	negative = make([][2]float64, 0)
	for _, p := range points {
		xy := [2]float64{p.X, p.Y}
		if p.Kind == PointNegative {
			negative = append(negative, xy)
		} else {
			positive = append(positive, xy)
		}
	}
	return positive, negative
}

// EqualPoints reports whether two prompt sequences are identical.
func EqualPoints(a, b []Point) bool {
	return slices.Equal(a, b)
}

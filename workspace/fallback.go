package workspace

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/BaSui01/sculptflow/types"
)

// FallbackScore 回退掩码的置信分
const FallbackScore = 0.5

// FallbackMask 按点序列合成回退掩码：正例点填充半径 radius 的实心圆盘，
// 负例点清除同样大小的圆盘。像素 (px, py) 属于圆盘当且仅当
// (px-x)² + (py-y)² <= radius²。
func FallbackMask(width, height int, points []types.Point, radius float64) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, width, height))
	r2 := radius * radius
	for _, p := range points {
		var v uint8
		if p.Kind == types.PointPositive {
			v = 255
		}
		x0 := max(0, int(math.Floor(p.X-radius)))
		x1 := min(width-1, int(math.Ceil(p.X+radius)))
		y0 := max(0, int(math.Floor(p.Y-radius)))
		y1 := min(height-1, int(math.Ceil(p.Y+radius)))
		for py := y0; py <= y1; py++ {
			dy := float64(py) - p.Y
			row := g.Pix[py*g.Stride:]
			for px := x0; px <= x1; px++ {
				dx := float64(px) - p.X
				if dx*dx+dy*dy <= r2 {
					row[px] = v
				}
			}
		}
	}
	return g
}

// SynthesizeFallback 生成 PNG 编码的回退掩码
func SynthesizeFallback(width, height int, points []types.Point, radius float64) (*types.Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("invalid mask size %dx%d", width, height))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, FallbackMask(width, height, points, radius)); err != nil {
		return nil, fmt.Errorf("encode fallback mask: %w", err)
	}
	return &types.Mask{
		Data:     buf.Bytes(),
		Encoding: types.MaskEncodingPNG,
		Width:    width,
		Height:   height,
		Score:    FallbackScore,
		Source:   types.MaskFromFallback,
	}, nil
}

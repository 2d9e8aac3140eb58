// Package maskcache provides internal mask caching.
// This package is internal and should not be imported by external projects.
package maskcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"

	"github.com/BaSui01/sculptflow/types"
)

// Cache 掩码缓存接口
type Cache interface {
	// Get 返回缓存的掩码；未命中时 ok=false 且 err=nil
	Get(ctx context.Context, key string) (mask *types.Mask, ok bool, err error)

	// Set 写入掩码
	Set(ctx context.Context, key string, mask *types.Mask) error

	// Ping 检查后端可用性
	Ping(ctx context.Context) error

	// Close 释放资源
	Close() error
}

// ErrClosed 缓存已关闭
var ErrClosed = errors.New("mask cache is closed")

// Key derives the cache key for a segmentation request.
// Point order matters: the same set in a different order is a different key.
func Key(image []byte, points []types.Point, multimask bool) string {
	h := sha256.New()
	imgSum := sha256.Sum256(image)
	h.Write(imgSum[:])

	var buf [8]byte
	for _, p := range points {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(p.X))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(p.Y))
		h.Write(buf[:])
		h.Write([]byte(p.Kind))
		h.Write([]byte{0})
	}
	if multimask {
		h.Write([]byte("multimask"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

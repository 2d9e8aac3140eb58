package workspace

import "strconv"

// DefaultPalette 对象颜色轮转表
var DefaultPalette = []string{
	"#ef4444", // red
	"#3b82f6", // blue
	"#22c55e", // green
	"#f59e0b", // amber
	"#a855f7", // purple
	"#06b6d4", // cyan
	"#ec4899", // pink
	"#84cc16", // lime
}

// ColorFor returns the palette entry for the n-th object created in a session.
func ColorFor(palette []string, n int) string {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	if n < 0 {
		n = 0
	}
	return palette[n%len(palette)]
}

// NameFor returns the default display name of the n-th object (0-based).
func NameFor(n int) string {
	return "Object " + strconv.Itoa(n+1)
}

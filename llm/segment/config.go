package segment

import "time"

// SAM3Config 配置 SAM3 分割服务客户端
type SAM3Config struct {
	BaseURL   string        `json:"base_url" yaml:"base_url"`
	Timeout   time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MultiMask bool          `json:"multimask,omitempty" yaml:"multimask,omitempty"`
}

// DefaultSAM3Config returns the local server defaults.
func DefaultSAM3Config() SAM3Config {
	return SAM3Config{
		BaseURL: "http://localhost:8001",
		Timeout: 30 * time.Second,
	}
}

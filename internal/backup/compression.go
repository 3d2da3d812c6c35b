package backup

import (
	"path"
	"strings"
)

// CompressionConfig controls archive compression
// Type values: "gzip", "none"
type CompressionConfig struct {
	Type  string `json:"type"`
	Level int    `json:"level,omitempty"`
}

func normalizeCompression(config CompressionConfig) CompressionConfig {
	compressionType := strings.ToLower(strings.TrimSpace(config.Type))
	if compressionType != "none" {
		compressionType = "gzip"
	}

	level := config.Level
	if level == 0 {
		level = 6
	}
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}

	if compressionType == "none" {
		level = 0
	}
	return CompressionConfig{
		Type:  compressionType,
		Level: level,
	}
}

func compressionArchiveExtension(config CompressionConfig) string {
	switch normalizeCompression(config).Type {
	case "none":
		return "tar"
	default:
		return "tar.gz"
	}
}

func detectCompressionFromFilename(filename string) CompressionConfig {
	base := strings.ToLower(path.Base(filename))
	switch {
	case strings.HasSuffix(base, ".tar.gz") || strings.HasSuffix(base, ".tgz"):
		return CompressionConfig{Type: "gzip", Level: 6}
	case strings.HasSuffix(base, ".tar"):
		return CompressionConfig{Type: "none"}
	default:
		return CompressionConfig{Type: "gzip", Level: 6}
	}
}

// excluded reports whether rel, or its base name, matches one of the patterns
func excluded(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

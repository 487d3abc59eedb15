package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultLogConfig(t *testing.T) {
	c := DefaultLogConfig()
	if c.Level != "WARN" || c.Output != "stderr" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if !c.Components["app"] || !c.Components["pipeline"] || c.Components["innertube"] {
		t.Fatalf("unexpected default components: %v", c.Components)
	}
	if err := c.ValidateConfig(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestEnvironmentConfig(t *testing.T) {
	t.Setenv("YT2OGG_LOG_LEVEL", "debug")
	t.Setenv("YT2OGG_LOG_FORMAT", "json")
	t.Setenv("YT2OGG_LOG_OUTPUT", "stdout")
	t.Setenv("YT2OGG_LOG_COMPONENTS", "innertube, downloader")
	t.Setenv("YT2OGG_LOG_CALLER", "1")
	t.Setenv("YT2OGG_LOG_TIMESTAMP", "true")

	c := EnvironmentConfig()
	if c.Level != "debug" || c.Format != "json" || c.Output != "stdout" {
		t.Fatalf("unexpected config: %+v", c)
	}
	if !c.ShowCaller || !c.Timestamp {
		t.Fatal("caller and timestamp should be enabled")
	}
	if !c.Components["innertube"] || !c.Components["downloader"] || c.Components["app"] {
		t.Fatalf("unexpected components: %v", c.Components)
	}
}

func TestEnvironmentConfig_AllComponents(t *testing.T) {
	t.Setenv("YT2OGG_LOG_COMPONENTS", "all")
	c := EnvironmentConfig()
	for _, comp := range AllComponents {
		if !c.Components[string(comp)] {
			t.Errorf("component %s should be enabled", comp)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LogConfig)
		wantErr string
	}{
		{"bad level", func(c *LogConfig) { c.Level = "LOUD" }, "invalid level"},
		{"bad format", func(c *LogConfig) { c.Format = "xml" }, "invalid format"},
		{"bad output", func(c *LogConfig) { c.Output = "syslog" }, "invalid output"},
		{"empty file path", func(c *LogConfig) { c.Output = "file:" }, "invalid output"},
		{"bad size", func(c *LogConfig) { c.Rotation = &RotationConfig{MaxSize: "10XB"} }, "max_size"},
		{"bad age", func(c *LogConfig) { c.Rotation = &RotationConfig{MaxAge: "3w"} }, "max_age"},
		{"negative backups", func(c *LogConfig) { c.Rotation = &RotationConfig{MaxBackups: -1} }, "max_backups"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultLogConfig()
			tt.mutate(c)
			err := c.ValidateConfig()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ValidateConfig() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_DoesNotCreateFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	c := DefaultLogConfig()
	c.Output = "file:" + path
	if err := c.ValidateConfig(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Fatalf("validation should not touch the filesystem, stat err=%v", err)
	}
}

func TestConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	c := DefaultLogConfig()
	c.Level = "TRACE"
	c.Rotation = &RotationConfig{MaxSize: "1MB", MaxBackups: 2}
	if err := c.SaveConfigToFile(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Level != "TRACE" || loaded.Rotation == nil || loaded.Rotation.MaxSize != "1MB" {
		t.Fatalf("unexpected loaded config: %+v", loaded)
	}
}

func TestLoadConfigFromFile_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	if err := os.WriteFile(path, []byte(`{"level":"debug"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Level != "debug" || c.Output != "stderr" || !c.Components["pipeline"] {
		t.Fatalf("partial file should keep defaults: %+v", c)
	}
}

func TestCreateLoggerFromConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "yt2ogg.log")
	c := DefaultLogConfig()
	c.Level = "info"
	c.Output = "file:" + path

	l, err := CreateLoggerFromConfig(c)
	if err != nil {
		t.Fatal(err)
	}
	l.WithComponent(ComponentApp).Info("to file")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file content %q", data)
	}
}

func TestCreateLoggerFromConfig_Rotating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yt2ogg.log")
	c := DefaultLogConfig()
	c.Output = "file:" + path
	c.Rotation = &RotationConfig{MaxSize: "1KB"}

	l, err := CreateLoggerFromConfig(c)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, ok := l.config.Output.(*RotatingWriter); !ok {
		t.Fatalf("output should be a RotatingWriter, got %T", l.config.Output)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"512", 512},
		{"10B", 10},
		{"2KB", 2048},
		{"100MB", 100 << 20},
		{"1 GB", 1 << 30},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseSize(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
	if _, err := parseSize("MB"); err == nil {
		t.Error("parseSize without a number should fail")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30s", 30 * time.Second},
		{"15m", 15 * time.Minute},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseDuration(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	defer SetLogger(nil)

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("Initialize(\"\") should install a silent logger")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	defer SetLogger(nil)

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	core := GetLogger().Core()
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestInitializeToFile(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	defer SetLogger(nil)

	path := filepath.Join(t.TempDir(), "squidly.log")
	if err := InitializeToFile("debug", path); err != nil {
		t.Fatalf("InitializeToFile() error = %v", err)
	}

	LogConnection("10.0.0.7:51234", "clinic1", "connected")
	LogStepTransition("calibration-size", "calibration-speed", "driving")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	for _, want := range []string{"Connection event", "clinic1", "calibration-speed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log file missing %q:\n%s", want, out)
		}
	}
}

func TestInitializeToFile_Silent(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	defer SetLogger(nil)

	path := filepath.Join(t.TempDir(), "squidly.log")
	if err := InitializeToFile("", path); err != nil {
		t.Fatalf("InitializeToFile() error = %v", err)
	}
	Info("not written")
	Sync()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("silent logger created %s (err = %v)", path, err)
	}
}

func TestNamed(t *testing.T) {
	defer SetLogger(nil)
	SetLogger(zap.NewExample())

	if got := Named("relay"); got == nil {
		t.Fatal("Named() returned nil")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", maxPayloadLog+10)
	got := truncate([]byte(long))
	if len(got) != maxPayloadLog+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() length = %d, want %d with ellipsis", len(got), maxPayloadLog+3)
	}
	if got := truncate([]byte("short")); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
}

func TestInitialize_WhileLogging(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	defer SetLogger(nil)
	SetLogger(nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					LogConnection("10.0.0.7:51234", "clinic1", "connected")
					_ = Named("relay")
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		if err := Initialize(""); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		SetLogger(zap.NewNop())
	}
	close(stop)
	wg.Wait()

	if GetLogger() == nil {
		t.Fatal("GetLogger() = nil")
	}
}

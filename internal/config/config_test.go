package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Experiment.FPS != nil {
		t.Fatalf("expected unset fps")
	}
}

func TestLoadConfigValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "[experiment]\nfps = 144\nmax-samples-per-trial = 7\ntrigger-port = \"/dev/ttyUSB0\"\nresponse-timeout = \"3s\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	exp := cfg.Experiment
	if exp.FPS == nil || *exp.FPS != 144 {
		t.Fatalf("fps = %v", exp.FPS)
	}
	if exp.MaxSamplesPerTrial == nil || *exp.MaxSamplesPerTrial != 7 {
		t.Fatalf("max-samples-per-trial = %v", exp.MaxSamplesPerTrial)
	}
	if exp.TriggerPort == nil || *exp.TriggerPort != "/dev/ttyUSB0" {
		t.Fatalf("trigger-port = %v", exp.TriggerPort)
	}
	if exp.MaxSamplesOverall != nil {
		t.Fatalf("expected unset max-samples-overall")
	}
}

func TestLoadConfigRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[experiment]\nframes = 60\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(Template), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
}

func TestPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	if got := DefaultDBPath(); got != filepath.Join("/data", "sp", "sp.db") {
		t.Fatalf("DefaultDBPath = %q", got)
	}
	if got := DefaultDataDir(); got != filepath.Join("/data", "sp", "experiment_data") {
		t.Fatalf("DefaultDataDir = %q", got)
	}
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "sp", "config.toml") {
		t.Fatalf("DefaultConfigPath = %q", got)
	}
	if got := LogFileName("07"); got != "sub-07_task-sp_events.tsv" {
		t.Fatalf("LogFileName = %q", got)
	}
}

func TestSubjectFromLogName(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/data/sub-07_task-sp_events.tsv", "07", true},
		{LogFileName("abc"), "abc", true},
		{"sub-_task-sp_events.tsv", "", false},
		{"events.tsv", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := SubjectFromLogName(tc.path)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("SubjectFromLogName(%q) = %q, %v, want %q, %v", tc.path, got, ok, tc.want, tc.ok)
			}
		})
	}
}

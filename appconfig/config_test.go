package appconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Host != DefaultHost {
		t.Errorf("Default Host = %q; want %q", cfg.Host, DefaultHost)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Default Port = %d; want %d", cfg.Port, DefaultPort)
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("Default Workers = %d; want %d", cfg.Workers, DefaultWorkers)
	}
	if cfg.JobRetention != DefaultJobRetention {
		t.Errorf("Default JobRetention = %d; want %d", cfg.JobRetention, DefaultJobRetention)
	}
	if cfg.JWTSecret == "" {
		t.Error("Default JWTSecret should not be empty")
	}
	if !cfg.ShouldOpenBrowser() {
		t.Error("Default config should open the browser")
	}
}

func TestAddrAndBaseURL(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", Port: 9000}
	if got := cfg.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q", got)
	}
	if got := cfg.BaseURL(); got != "http://127.0.0.1:9000/" {
		t.Errorf("BaseURL() = %q", got)
	}
}

// TestGetSet verifies Get/Set functions for in-memory config
func TestGetSet(t *testing.T) {
	original := Get()
	defer Set(original)

	testConfig := Config{Host: "localhost", Port: 1234, Workers: 2}
	Set(testConfig)

	retrieved := Get()
	if retrieved.Host != testConfig.Host || retrieved.Port != testConfig.Port || retrieved.Workers != testConfig.Workers {
		t.Errorf("Get() = %+v; want %+v", retrieved, testConfig)
	}
}

// TestIsJSONObject tests the JSON object detection helper
func TestIsJSONObject(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{`{}`, true},
		{`{"key": "value"}`, true},
		{`  {  }  `, true},
		{`[]`, false},
		{`"string"`, false},
		{`123`, false},
		{`null`, false},
		{``, false},
	}

	for _, tt := range tests {
		result := isJSONObject([]byte(tt.input))
		if result != tt.expected {
			t.Errorf("isJSONObject(%q) = %v; want %v", tt.input, result, tt.expected)
		}
	}
}

// TestDeepMergeJSON tests the JSON merge functionality
func TestDeepMergeJSON(t *testing.T) {
	tests := []struct {
		name     string
		dst      string
		src      string
		expected string
	}{
		{"Simple merge", `{"a": "1"}`, `{"b": "2"}`, `{"a":"1","b":"2"}`},
		{"Override value", `{"a": "1"}`, `{"a": "2"}`, `{"a":"2"}`},
		{"Nested merge", `{"nested": {"a": "1"}}`, `{"nested": {"b": "2"}}`, `{"nested":{"a":"1","b":"2"}}`},
		{"Add new nested", `{"a": "1"}`, `{"nested": {"b": "2"}}`, `{"a":"1","nested":{"b":"2"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst, src map[string]json.RawMessage
			if err := json.Unmarshal([]byte(tt.dst), &dst); err != nil {
				t.Fatal(err)
			}
			if err := json.Unmarshal([]byte(tt.src), &src); err != nil {
				t.Fatal(err)
			}

			deepMergeJSON(dst, src)

			result, _ := json.Marshal(dst)
			var resultMap, expectedMap map[string]interface{}
			json.Unmarshal(result, &resultMap)
			json.Unmarshal([]byte(tt.expected), &expectedMap)

			if !mapsEqual(resultMap, expectedMap) {
				t.Errorf("deepMergeJSON result = %s; want %s", result, tt.expected)
			}
		})
	}
}

func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if am, ok := v.(map[string]interface{}); ok {
			bm, ok := bv.(map[string]interface{})
			if !ok || !mapsEqual(am, bm) {
				return false
			}
			continue
		}
		if v != bv {
			return false
		}
	}
	return true
}

// TestLoadCreatesDefault checks a missing file is written with defaults
func TestLoadCreatesDefault(t *testing.T) {
	original := Get()
	defer Set(original)

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg, gotPath, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if gotPath != path {
		t.Errorf("LoadFrom() path = %q; want %q", gotPath, path)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d; want %d", cfg.Port, DefaultPort)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
	if Get().JWTSecret != cfg.JWTSecret {
		t.Error("in-memory config not updated by LoadFrom")
	}
}

// TestLoadFillsMissingFields checks defaults are merged and unknown keys kept
func TestLoadFillsMissingFields(t *testing.T) {
	original := Get()
	defer Set(original)

	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"port": 0, "workers": 3, "custom": {"keep": true}}`
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d; want %d", cfg.Port, DefaultPort)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d; want 3", cfg.Workers)
	}
	if cfg.JobRetention != DefaultJobRetention {
		t.Errorf("JobRetention = %d; want %d", cfg.JobRetention, DefaultJobRetention)
	}
	if cfg.JWTSecret == "" {
		t.Error("JWTSecret should be generated")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]json.RawMessage
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if _, ok := onDisk["custom"]; !ok {
		t.Error("unknown key was dropped on save")
	}
	if _, ok := onDisk["jwtSecret"]; !ok {
		t.Error("generated jwtSecret was not saved")
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() should fail on malformed JSON")
	}
}

func TestOpenBrowserFalse(t *testing.T) {
	var cfg Config
	if err := json.Unmarshal([]byte(`{"openBrowser": false}`), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.ShouldOpenBrowser() {
		t.Error("ShouldOpenBrowser() = true; want false")
	}
}

// TestConfigConcurrency tests concurrent access to Get/Set
func TestConfigConcurrency(t *testing.T) {
	original := Get()
	defer Set(original)

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			Set(Config{Port: i + 1})
		}
		done <- true
	}()
	go func() {
		for i := 0; i < 100; i++ {
			_ = Get()
		}
		done <- true
	}()
	<-done
	<-done
}

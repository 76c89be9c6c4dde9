package main

import (
	"testing"

	"github.com/spf13/viper"
)

func TestBuildTaskCollectsProxiesAndCredential(t *testing.T) {
	viper.Set("proxy", []string{"http://a:8080", "http://b:8080"})
	viper.Set("service-account", "svc@example.com")
	viper.Set("key-path", "/tmp/key.json")
	viper.Set("project-id", "proj-1")
	viper.Set("scale-meters", 30)
	viper.Set("output-dir", "./out")
	t.Cleanup(func() {
		viper.Set("proxy", nil)
		viper.Set("service-account", "")
		viper.Set("key-path", "")
		viper.Set("project-id", "")
	})

	task := buildTask("myregion", "POLYGON((0 0,1 0,1 1,0 1,0 0))")

	if len(task.Proxies) != 2 {
		t.Fatalf("expected 2 proxies, got %d", len(task.Proxies))
	}
	if task.Credential.ServiceAccount != "svc@example.com" {
		t.Fatalf("credential not wired: %+v", task.Credential)
	}
	if task.Name != "myregion" || task.OutputDir != "./out" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestBoolToInt(t *testing.T) {
	if boolToInt(true) != 1 || boolToInt(false) != 0 {
		t.Fatalf("boolToInt mismatch")
	}
}

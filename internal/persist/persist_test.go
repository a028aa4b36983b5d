package persist

import (
	"encoding/xml"
	"errors"
	"os"
	"testing"
)

func TestSaveLoadConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := NetworkConfig{
		HomeID:       0xDEADBEEF,
		NodeID:       1,
		PollInterval: int64(30),
		Nodes: []NodeConfig{
			{ID: 2, Basic: 0x04, Generic: 0x10, Specific: 0x01, Values: []Value{{CommandClass: 0x20, Index: 0, Data: "ff"}}},
		},
	}
	if err := SaveConfig(dir, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig(dir, 0xDEADBEEF)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.HomeID != cfg.HomeID || len(got.Nodes) != 1 || got.Nodes[0].ID != 2 {
		t.Fatalf("LoadConfig() = %+v, want round-trip of %+v", got, cfg)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig(dir, 0x12345678)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadConfigHomeIDMismatch(t *testing.T) {
	dir := t.TempDir()
	// ConfigPath is derived from HomeID, so to simulate a mismatch we
	// write a file recording one home id under another home id's path.
	cfg := NetworkConfig{HomeID: 0x11111111, Version: ConfigVersion}
	data, err := xml.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(ConfigPath(dir, 0x33333333), append([]byte(xml.Header), data...), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err = LoadConfig(dir, 0x33333333)
	if !errors.Is(err, ErrHomeIDMismatch) {
		t.Fatalf("err = %v, want ErrHomeIDMismatch", err)
	}
}

func TestLoadConfigVersionTooNew(t *testing.T) {
	dir := t.TempDir()
	cfg := NetworkConfig{HomeID: 0x22222222, Version: ConfigVersion + 1}
	data, err := xml.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(ConfigPath(dir, cfg.HomeID), append([]byte(xml.Header), data...), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err = LoadConfig(dir, 0x22222222)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}
}

func TestButtonMapRoundTrip(t *testing.T) {
	dir := t.TempDir()
	var m ButtonMap
	m.Set(5, 1, 50)
	if err := SaveButtonMap(dir, m); err != nil {
		t.Fatalf("SaveButtonMap: %v", err)
	}
	got, err := LoadButtonMap(dir)
	if err != nil {
		t.Fatalf("LoadButtonMap: %v", err)
	}
	if len(got.Nodes) != 1 || got.Nodes[0].ID != 5 || len(got.Nodes[0].Buttons) != 1 ||
		got.Nodes[0].Buttons[0].ID != 1 || got.Nodes[0].Buttons[0].VirtualNodeID != 50 {
		t.Fatalf("LoadButtonMap() = %+v", got)
	}
}

func TestButtonMapSetThenDelete(t *testing.T) {
	var m ButtonMap
	m.Set(5, 1, 50)
	m.Set(5, 2, 51)
	m.Delete(5, 1)
	if len(m.Nodes) != 1 || len(m.Nodes[0].Buttons) != 1 || m.Nodes[0].Buttons[0].ID != 2 {
		t.Fatalf("after delete = %+v", m.Nodes)
	}
}

package config

import "testing"

func TestDefaultHasSaveConfigurationOn(t *testing.T) {
	o := Default()
	if !o.SaveConfiguration {
		t.Error("Default() should persist configuration by default")
	}
	if o.PollInterval <= 0 {
		t.Error("Default() should set a positive poll interval")
	}
}

func TestGetKnownAndUnknownOption(t *testing.T) {
	o := Default()
	v, ok := o.Get("SaveConfiguration")
	if !ok || v != true {
		t.Fatalf("Get(SaveConfiguration) = %v, %v", v, ok)
	}
	if _, ok := o.Get("NotARealOption"); ok {
		t.Fatal("Get on an unknown name should report false")
	}
}

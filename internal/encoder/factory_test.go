package encoder

import "testing"

func TestNew_Mock(t *testing.T) {
	e, err := New(Config{Type: "mock", Dimensions: 128})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if e.Dimensions() != 128 {
		t.Errorf("dimensions = %d, want 128", e.Dimensions())
	}
	if e.ModelName() == "" {
		t.Error("mock encoder should report a model name")
	}
}

func TestNew_RemoteNeedsKey(t *testing.T) {
	if _, err := New(Config{Type: "remote"}); err == nil {
		t.Fatal("remote without API key should fail")
	}
}

func TestNew_Remote(t *testing.T) {
	e, err := New(Config{Type: "remote", APIKey: "key", ModelName: "nvidia/nvclip"})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if e.Dimensions() != 512 {
		t.Errorf("dimensions = %d, want 512", e.Dimensions())
	}
}

func TestNew_UnsupportedType(t *testing.T) {
	if _, err := New(Config{Type: "quantum"}); err == nil {
		t.Fatal("expected error for unsupported encoder type")
	}
}

func TestNew_TypeIsCaseInsensitive(t *testing.T) {
	e, err := New(Config{Type: "MOCK"})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
}

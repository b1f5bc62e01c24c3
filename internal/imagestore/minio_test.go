package imagestore

import "testing"

func TestNewMinIOClient(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{name: "host and port", endpoint: "localhost:9000"},
		{name: "scheme is not allowed", endpoint: "http://localhost:9000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMinIOClient(tt.endpoint, "access", "secret", false)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMinIOClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMinIOStore_Ref(t *testing.T) {
	mc, err := NewMinIOClient("localhost:9000", "access", "secret", false)
	if err != nil {
		t.Fatal(err)
	}
	s := NewMinIOStore(mc, "product-images")

	if got := s.ref(objectName("P1_2", "image/jpeg")); got != "s3://product-images/P1_2.jpg" {
		t.Errorf("ref() = %s", got)
	}
}

func TestHasKnownExtension(t *testing.T) {
	for name, want := range map[string]bool{
		"P1.jpg":  true,
		"P1.webp": true,
		"P1.txt":  false,
		"P1":      false,
	} {
		if got := hasKnownExtension(name); got != want {
			t.Errorf("hasKnownExtension(%q) = %v, want %v", name, got, want)
		}
	}
}

package langdetect

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCode string
		wantName string
	}{
		{
			"english",
			"The quick brown fox jumps over the lazy dog and runs into the forest.",
			"en", "English",
		},
		{
			"german",
			"Der schnelle braune Fuchs springt über den faulen Hund und läuft davon.",
			"de", "German",
		},
		{
			"spanish",
			"El rápido zorro marrón salta sobre el perro perezoso y corre hacia el bosque.",
			"es", "Spanish",
		},
		{"empty", "", "auto", "Unknown"},
		{"whitespace only", "   \n\t", "auto", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, name := Detect(tt.text)
			if code != tt.wantCode || name != tt.wantName {
				t.Errorf("Detect(%q) = (%q, %q), want (%q, %q)",
					tt.text, code, name, tt.wantCode, tt.wantName)
			}
		})
	}
}

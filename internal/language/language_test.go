package language

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"ger", "de"},
		{"deu", "de"},
		{"fre", "fr"},
		{"English", "en"},
		{"deutsch", "de"},
		{"en-us", "en-US"},
		{"en_GB", "en-GB"},
		{"pt-br", "pt-BR"},
		{" de-DE ", "de-DE"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeErrors(t *testing.T) {
	if _, err := Normalize("  "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := Normalize("not a language!"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestBase(t *testing.T) {
	tests := map[string]string{
		"en-US": "en",
		"de_AT": "de",
		"ger":   "de",
		"fr":    "fr",
		"":      "",
	}
	for input, want := range tests {
		if got := Base(input); got != want {
			t.Errorf("Base(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSupportedAndList(t *testing.T) {
	if !Supported("en-GB") {
		t.Fatal("expected en-GB supported")
	}
	if Supported("ja") {
		t.Fatal("expected ja unsupported")
	}
	list := List()
	if len(list) != len(languages) {
		t.Fatalf("unexpected list length %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1] > list[i] {
			t.Fatalf("list not sorted: %v", list)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("en-US"); got != "American English" {
		t.Errorf("DisplayName(en-US) = %q", got)
	}
	if got := DisplayName("de"); got != "German" {
		t.Errorf("DisplayName(de) = %q", got)
	}
	if got := DisplayName(""); got != "Unknown" {
		t.Errorf("DisplayName(\"\") = %q", got)
	}
	if got := NativeName("de"); got != "Deutsch" {
		t.Errorf("NativeName(de) = %q", got)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"english", "This is the best thing that I have seen in years.", "en", true},
		{"german", "Das ist nicht die Antwort, die ich wollte.", "de", true},
		{"french", "Je pense que nous sommes dans la bonne direction.", "fr", true},
		{"spanish", "El perro está en la casa y no quiere salir.", "es", true},
		{"too short", "Hello", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("Detect(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

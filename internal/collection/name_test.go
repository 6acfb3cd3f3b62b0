package collection

import "testing"

func TestGenerateInternalName(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name, err := GenerateInternalName()
		if err != nil {
			t.Fatalf("GenerateInternalName() error = %v", err)
		}
		if err := ValidateInternalName(name); err != nil {
			t.Fatalf("generated name '%s' fails validation: %v", name, err)
		}
		if seen[name] {
			t.Fatalf("generated name '%s' repeated", name)
		}
		seen[name] = true
	}
}

func TestValidateInternalName(t *testing.T) {
	valid := []string{
		"abc",
		"collection_01",
		"a-b-c",
		"c1.segment.2",
		"Xy9",
	}
	for _, name := range valid {
		if err := ValidateInternalName(name); err != nil {
			t.Errorf("ValidateInternalName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		"ab",                     // too short
		"-leading",               // must start alphanumeric
		"trailing_",              // must end alphanumeric
		"has space",              // illegal character
		"a..b",                   // consecutive periods
		"10.0.0.1",               // IPv4 lookalike
		"a234567890a234567890a234567890a234567890a234567890a234567890abcd", // 64 chars
	}
	for _, name := range invalid {
		if err := ValidateInternalName(name); err == nil {
			t.Errorf("ValidateInternalName(%q) = nil, want error", name)
		}
	}
}

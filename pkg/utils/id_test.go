package utils

import (
	"strings"
	"testing"
)

func TestGenerateRunID(t *testing.T) {
	id1 := GenerateRunID()
	id2 := GenerateRunID()

	if !strings.HasPrefix(id1, "run-") {
		t.Errorf("GenerateRunID should start with run-: %s", id1)
	}
	if id1 == id2 {
		t.Error("GenerateRunID should return unique IDs")
	}
	// run-YYYYMMDD-HHMMSS-xxxxxxxx
	if len(id1) != len("run-20060102-150405-")+8 {
		t.Errorf("unexpected run id length: %s", id1)
	}
	if err := ValidateRunID(id1); err != nil {
		t.Errorf("generated id should validate: %v", err)
	}
}

func TestValidateRunID(t *testing.T) {
	for _, id := range []string{"run-1", "abc_DEF.2"} {
		if err := ValidateRunID(id); err != nil {
			t.Errorf("ValidateRunID(%q) unexpected error: %v", id, err)
		}
	}
	for _, id := range []string{"a/b", "a:stop", "a b", "a?x"} {
		if err := ValidateRunID(id); err == nil {
			t.Errorf("ValidateRunID(%q) expected error", id)
		}
	}
}

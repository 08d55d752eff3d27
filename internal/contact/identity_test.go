package contact_test

import (
	"reflect"
	"testing"

	"cf-civicrm/internal/contact"
	"cf-civicrm/internal/crm"
)

func TestMergeSubTypes(t *testing.T) {
	tests := []struct {
		name       string
		existing   []string
		configured string
		want       []string
	}{
		{"append", []string{"Student"}, "Volunteer", []string{"Student", "Volunteer"}},
		{"already present", []string{"Student", "Volunteer"}, "Volunteer", []string{"Student", "Volunteer"}},
		{"none configured", []string{"Student"}, "", []string{"Student"}},
		{"duplicates dropped", []string{"Student", "", "Student"}, "Parent", []string{"Student", "Parent"}},
		{"empty existing", nil, "Parent", []string{"Parent"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contact.MergeSubTypes(tt.existing, tt.configured)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestOtherParty(t *testing.T) {
	rel := crm.Record{"contact_id_a": 9, "contact_id_b": 7}
	if got := contact.OtherParty(rel, 7); got != 9 {
		t.Errorf("Expected 9, got %d", got)
	}
	if got := contact.OtherParty(rel, 9); got != 7 {
		t.Errorf("Expected 7, got %d", got)
	}
}

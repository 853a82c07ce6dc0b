package patient

import (
	"testing"
	"time"
)

func TestPatient_AgeAt(t *testing.T) {
	birth := time.Date(1950, 6, 15, 0, 0, 0, 0, time.UTC)
	p := &Patient{BirthDate: &birth}

	tests := []struct {
		day  time.Time
		want int
	}{
		{time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), 73},
		{time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 74},
		{time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), 74},
	}
	for _, tt := range tests {
		got, ok := p.AgeAt(tt.day)
		if !ok || got != tt.want {
			t.Errorf("AgeAt(%s) = %d, %v; want %d", tt.day.Format("2006-01-02"), got, ok, tt.want)
		}
	}

	if _, ok := (&Patient{}).AgeAt(time.Now()); ok {
		t.Error("expected unknown age without birth date")
	}
	if _, ok := p.AgeAt(time.Date(1949, 1, 1, 0, 0, 0, 0, time.UTC)); ok {
		t.Error("expected no age before birth")
	}
}

func TestPatient_Apply(t *testing.T) {
	p := &Patient{
		FirstName:      "Ana",
		LastName:       "García",
		Email:          strPtr("ana@example.com"),
		MedicalHistory: MedicalHistory{Diabetes: true, Notes: strPtr("control anual")},
	}
	p.Apply(Patch{
		LastName: strPtr("García López"),
		Email:    strPtr("  "),
		Address:  strPtr(" Calle Mayor 1 "),
		Active:   boolPtr(false),
		MedicalHistory: &HistoryPatch{
			Diabetes: boolPtr(false),
			Smoker:   boolPtr(true),
			Notes:    strPtr(""),
		},
	})

	if p.FirstName != "Ana" || p.LastName != "García López" {
		t.Errorf("unexpected names %q %q", p.FirstName, p.LastName)
	}
	if p.Email != nil {
		t.Error("expected blank email to clear")
	}
	if p.Address == nil || *p.Address != "Calle Mayor 1" {
		t.Errorf("expected trimmed address, got %v", p.Address)
	}
	if p.Active {
		t.Error("expected inactive")
	}
	h := p.MedicalHistory
	if h.Diabetes || !h.Smoker || h.Notes != nil {
		t.Errorf("unexpected history %+v", h)
	}
}

func TestPatient_FullName(t *testing.T) {
	if got := (&Patient{FirstName: "Ana", LastName: ""}).FullName(); got != "Ana" {
		t.Errorf("expected trimmed name, got %q", got)
	}
}

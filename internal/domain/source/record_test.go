package source

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gcasillas/clinical-imaging/internal/domain/admission"
	"github.com/gcasillas/clinical-imaging/internal/platform/dicomweb"
)

func TestDecode_Study(t *testing.T) {
	rec, err := Decode([]byte(`{"00100010": {"Value": [{"Alphabetic": "CASILLAS, GABE"}]}, "0020000D": {"Value": ["1.2.3.4"]}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.IsStudy() {
		t.Fatal("expected a study record")
	}
	if rec.SubjectName() != "CASILLAS, GABE" {
		t.Errorf("expected 'CASILLAS, GABE', got %q", rec.SubjectName())
	}
	if rec.StudyInstanceUID() != "1.2.3.4" {
		t.Errorf("expected UID '1.2.3.4', got %q", rec.StudyInstanceUID())
	}
}

func TestDecode_Admission(t *testing.T) {
	rec, err := Decode([]byte(`{"id": "PAT777", "fullName": "JANE DOE", "status": "Admitted"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.IsStudy() {
		t.Fatal("expected an admission record")
	}
	if rec.Admission == nil || rec.Admission.ID != "PAT777" {
		t.Fatalf("expected admission PAT777, got %+v", rec.Admission)
	}
	if rec.SubjectName() != "JANE DOE" {
		t.Errorf("expected 'JANE DOE', got %q", rec.SubjectName())
	}
	if rec.StudyInstanceUID() != "" {
		t.Errorf("expected no UID, got %q", rec.StudyInstanceUID())
	}
}

func TestDecode_StudyWithoutPatientName(t *testing.T) {
	rec, err := Decode([]byte(`{"00080060": {"Value": ["CT"]}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.IsStudy() {
		t.Error("expected metadata without 00100010 to be read as an admission")
	}
	if rec.SubjectName() != "" {
		t.Errorf("expected empty subject name, got %q", rec.SubjectName())
	}
}

func TestDecode_PatientNameWins(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"extra non-tag key", `{"00100010":{"vr":"PN","Value":[{"Alphabetic":"CASILLAS, GABE"}]},"0020000D":{"vr":"UI","Value":["1.2.3.4"]},"transferSyntaxUID":"1.2.840.10008.1.2.1"}`},
		{"malformed wrapper", `{"00100010":{"vr":"PN","Value":[{"Alphabetic":"CASILLAS, GABE"}]},"0020000D":{"vr":"UI","Value":["1.2.3.4"]},"00080020":{"vr":"DA","Value":"20260227"}}`},
		{"lower case tags", `{"00100010":{"Value":["CASILLAS, GABE"]},"0020000d":{"Value":["1.2.3.4"]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Decode([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !rec.IsStudy() || rec.Admission != nil {
				t.Fatalf("expected a study record, got %+v", rec)
			}
			if rec.SubjectName() != "CASILLAS, GABE" || rec.StudyInstanceUID() != "1.2.3.4" {
				t.Errorf("unexpected subject %q uid %q", rec.SubjectName(), rec.StudyInstanceUID())
			}
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, in := range []string{`[1,2]`, `"text"`, `{"id": 5}`} {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrUnrecognized) {
			t.Errorf("Decode(%s): expected ErrUnrecognized, got %v", in, err)
		}
	}
}

func TestRecord_MarshalJSON(t *testing.T) {
	study := FromStudy(dicomweb.Metadata{}.Set(dicomweb.TagModality, dicomweb.Strings("CS", "MR")))
	b, err := json.Marshal(study)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(b) != `{"00080060":{"vr":"CS","Value":["MR"]}}` {
		t.Errorf("unexpected study JSON: %s", b)
	}

	adm := FromAdmission(&admission.Record{ID: "PAT1", FullName: "JOHN DOE", Status: admission.StatusAdmitted})
	b, err = json.Marshal(adm)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var back admission.Record
	if err := json.Unmarshal(b, &back); err != nil || back.ID != "PAT1" {
		t.Errorf("expected admission JSON, got %s (%v)", b, err)
	}

	if b, _ := json.Marshal(Record{}); string(b) != "{}" {
		t.Errorf("expected {} for empty record, got %s", b)
	}
}

package database

import (
	"reflect"
	"testing"
)

func TestTypeForName(t *testing.T) {
	tests := []struct {
		name string
		want FaceType
	}{
		{"Alice", TypeKnown},
		{"face_0", TypeUnknown},
		{"face_12", TypeUnknown},
		{"face", TypeKnown},
		{"Face_1", TypeKnown},
		{"surface_1", TypeKnown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TypeForName(tc.name); got != tc.want {
				t.Errorf("TypeForName(%q) = %s, want %s", tc.name, got, tc.want)
			}
		})
	}
}

func TestFaceTypeValid(t *testing.T) {
	if !TypeKnown.Valid() || !TypeUnknown.Valid() {
		t.Error("expected KNOWN and UNKNOWN to be valid")
	}
	if FaceType("known").Valid() {
		t.Error("type matching is case-sensitive")
	}
}

func TestResolveColumns(t *testing.T) {
	tests := []struct {
		name    string
		in      []Column
		want    []Column
		wantErr bool
	}{
		{"empty selects all", nil, AllColumns, false},
		{"star selects all", []Column{ColumnAll}, AllColumns, false},
		{"star wins", []Column{ColumnName, ColumnAll}, AllColumns, false},
		{"keeps order", []Column{ColumnType, ColumnName}, []Column{ColumnType, ColumnName}, false},
		{"dedups", []Column{ColumnName, ColumnName, ColumnID}, []Column{ColumnName, ColumnID}, false},
		{"unknown", []Column{"password"}, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveColumns(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseColumns(t *testing.T) {
	got, err := ParseColumns(" Name , type,,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Column{ColumnName, ColumnType}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if all, _ := ParseColumns(""); !reflect.DeepEqual(all, AllColumns) {
		t.Errorf("empty input should select all columns, got %v", all)
	}
	if _, err := ParseColumns("name,secret"); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestSelectList(t *testing.T) {
	if got := SelectList([]Column{ColumnID, ColumnEncoding}); got != "id, encoding" {
		t.Errorf("SelectList = %q", got)
	}
}

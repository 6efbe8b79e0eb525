package tables

import (
	"errors"
	"testing"
)

const testPrefix = "tables:tables_test"

func TestLookupPole_Total(t *testing.T) {
	tests := []struct {
		label  string
		letter string
		model  string
	}{
		{"A", "A", "5"},
		{"ativo", "A", "5"},
		{" Ativo ", "A", "5"},
		{"p", "P", "6"},
		{"PASSIVO", "P", "6"},
		{"N", "N", "7"},
		{"neutro", "N", "7"},
	}
	for _, tt := range tests {
		got, err := LookupPole(tt.label)
		if err != nil {
			t.Errorf("%s - LookupPole(%q) unexpected error: %v", testPrefix, tt.label, err)
			continue
		}
		if got.Letter != tt.letter || got.ModelCode != tt.model {
			t.Errorf("%s - LookupPole(%q) = %+v, want letter=%s model=%s", testPrefix, tt.label, got, tt.letter, tt.model)
		}
	}
}

func TestLookupPole_Unknown(t *testing.T) {
	for _, label := range []string{"", "X", "ATIVA", "autor"} {
		_, err := LookupPole(label)
		var le *LookupError
		if !errors.As(err, &le) {
			t.Errorf("%s - LookupPole(%q) expected *LookupError, got %v", testPrefix, label, err)
			continue
		}
		if le.Table != "pole" {
			t.Errorf("%s - LookupError.Table = %q, want pole", testPrefix, le.Table)
		}
	}
}

func TestLookupTribunal(t *testing.T) {
	got, err := LookupTribunal("stj")
	if err != nil || got != TribunalSTJ {
		t.Errorf("%s - LookupTribunal(stj) = %q, %v", testPrefix, got, err)
	}
	if _, err := LookupTribunal("STF"); err == nil {
		t.Errorf("%s - expected STF to be rejected", testPrefix)
	}
	code, err := TransitBody(TribunalTST)
	if err != nil || code != "122" {
		t.Errorf("%s - TransitBody(TST) = %q, %v, want 122", testPrefix, code, err)
	}
}

func TestLookupRouting(t *testing.T) {
	tests := []struct {
		tribunal Tribunal
		label    string
		want     int
	}{
		{TribunalSTJ, "Corte Especial", 1},
		{TribunalSTJ, "02 turma", 6},
		{TribunalSTJ, "Superior Tribunal de Justiça", 14},
		{TribunalTST, "Órgão Especial", 15},
		{TribunalTST, "08  TURMA", 14},
		{TribunalTST, "Corregedoria-Geral da Justiça do Trabalho", 1},
	}
	for _, tt := range tests {
		got, err := LookupRouting(tt.tribunal, tt.label)
		if err != nil {
			t.Errorf("%s - LookupRouting(%s, %q) unexpected error: %v", testPrefix, tt.tribunal, tt.label, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s - LookupRouting(%s, %q) = %d, want %d", testPrefix, tt.tribunal, tt.label, got, tt.want)
		}
	}

	if _, err := LookupRouting(TribunalSTJ, "07 TURMA"); err == nil {
		t.Errorf("%s - expected 07 TURMA to be unknown for STJ", testPrefix)
	}
}

func TestLookupActionType(t *testing.T) {
	got, err := LookupActionType(TribunalSTJ, "Reclamação")
	if err != nil || got != 245 {
		t.Errorf("%s - LookupActionType(STJ, Reclamação) = %d, %v, want 245", testPrefix, got, err)
	}
	got, err = LookupActionType(TribunalTST, "recurso de revista")
	if err != nil || got != 132 {
		t.Errorf("%s - LookupActionType(TST, recurso de revista) = %d, %v, want 132", testPrefix, got, err)
	}
	if _, err := LookupActionType(TribunalTST, "RECURSO ESPECIAL"); err == nil {
		t.Errorf("%s - expected RECURSO ESPECIAL to be unknown for TST", testPrefix)
	}
}

func TestLookupCNJClass(t *testing.T) {
	tests := []struct {
		tribunal Tribunal
		label    string
		want     string
	}{
		{TribunalSTJ, "RECURSO ESPECIAL", "1032"},
		{TribunalSTJ, "AGRAVO DE INSTRUMENTO", "1002"},
		{TribunalTST, "Agravo de Instrumento", "1002"},
		{TribunalTST, "Recurso Ordinário", "211"},
	}
	for _, tt := range tests {
		got, err := LookupCNJClass(tt.tribunal, tt.label)
		if err != nil || got != tt.want {
			t.Errorf("%s - LookupCNJClass(%s, %q) = %q, %v, want %q", testPrefix, tt.tribunal, tt.label, got, err, tt.want)
		}
	}
	if _, err := LookupCNJClass(TribunalSTJ, "RECURSO DE REVISTA"); err == nil {
		t.Errorf("%s - expected RECURSO DE REVISTA to be refused for STJ", testPrefix)
	}
	if _, err := LookupCNJClass(TribunalTST, "RECURSO EXTRAORDINARIO"); err == nil {
		t.Errorf("%s - expected RECURSO EXTRAORDINARIO to have no CNJ class", testPrefix)
	}
}

func TestFold(t *testing.T) {
	if got := Fold("  reclamação  "); got != "RECLAMACAO" {
		t.Errorf("%s - Fold = %q, want RECLAMACAO", testPrefix, got)
	}
	if got := Fold("01\tSeção"); got != "01 SECAO" {
		t.Errorf("%s - Fold = %q, want 01 SECAO", testPrefix, got)
	}
}

func TestRelationship(t *testing.T) {
	if got, ok := Relationship(3); !ok || got != "Clientes" {
		t.Errorf("%s - Relationship(3) = %q, %v", testPrefix, got, ok)
	}
	if _, ok := Relationship(4); ok {
		t.Errorf("%s - Relationship(4) should be unknown", testPrefix)
	}
}

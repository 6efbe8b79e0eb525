package cadastro

import (
	"errors"
	"testing"
)

const requestTestPrefix = "cadastro:request_test"

func TestNormalizeNPJ(t *testing.T) {
	tests := map[string]string{
		"2020/0012345":   "20200012345",
		" 2020/0012345 ": "20200012345",
		"20200012345":    "20200012345",
		"":               "",
	}
	for in, want := range tests {
		if got := NormalizeNPJ(in); got != want {
			t.Errorf("%s - NormalizeNPJ(%q) = %q, want %q", requestTestPrefix, in, got, want)
		}
	}
}

func TestParseFilingDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"05.02.2025", "05.02.2025", false},
		{"05/02/2025", "05.02.2025", false},
		{" 5.2.2025", "", true},
		{"31.02.2025", "", true},
		{"2025-02-05", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFilingDate(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("%s - ParseFilingDate(%q) = %q, %v", requestTestPrefix, tt.in, got, err)
		}
		var verr *ValidationError
		if err != nil && (!errors.As(err, &verr) || verr.Field != "autuacao") {
			t.Errorf("%s - error should name autuacao: %v", requestTestPrefix, err)
		}
	}
}

func TestRewriteNature(t *testing.T) {
	for in, want := range map[int]int{3: 2, 2: 2, 1: 1, 5: 5} {
		if got := RewriteNature(in); got != want {
			t.Errorf("%s - RewriteNature(%d) = %d, want %d", requestTestPrefix, in, got, want)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	if err := testRequest().Validate(); err != nil {
		t.Fatalf("%s - valid request rejected: %v", requestTestPrefix, err)
	}

	var nilReq *Request
	if err := nilReq.Validate(); err == nil {
		t.Errorf("%s - nil request accepted", requestTestPrefix)
	}

	tests := []struct {
		field  string
		mutate func(r *Request)
	}{
		{"npj", func(r *Request) { r.NPJ = "  " }},
		{"npj", func(r *Request) { r.NPJ = "2020 0012345" }},
		{"polo", func(r *Request) { r.Pole = "Z" }},
		{"autuacao", func(r *Request) { r.FilingDate = "yesterday" }},
		{"tribunal", func(r *Request) { r.Tribunal = "TJXX" }},
		{"tramitacao", func(r *Request) { r.Routing = "99 TURMA" }},
		{"tipoAcao", func(r *Request) { r.ActionType = "MANDADO DE NADA" }},
		{"advogado", func(r *Request) { r.Attorney = "" }},
	}
	for _, tt := range tests {
		r := testRequest()
		tt.mutate(r)
		var verr *ValidationError
		if err := r.Validate(); !errors.As(err, &verr) || verr.Field != tt.field {
			t.Errorf("%s - want ValidationError on %s, got %v", requestTestPrefix, tt.field, err)
		}
	}
}

func TestResolveStripsNumbers(t *testing.T) {
	r := testRequest()
	r.Publication = "12.345-6"
	r.Others = "  REF 1  "
	res, err := r.resolve()
	if err != nil {
		t.Fatalf("%s - resolve: %v", requestTestPrefix, err)
	}
	if res.cnj != "00013528520008060119" || res.publication != "123456" || res.others != "REF 1" {
		t.Errorf("%s - resolved = %+v", requestTestPrefix, res)
	}
}

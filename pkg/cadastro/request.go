package cadastro

import (
	"strings"
	"time"

	"github.com/morezero/cadastro-incidental/pkg/matching"
	"github.com/morezero/cadastro-incidental/pkg/tables"
)

const filingDateLayout = "02.01.2006"

// Request describes the incidental to register and what the caller expects to find on it.
type Request struct {
	// NPJ of the principal case, e.g. "2020/0012345".
	NPJ         string           `json:"npj"`
	Pole        string           `json:"polo"`
	FilingDate  string           `json:"autuacao"`
	CNJ         string           `json:"cnj"`
	Publication string           `json:"publicacao"`
	Parties     matching.Buckets `json:"partes"`
	Routing     string           `json:"tramitacao"`
	Attorney    string           `json:"advogado"`
	ActionType  string           `json:"tipoAcao"`
	Tribunal    string           `json:"tribunal"`
	Others      string           `json:"outros,omitempty"`
	Synopsis    string           `json:"sinopse,omitempty"`
}

// resolved is a request after validation: every label turned into its portal code.
type resolved struct {
	npj         string
	pole        tables.Pole
	filingDate  string
	cnj         string
	publication string
	others      string
	tribunal    tables.Tribunal
	transitBody string
	routingCode int
	actionCode  int
	cnjClass    string
}

var numberStripper = strings.NewReplacer("-", "", ".", "", "/", "")

// NormalizeNPJ drops the slash separator the portal omits in paths.
func NormalizeNPJ(npj string) string {
	return strings.ReplaceAll(strings.TrimSpace(npj), "/", "")
}

// Validate checks the request and resolves every lookup without touching the portal.
func (r *Request) Validate() error {
	_, err := r.resolve()
	return err
}

func (r *Request) resolve() (resolved, error) {
	var out resolved
	if r == nil {
		return out, &ValidationError{Field: "request", Message: "missing"}
	}

	required := []struct {
		field string
		value string
	}{
		{"npj", r.NPJ},
		{"polo", r.Pole},
		{"autuacao", r.FilingDate},
		{"cnj", r.CNJ},
		{"publicacao", r.Publication},
		{"tramitacao", r.Routing},
		{"advogado", r.Attorney},
		{"tipoAcao", r.ActionType},
		{"tribunal", r.Tribunal},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return out, &ValidationError{Field: f.field, Message: "is required"}
		}
	}

	out.npj = NormalizeNPJ(r.NPJ)
	if strings.ContainsAny(out.npj, " \t?#") {
		return out, &ValidationError{Field: "npj", Message: "must not contain spaces, '?' or '#'"}
	}

	date, err := ParseFilingDate(r.FilingDate)
	if err != nil {
		return out, err
	}
	out.filingDate = date

	if out.pole, err = tables.LookupPole(r.Pole); err != nil {
		return out, lookupFailed("polo", err)
	}
	if out.tribunal, err = tables.LookupTribunal(r.Tribunal); err != nil {
		return out, lookupFailed("tribunal", err)
	}
	if out.transitBody, err = tables.TransitBody(out.tribunal); err != nil {
		return out, lookupFailed("tribunal", err)
	}
	if out.routingCode, err = tables.LookupRouting(out.tribunal, r.Routing); err != nil {
		return out, lookupFailed("tramitacao", err)
	}
	if out.actionCode, err = tables.LookupActionType(out.tribunal, r.ActionType); err != nil {
		return out, lookupFailed("tipoAcao", err)
	}
	if out.cnjClass, err = tables.LookupCNJClass(out.tribunal, r.ActionType); err != nil {
		return out, lookupFailed("tipoAcao", err)
	}

	out.cnj = numberStripper.Replace(strings.TrimSpace(r.CNJ))
	out.publication = numberStripper.Replace(strings.TrimSpace(r.Publication))
	out.others = strings.TrimSpace(r.Others)
	return out, nil
}

// ParseFilingDate accepts dd.mm.yyyy or dd/mm/yyyy and returns the dotted form the portal wants.
func ParseFilingDate(s string) (string, error) {
	dotted := strings.ReplaceAll(strings.TrimSpace(s), "/", ".")
	t, err := time.Parse(filingDateLayout, dotted)
	if err != nil {
		return "", &ValidationError{Field: "autuacao", Message: "expected dd.mm.yyyy or dd/mm/yyyy", Err: err}
	}
	return t.Format(filingDateLayout), nil
}

// RewriteNature applies the portal quirk where nature 3 must be registered as 2.
func RewriteNature(code int) int {
	if code == 3 {
		return 2
	}
	return code
}

func lookupFailed(field string, err error) error {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

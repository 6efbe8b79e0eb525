// Package tables holds the closed code tables the portal expects for pole,
// tribunal, routing body, action type and CNJ class.
package tables

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tribunal is a superior court the registration flow knows how to route to.
type Tribunal string

const (
	TribunalSTJ Tribunal = "STJ"
	TribunalTST Tribunal = "TST"
)

// Pole is the bank's side in the lawsuit.
type Pole struct {
	// Letter is the canonical pole letter sent as poloBanco (A, P or N).
	Letter string
	// ModelCode is codigoTipoModeloCadastramento for the creation payload.
	ModelCode string
}

// LookupError reports a label outside a table's closed set.
type LookupError struct {
	Table string
	Label string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Table, e.Label)
}

var poles = map[string]Pole{
	"A":       {Letter: "A", ModelCode: "5"},
	"ATIVO":   {Letter: "A", ModelCode: "5"},
	"P":       {Letter: "P", ModelCode: "6"},
	"PASSIVO": {Letter: "P", ModelCode: "6"},
	"N":       {Letter: "N", ModelCode: "7"},
	"NEUTRO":  {Letter: "N", ModelCode: "7"},
}

// codigoOrgaoTransito per tribunal.
var transitBodies = map[Tribunal]string{
	TribunalSTJ: "81",
	TribunalTST: "122",
}

var routing = map[Tribunal]map[string]int{
	TribunalSTJ: {
		"CORTE ESPECIAL":               1,
		"TRIBUNAL PLENO":               2,
		"01 SECAO":                     3,
		"01 TURMA":                     4,
		"02 SECAO":                     5,
		"02 TURMA":                     6,
		"03 SECAO":                     7,
		"03 TURMA":                     8,
		"04 TURMA":                     9,
		"05 TURMA":                     10,
		"06 TURMA":                     11,
		"PRESIDENCIA":                  12,
		"SUPERIOR TRIBUNAL DE JUSTICA": 14,
	},
	TribunalTST: {
		"CORREGEDORIA-GERAL DA JUSTICA DO TRABALHO":   1,
		"TRIBUNAL PLENO":                              2,
		"SECAO ESPECIALIZADA EM DISSIDIOS COLETIVOS":  3,
		"SUBSECAO I ESPECIALIZ DISSIDIOS INDIVIDUAIS": 4,
		"SUBSECAO II ESPECIALI DISSIDIOS INDIVIDUAIS": 5,
		"01 TURMA":       6,
		"02 TURMA":       7,
		"03 TURMA":       8,
		"04 TURMA":       9,
		"05 TURMA":       10,
		"06 TURMA":       11,
		"07 TURMA":       12,
		"PRESIDENCIA":    13,
		"08 TURMA":       14,
		"ORGAO ESPECIAL": 15,
	},
}

var actionTypes = map[Tribunal]map[string]int{
	TribunalSTJ: {
		"RECURSO ESPECIAL":           20065,
		"AGRAVO EM RECURSO ESPECIAL": 226,
		"CONFLITO DE COMPETENCIA":    35,
		"CONFLITO DE COMPETECIA":     35,
		"CAUTELAR":                   20078,
		"RECLAMACAO":                 245,
		"AGRAVO DE INSTRUMENTO":      1,
	},
	TribunalTST: {
		"AGRAVO DE INSTRUMENTO":  1,
		"RECURSO DE REVISTA":     132,
		"RECURSO EXTRAORDINARIO": 135,
		"RECURSO ORDINARIO":      136,
	},
}

// cnjClasses is keyed by action label alone. The portal table lists AGRAVO DE
// INSTRUMENTO twice (1044 next to the STJ labels, 1002 next to the TST ones)
// and the later entry has always won, so 1002 is sent for both courts.
var cnjClasses = map[string]string{
	"RECURSO ESPECIAL":           "1032",
	"AGRAVO EM RECURSO ESPECIAL": "1032",
	"CONFLITO DE COMPETENCIA":    "1054",
	"CONFLITO DE COMPETECIA":     "1054",
	"CAUTELAR":                   "1057",
	"RECLAMACAO":                 "1030",
	"AGRAVO DE INSTRUMENTO":      "1002",
	"MANDADO DE SEGURANCA":       "1029",
	"RECURSO DE REVISTA":         "1008",
	"RECURSO ORDINARIO":          "211",
}

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold upper-cases a label, trims it, collapses inner whitespace and strips
// accents so "Reclamação " and "RECLAMACAO" share a key.
func Fold(label string) string {
	s, _, err := transform.String(folder, label)
	if err != nil {
		s = label
	}
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// LookupPole resolves A/ATIVO, P/PASSIVO or N/NEUTRO.
func LookupPole(label string) (Pole, error) {
	p, ok := poles[Fold(label)]
	if !ok {
		return Pole{}, &LookupError{Table: "pole", Label: label}
	}
	return p, nil
}

// LookupTribunal accepts STJ or TST.
func LookupTribunal(label string) (Tribunal, error) {
	t := Tribunal(Fold(label))
	if _, ok := transitBodies[t]; !ok {
		return "", &LookupError{Table: "tribunal", Label: label}
	}
	return t, nil
}

// TransitBody returns codigoOrgaoTransito for a tribunal.
func TransitBody(t Tribunal) (string, error) {
	code, ok := transitBodies[t]
	if !ok {
		return "", &LookupError{Table: "tribunal", Label: string(t)}
	}
	return code, nil
}

// LookupRouting returns codigoComplementoOrgaoTransito for a routing body of
// the given tribunal.
func LookupRouting(t Tribunal, label string) (int, error) {
	code, ok := routing[t][Fold(label)]
	if !ok {
		return 0, &LookupError{Table: "routing body (" + string(t) + ")", Label: label}
	}
	return code, nil
}

// LookupActionType returns codigoTipoAcao for an action label of the given tribunal.
func LookupActionType(t Tribunal, label string) (int, error) {
	code, ok := actionTypes[t][Fold(label)]
	if !ok {
		return 0, &LookupError{Table: "action type (" + string(t) + ")", Label: label}
	}
	return code, nil
}

// LookupCNJClass returns codigoClasse for an action label. The class does not
// depend on the tribunal; the action label must still be valid for it.
func LookupCNJClass(t Tribunal, label string) (string, error) {
	if _, err := LookupActionType(t, label); err != nil {
		return "", err
	}
	code, ok := cnjClasses[Fold(label)]
	if !ok {
		return "", &LookupError{Table: "CNJ class", Label: label}
	}
	return code, nil
}

var relationships = map[int]string{
	0:  "Banco do Brasil",
	1:  "Sindicato de Bancários",
	2:  "Sindicato de Outras Categorias",
	3:  "Clientes",
	5:  "A cadastrar",
	6:  "Empregado BB - Aposentado/Pensionista",
	7:  "Empregado de Empresa Terceirizada - Demais",
	8:  "Usuário",
	9:  "Empresa Terceirizada",
	10: "Empregado BB - Dispensado/Demitido",
	14: "Ex-Empregado de Empresa Terceirizada",
	16: "Indeterminado",
	17: "Autonomo/Trabalhador Temporario",
	18: "Empregado BB - Ativa",
	19: "Empregado BB Cedido - Poder Executivo/Legislativo/Judiciário",
	20: "Empregado BB Cedido - PREVI / FBB / CASSI e Outros",
	21: "Empregado de Coligada/Patrocinada",
	22: "Empregado de Controlada/Subsidiária",
	23: "Empregado de Correspondente (ECT e demais)",
	24: "Empregado de Empresa Terceirizada - Apoio",
	25: "Empregado de Empresa Terceirizada - Vigilante e Segurança",
	26: "Entidade Coligada/Patrocinada",
	27: "Entidade Controlada/Subsidiária",
	28: "Estagiário/Menor Aprendiz",
	29: "Ex-Empregado de Correspondente (ECT e demais)",
	30: "Ex-Empregado de Banco Incorporado",
	32: "Órgão de Fiscalização do Trabalho",
	33: "Ex-Empregado de Coligada / Patrocinada",
	34: "Ex-Empregado de Controlada / Subsidiária",
	35: "Empregado do Banco Postal",
	36: "Ex-Empregado do Banco Postal",
	37: "Empregrado BB - Expatriado",
	38: "Ministério Público do Trabalho e Associações",
}

// Relationship labels a party's codigoTipoRelacionamentoPessoaBanco. Unknown
// codes return false; the label is informational only.
func Relationship(code int) (string, bool) {
	label, ok := relationships[code]
	return label, ok
}

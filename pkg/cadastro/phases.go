package cadastro

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/morezero/cadastro-incidental/pkg/portal"
)

const (
	pathCaseSummary      = "v1/processo/consulta/"
	pathCreate           = "v1/processo/cadastro/"
	pathLinkIncidental   = "v1/pessoas/incluirPessoa/inicial/incidental"
	pathCNJNumber        = "v1/processo/cadastro/numero/cnj"
	pathExternalNumber   = "v1/processo/cadastro/numero"
	pathRouting          = "v1/processo/cadastro/complementar/orgaotramitacao"
	pathAttorneySearch   = "v0/advogado"
	pathSubjectMatter    = "v1/publicacao/validacao/materia/"
	pathAssignAttorney   = "v0/distribuicao/processo/funcionario"
	pathRelatedUnits     = "portal/dados/processo/dependencia/listarDependenciasRelacionadaAoProcessoJuridico/%d/0"
	pathOpposingUnits    = "portal/dados/processo/dependencia/listarDependenciaUnidadeOrganizacionalContrariosAoBanco/%d"
	pathSaveDependencies = "portal/dados/processo/dependencia/salvar"
	pathSynopsis         = "v1/processo/cadastro/complementar/assunto/alterar"
	pathActionType       = "v1/processo/cadastro/tecnico/acao/alterar"
	pathClassInclude     = "portal/dados/processo/classeCNJ/incluir"
	pathClassList        = "portal/dados/processo/classeCNJ/listarClassesConselhoNacionalJusticaProcessoJuridico/%d/true"
	pathFinalize         = "v1/processo/cadastro/fluxo/incidental/fase/finalizar-incidental"
	pathNextPhase        = "v1/processo/cadastro/fluxo/fase/proxima"
)

const (
	numberTypePublication = 2
	numberTypeOther       = 3
	attorneyTypeInternal  = 2
)

// expectOK turns a transport error or a non-OK reply into a PhaseError.
func expectOK(phase Phase, step string, reply *portal.Reply, err error) error {
	if err != nil {
		return &PhaseError{Phase: phase, Step: step, Err: err}
	}
	if !reply.OK() {
		return &PhaseError{Phase: phase, Step: step, Status: reply.StatusText()}
	}
	return nil
}

// advanceWizard moves the portal's wizard pointer past phase.
func (r *Registrar) advanceWizard(ctx context.Context, phase Phase, processNumber int64) error {
	d, ok := descriptors[phase]
	if !ok {
		return &PhaseError{Phase: phase, Step: "advance", Status: "no wizard descriptor"}
	}
	reply, err := r.transport.Post(ctx, pathNextPhase, d.payload(processNumber))
	if err != nil {
		return &PhaseError{Phase: phase, Step: "advance", Err: err}
	}
	if !reply.DataTrue() {
		return &PhaseError{Phase: phase, Step: "advance", Status: reply.StatusText()}
	}
	return nil
}

// InitialData

type caseSummary struct {
	NumeroProcesso                    json.RawMessage `json:"numeroProcesso"`
	CodigoTipoProcesso                json.RawMessage `json:"codigoTipoProcesso"`
	CodigoNaturezaProcesso            int             `json:"codigoNaturezaProcesso"`
	CodigoGrupoMateriaProcesso        json.RawMessage `json:"codigoGrupoMateriaProcesso"`
	IndicadorConcessaoLiminar         json.RawMessage `json:"indicadorConcessaoLiminar"`
	IndicadorTransitoJudicialEspecial json.RawMessage `json:"indicadorTransitoJudicialEspecial"`
}

type creationPayload struct {
	ValorCausa                        int             `json:"valorCausa"`
	CodigoTipoModeloCadastramento     string          `json:"codigoTipoModeloCadastramento"`
	CodigoPrefixoDependencia          int             `json:"codigoPrefixoDependencia"`
	CodigoTipoProcesso                json.RawMessage `json:"codigoTipoProcesso"`
	CodigoNaturezaProcesso            int             `json:"codigoNaturezaProcesso"`
	SiglaUnidadeFederacao             string          `json:"siglaUnidadeFederacao"`
	CodigoGrupoMateriaProcesso        json.RawMessage `json:"codigoGrupoMateriaProcesso"`
	IndicadorConcessaoLiminar         json.RawMessage `json:"indicadorConcessaoLiminar"`
	IndicadorTransitoJudicialEspecial json.RawMessage `json:"indicadorTransitoJudicialEspecial"`
	DataAjuizamento                   string          `json:"dataAjuizamento"`
	NumeroProcessoPrincipal           json.RawMessage `json:"numeroProcessoPrincipal"`
	IndicadorRegistroValidado         string          `json:"indicadorRegistroValidado"`
}

type creationReply struct {
	NumeroProcessoCriado          int64           `json:"numeroProcessoCriado"`
	NumeroProcessoPrincipalCriado json.RawMessage `json:"numeroProcessoPrincipalCriado"`
}

type incidentalLink struct {
	NumeroProcesso          int64  `json:"numeroProcesso"`
	NumeroProcessoPrincipal string `json:"numeroProcessoPrincipal"`
	PoloBanco               string `json:"poloBanco"`
}

func (r *Registrar) initialData(ctx context.Context, st State) (State, error) {
	const phase = PhaseInitialData

	reply, err := r.transport.Get(ctx, pathCaseSummary+url.PathEscape(st.res.npj))
	if err := expectOK(phase, "case summary", reply, err); err != nil {
		return st, err
	}
	var summary caseSummary
	if err := reply.Decode(&summary); err != nil {
		return st, &PhaseError{Phase: phase, Step: "case summary", Err: err}
	}

	payload := creationPayload{
		ValorCausa:                        0,
		CodigoTipoModeloCadastramento:     st.res.pole.ModelCode,
		CodigoPrefixoDependencia:          r.config.Office.Prefix,
		CodigoTipoProcesso:                summary.CodigoTipoProcesso,
		CodigoNaturezaProcesso:            RewriteNature(summary.CodigoNaturezaProcesso),
		SiglaUnidadeFederacao:             r.config.Office.UF,
		CodigoGrupoMateriaProcesso:        summary.CodigoGrupoMateriaProcesso,
		IndicadorConcessaoLiminar:         summary.IndicadorConcessaoLiminar,
		IndicadorTransitoJudicialEspecial: summary.IndicadorTransitoJudicialEspecial,
		DataAjuizamento:                   st.res.filingDate,
		NumeroProcessoPrincipal:           summary.NumeroProcesso,
		IndicadorRegistroValidado:         "S",
	}
	reply, err = r.transport.Post(ctx, pathCreate, payload)
	if err := expectOK(phase, "create", reply, err); err != nil {
		return st, err
	}
	var created creationReply
	if err := reply.Decode(&created); err != nil {
		return st, &PhaseError{Phase: phase, Step: "create", Err: err}
	}
	if created.NumeroProcessoCriado == 0 {
		return st, &PhaseError{Phase: phase, Step: "create", Status: "reply has no numeroProcessoCriado"}
	}

	next, err := st.withCreated(created.NumeroProcessoCriado, rawString(created.NumeroProcessoPrincipalCriado))
	if err != nil {
		return st, &PhaseError{Phase: phase, Step: "create", Err: err}
	}
	slog.Info(fmt.Sprintf("%s - Created incidental %d under principal %s", logPrefix, next.ProcessNumber(), next.PrincipalNumber()))

	reply, err = r.transport.Post(ctx, pathLinkIncidental, incidentalLink{
		NumeroProcesso:          next.ProcessNumber(),
		NumeroProcessoPrincipal: next.PrincipalNumber(),
		PoloBanco:               st.res.pole.Letter,
	})
	if err := expectOK(phase, "link principal", reply, err); err != nil {
		return next, err
	}
	return next, nil
}

// Numbers

type cnjRegion struct {
	NumeroConselhoNacionalJustica string `json:"numeroConselhoNacionalJustica"`
	SiglaUnidadeFederacao         string `json:"siglaUnidadeFederacao"`
}

type cnjNumber struct {
	NumeroProcesso        int64  `json:"numeroProcesso"`
	TextoNumeroInventario string `json:"textoNumeroInventario"`
}

type externalNumber struct {
	CodigoTipoNumeracaoProcesso int    `json:"codigoTipoNumeracaoProcesso"`
	NumeroProcesso              int64  `json:"numeroProcesso"`
	TextoNumeroExternoProcesso  string `json:"textoNumeroExternoProcesso"`
}

func (r *Registrar) numbers(ctx context.Context, st State) (State, error) {
	const phase = PhaseNumbers
	process := st.ProcessNumber()

	reply, err := r.transport.Post(ctx, pathCNJNumber, cnjRegion{
		NumeroConselhoNacionalJustica: st.res.cnj,
		SiglaUnidadeFederacao:         r.config.Office.UF,
	})
	if err := expectOK(phase, "cnj region", reply, err); err != nil {
		slog.Warn(fmt.Sprintf("%s - CNJ region link for %d not confirmed: %v", logPrefix, process, err))
	}

	reply, err = r.transport.Put(ctx, pathCNJNumber, cnjNumber{NumeroProcesso: process, TextoNumeroInventario: st.res.cnj})
	if err := expectOK(phase, "cnj number", reply, err); err != nil {
		return st, err
	}

	reply, err = r.transport.Post(ctx, pathExternalNumber, externalNumber{
		CodigoTipoNumeracaoProcesso: numberTypePublication,
		NumeroProcesso:              process,
		TextoNumeroExternoProcesso:  st.res.publication,
	})
	if err := expectOK(phase, "publication number", reply, err); err != nil {
		return st, err
	}

	if st.res.others != "" {
		reply, err = r.transport.Post(ctx, pathExternalNumber, externalNumber{
			CodigoTipoNumeracaoProcesso: numberTypeOther,
			NumeroProcesso:              process,
			TextoNumeroExternoProcesso:  st.res.others,
		})
		if err := expectOK(phase, "other number", reply, err); err != nil {
			return st, err
		}
	}

	return st, r.advanceWizard(ctx, phase, process)
}

// Parties

func (r *Registrar) parties(ctx context.Context, st State) (State, error) {
	const phase = PhaseParties
	process := st.ProcessNumber()

	registered := r.fetchPartiesLenient(ctx, process)
	outcome := verify(registered, st.req.Parties)
	next := st.withParties(outcome)

	return next, r.advanceWizard(ctx, phase, process)
}

// Routing

type routingPayload struct {
	NumeroProcesso                 int64  `json:"numeroProcesso"`
	CodigoOrgaoTransito            string `json:"codigoOrgaoTransito"`
	CodigoComplementoOrgaoTransito int    `json:"codigoComplementoOrgaoTransito"`
}

func (r *Registrar) routing(ctx context.Context, st State) (State, error) {
	const phase = PhaseRouting
	process := st.ProcessNumber()

	reply, err := r.transport.Post(ctx, pathRouting, routingPayload{
		NumeroProcesso:                 process,
		CodigoOrgaoTransito:            st.res.transitBody,
		CodigoComplementoOrgaoTransito: st.res.routingCode,
	})
	if err := expectOK(phase, "routing", reply, err); err != nil {
		return st, err
	}
	return st, r.advanceWizard(ctx, phase, process)
}

// Attorney

type attorneySearch struct {
	CodigoTipoAdvogado int    `json:"codigoTipoAdvogado"`
	Nome               string `json:"nome"`
}

type attorneySummary struct {
	NumeroAdvogado     json.RawMessage `json:"numeroAdvogado"`
	CodigoTipoAdvogado json.RawMessage `json:"codigoTipoAdvogado"`
	CpfCnpj            json.RawMessage `json:"cpfCnpj"`
	Matricula          json.RawMessage `json:"matricula"`
}

type attorneyAssignment struct {
	NumeroProcesso                       int64           `json:"numeroProcesso"`
	NumeroAdvogado                       json.RawMessage `json:"numeroAdvogado"`
	CodigoTipoAdvogado                   json.RawMessage `json:"codigoTipoAdvogado"`
	NumeroCpfCnpjPessoaInteresseJuridico json.RawMessage `json:"numeroCpfCnpjPessoaInteresseJuridico"`
	ChaveAdvogado                        json.RawMessage `json:"chaveAdvogado"`
}

func (r *Registrar) attorney(ctx context.Context, st State) (State, error) {
	const phase = PhaseAttorney
	process := st.ProcessNumber()

	reply, err := r.transport.Post(ctx, pathAttorneySearch, attorneySearch{
		CodigoTipoAdvogado: attorneyTypeInternal,
		Nome:               strings.ToUpper(strings.TrimSpace(st.req.Attorney)),
	})
	if err := expectOK(phase, "search", reply, err); err != nil {
		return st, err
	}
	var found []attorneySummary
	if err := reply.Decode(&found); err != nil {
		return st, &PhaseError{Phase: phase, Step: "search", Err: err}
	}
	if len(found) == 0 {
		return st, &PhaseError{Phase: phase, Step: "search", Status: fmt.Sprintf("no attorney named %q", st.req.Attorney)}
	}
	chosen := found[0]

	reply, err = r.transport.Post(ctx, pathSubjectMatter, process)
	if err := expectOK(phase, "subject matter", reply, err); err != nil {
		return st, err
	}

	reply, err = r.transport.Post(ctx, pathAssignAttorney, attorneyAssignment{
		NumeroProcesso:                       process,
		NumeroAdvogado:                       chosen.NumeroAdvogado,
		CodigoTipoAdvogado:                   chosen.CodigoTipoAdvogado,
		NumeroCpfCnpjPessoaInteresseJuridico: chosen.CpfCnpj,
		ChaveAdvogado:                        chosen.Matricula,
	})
	if err := expectOK(phase, "assign", reply, err); err != nil {
		return st, err
	}
	return st, r.advanceWizard(ctx, phase, process)
}

// Dependencies

type officeDependency struct {
	NumeroProcesso               int64   `json:"numeroProcesso"`
	CodigoUnidadeOrganizacional  int     `json:"codigoUnidadeOrganizacional"`
	CodigoPrefixoDependencia     int     `json:"codigoPrefixoDependencia"`
	TextoNomeDependencia         string  `json:"textoNomeDependencia"`
	CodigoTipoVinculoDependencia string  `json:"codigoTipoVinculoDependencia"`
	TextoMotivoVinculacao        *string `json:"textoMotivoVinculacao"`
	TextoTipoVinculoDependencia  *string `json:"textoTipoVinculoDependencia"`
	Subordinada                  int     `json:"subordinada"`
	UF                           string  `json:"uf"`
	Telefone                     string  `json:"telefone"`
	Municipio                    string  `json:"municipio"`
}

// dependency is a portal unit record kept opaque apart from the link fields we overwrite.
type dependency map[string]json.RawMessage

var (
	interestedLinkCode  = json.RawMessage(`"1"`)
	interestedLinkLabel = json.RawMessage(`"Interessada"`)
)

func (r *Registrar) dependencies(ctx context.Context, st State) (State, error) {
	const phase = PhaseDependencies
	process := st.ProcessNumber()

	reply, err := r.transport.Get(ctx, fmt.Sprintf(pathRelatedUnits, process))
	if err := expectOK(phase, "related units", reply, err); err != nil {
		return st, err
	}
	var related struct {
		ListaOcorrencia []dependency `json:"listaOcorrencia"`
	}
	if err := reply.Decode(&related); err != nil {
		return st, &PhaseError{Phase: phase, Step: "related units", Err: err}
	}

	reply, err = r.transport.Get(ctx, fmt.Sprintf(pathOpposingUnits, process))
	if err := expectOK(phase, "opposing units", reply, err); err != nil {
		return st, err
	}
	var opposing []dependency
	if err := reply.Decode(&opposing); err != nil {
		return st, &PhaseError{Phase: phase, Step: "opposing units", Err: err}
	}

	office := r.config.Office
	payload := make([]any, 0, 1+len(related.ListaOcorrencia)+len(opposing))
	payload = append(payload, officeDependency{
		NumeroProcesso:               process,
		CodigoUnidadeOrganizacional:  office.Unit,
		CodigoPrefixoDependencia:     office.Prefix,
		TextoNomeDependencia:         office.Name,
		CodigoTipoVinculoDependencia: "2",
		UF:                           office.UF,
		Telefone:                     office.Phone,
		Municipio:                    office.City,
	})
	for _, list := range [][]dependency{related.ListaOcorrencia, opposing} {
		for _, d := range list {
			if d == nil {
				d = dependency{}
			}
			d["codigoTipoVinculoDependencia"] = interestedLinkCode
			d["textoTipoVinculoDependencia"] = interestedLinkLabel
			payload = append(payload, d)
		}
	}

	reply, err = r.transport.Post(ctx, pathSaveDependencies, payload)
	if err := expectOK(phase, "save", reply, err); err != nil {
		return st, err
	}
	return st, r.advanceWizard(ctx, phase, process)
}

// Synopsis

type synopsisPayload struct {
	NumeroProcesso              int64  `json:"numeroProcesso"`
	TextoObservacao             string `json:"textoObservacao"`
	ValorTamanhoTextoObservacao int    `json:"valorTamanhoTextoObservacao"`
}

func (r *Registrar) synopsis(ctx context.Context, st State) (State, error) {
	const phase = PhaseSynopsis
	process := st.ProcessNumber()

	text := st.req.Synopsis
	reply, err := r.transport.Post(ctx, pathSynopsis, synopsisPayload{
		NumeroProcesso:              process,
		TextoObservacao:             text,
		ValorTamanhoTextoObservacao: utf8.RuneCountInString(text),
	})
	if err := expectOK(phase, "synopsis", reply, err); err != nil {
		return st, err
	}
	return st, r.advanceWizard(ctx, phase, process)
}

// ActionType

type actionTypePayload struct {
	NumeroProcesso int64 `json:"numeroProcesso"`
	CodigoTipoAcao int   `json:"codigoTipoAcao"`
}

func (r *Registrar) actionType(ctx context.Context, st State) (State, error) {
	const phase = PhaseActionType
	process := st.ProcessNumber()

	reply, err := r.transport.Post(ctx, pathActionType, actionTypePayload{NumeroProcesso: process, CodigoTipoAcao: st.res.actionCode})
	if err := expectOK(phase, "action type", reply, err); err != nil {
		return st, err
	}
	return st, r.advanceWizard(ctx, phase, process)
}

// ClassCNJ

type classPayload struct {
	NumeroProcesso int64  `json:"numeroProcesso"`
	CodigoClasse   string `json:"codigoClasse"`
	CodigoAssunto  int    `json:"codigoAssunto"`
}

type processRef struct {
	NumeroProcesso int64 `json:"numeroProcesso"`
}

func (r *Registrar) classCNJ(ctx context.Context, st State) (State, error) {
	const phase = PhaseClassCNJ
	process := st.ProcessNumber()

	reply, err := r.transport.Post(ctx, pathClassInclude, classPayload{NumeroProcesso: process, CodigoClasse: st.res.cnjClass})
	if err := expectOK(phase, "include class", reply, err); err != nil {
		return st, err
	}

	reply, err = r.transport.Get(ctx, fmt.Sprintf(pathClassList, process))
	if err := expectOK(phase, "confirm class", reply, err); err != nil {
		return st, err
	}

	reply, err = r.transport.Post(ctx, pathFinalize, processRef{NumeroProcesso: process})
	if err != nil {
		return st, &PhaseError{Phase: phase, Step: "finalize", Err: err}
	}
	if !finalized(reply) {
		return st, &PhaseError{Phase: phase, Step: "finalize", Status: reply.StatusText()}
	}

	return st, r.advanceWizard(ctx, phase, process)
}

// finalized accepts the legacy text reply of the finalize call.
func finalized(reply *portal.Reply) bool {
	if reply.OK() {
		return true
	}
	return reply != nil && strings.Contains(reply.Raw, "status=OK")
}

// rawString renders a JSON scalar as plain text: strings unquoted, numbers verbatim.
func rawString(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return trimmed
}

package cadastro

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/morezero/cadastro-incidental/pkg/matching"
	"github.com/morezero/cadastro-incidental/pkg/tables"
)

const pathListParties = "v1/pessoas/listarPessoasProcesso/%d/%d/0"

// Party roles as the portal numbers them in the party listing path.
const (
	roleActive  = 1
	rolePassive = 2
	roleNeutral = 3
)

// Party is one person registered on a process.
type Party struct {
	Name         string `json:"nome"`
	Code         string `json:"codigo,omitempty"`
	Document     string `json:"cpfCnpj,omitempty"`
	Relationship string `json:"relacionamento,omitempty"`
}

// RegisteredParties is the party listing of a process split by pole.
type RegisteredParties struct {
	Active  []Party `json:"ativos"`
	Passive []Party `json:"passivos"`
	Neutral []Party `json:"neutros"`
}

// Names returns the display names per bucket.
func (p RegisteredParties) Names() matching.Buckets {
	return matching.Buckets{
		Active:  partyNames(p.Active),
		Passive: partyNames(p.Passive),
		Neutral: partyNames(p.Neutral),
	}
}

func partyNames(list []Party) []string {
	names := make([]string, 0, len(list))
	for _, p := range list {
		names = append(names, p.Name)
	}
	return names
}

type portalParty struct {
	Name         string          `json:"nomeRazaoSocialClientePessoa"`
	Code         json.RawMessage `json:"codigoMercadoInternoPessoa"`
	Document     json.RawMessage `json:"numeroCpfCadastroNacPessoasJuridicasPessoa"`
	Relationship *int            `json:"codigoTipoRelacionamentoPessoaBanco"`
}

func (p portalParty) toParty() Party {
	party := Party{
		Name:     p.Name,
		Code:     rawString(p.Code),
		Document: rawString(p.Document),
	}
	if p.Relationship != nil {
		if label, ok := tables.Relationship(*p.Relationship); ok {
			party.Relationship = label
		}
	}
	return party
}

// fetchRole lists the parties registered under one role.
func (r *Registrar) fetchRole(ctx context.Context, processNumber int64, role int) ([]Party, error) {
	reply, err := r.transport.Get(ctx, fmt.Sprintf(pathListParties, processNumber, role))
	if err := expectOK(PhaseParties, fmt.Sprintf("list role %d", role), reply, err); err != nil {
		return nil, err
	}
	var listing struct {
		ListaOcorrencia []portalParty `json:"listaOcorrencia"`
	}
	if err := reply.Decode(&listing); err != nil {
		return nil, &PhaseError{Phase: PhaseParties, Step: fmt.Sprintf("list role %d", role), Err: err}
	}
	out := make([]Party, 0, len(listing.ListaOcorrencia))
	for _, p := range listing.ListaOcorrencia {
		out = append(out, p.toParty())
	}
	return out, nil
}

// RegisteredParties lists every party of a process. Any failed listing fails the call.
func (r *Registrar) RegisteredParties(ctx context.Context, processNumber int64) (RegisteredParties, error) {
	var out RegisteredParties
	var err error
	if out.Active, err = r.fetchRole(ctx, processNumber, roleActive); err != nil {
		return out, err
	}
	if out.Passive, err = r.fetchRole(ctx, processNumber, rolePassive); err != nil {
		return out, err
	}
	if out.Neutral, err = r.fetchRole(ctx, processNumber, roleNeutral); err != nil {
		return out, err
	}
	return out, nil
}

// fetchPartiesLenient lists parties for the Parties phase. A failed listing
// leaves that bucket empty so the run can carry on.
func (r *Registrar) fetchPartiesLenient(ctx context.Context, processNumber int64) RegisteredParties {
	fetch := func(role int) []Party {
		list, err := r.fetchRole(ctx, processNumber, role)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - party listing for %d failed, bucket treated as empty: %v", logPrefix, processNumber, err))
			return nil
		}
		return list
	}
	return RegisteredParties{
		Active:  fetch(roleActive),
		Passive: fetch(rolePassive),
		Neutral: fetch(roleNeutral),
	}
}

// VerifyParties compares the parties registered on an existing process with
// the expected names without changing anything on the portal.
func (r *Registrar) VerifyParties(ctx context.Context, processNumber int64, expected matching.Buckets) (matching.Outcome, RegisteredParties, error) {
	if processNumber <= 0 {
		return matching.Outcome{}, RegisteredParties{}, &ValidationError{Field: "processNumber", Message: "must be positive"}
	}
	registered, err := r.RegisteredParties(ctx, processNumber)
	if err != nil {
		return matching.Outcome{}, registered, err
	}
	return verify(registered, expected), registered, nil
}

func verify(registered RegisteredParties, expected matching.Buckets) matching.Outcome {
	outcome := matching.VerifyParties(registered.Names(), expected)
	r := registered.Names()
	slog.Debug(fmt.Sprintf("%s - party check: registered %d/%d/%d, outcome %+v",
		logPrefix, len(r.Active), len(r.Passive), len(r.Neutral), outcome))
	return outcome
}

package cadastro

// Phase is a step of the registration wizard. Phases run in declaration order.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseInitialData
	PhaseNumbers
	PhaseParties
	PhaseRouting
	PhaseAttorney
	PhaseDependencies
	PhaseSynopsis
	PhaseActionType
	PhaseClassCNJ
)

var phaseNames = [...]string{
	PhaseNone:         "None",
	PhaseInitialData:  "InitialData",
	PhaseNumbers:      "Numbers",
	PhaseParties:      "Parties",
	PhaseRouting:      "Routing",
	PhaseAttorney:     "Attorney",
	PhaseDependencies: "Dependencies",
	PhaseSynopsis:     "Synopsis",
	PhaseActionType:   "ActionType",
	PhaseClassCNJ:     "ClassCNJ",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Unknown"
	}
	return phaseNames[p]
}

// ParsePhase maps a phase name back to its value.
func ParsePhase(name string) Phase {
	for i, n := range phaseNames {
		if n == name {
			return Phase(i)
		}
	}
	return PhaseNone
}

// descriptor holds the wizard codes the portal expects when moving past a phase.
type descriptor struct {
	Fase         int
	SubFase      int
	FaseLabel    string
	SubFaseLabel string
}

// InitialData has no entry: the creation call itself opens the wizard.
var descriptors = map[Phase]descriptor{
	PhaseNumbers:      {61, 2, "Dados Iniciais", "Números do Processo"},
	PhaseParties:      {61, 3, "Dados Iniciais", "Pessoas do Processo"},
	PhaseRouting:      {61, 4, "Dados Iniciais", "Órgão de Tramitação"},
	PhaseAttorney:     {62, 1, "Distribuição", "Distribuição"},
	PhaseDependencies: {63, 2, "Dados Complementares", "Dependências"},
	PhaseSynopsis:     {63, 3, "Dados Complementares", "Assunto"},
	PhaseActionType:   {63, 4, "Dados Complementares", "Tipo de Ação"},
	PhaseClassCNJ:     {63, 5, "Dados Complementares", "Classe CNJ"},
}

type nextPhasePayload struct {
	CodigoTipoCadastramento          int    `json:"codigoTipoCadastramento"`
	CodigoTipoFaseCadastramento      int    `json:"codigoTipoFaseCadastramento"`
	CodigoTipoSubFaseCadastramento   int    `json:"codigoTipoSubFaseCadastramento"`
	CodigoTipoModeloCadastramento    int    `json:"codigoTipoModeloCadastramento"`
	CodigoEstadoSubFaseCadastramento string `json:"codigoEstadoSubFaseCadastramento"`
	NomeTipoSubFaseCadastramento     string `json:"nomeTipoSubFaseCadastramento"`
	NomeTipoFaseCadastramento        string `json:"nomeTipoFaseCadastramento"`
	NumeroProcesso                   int64  `json:"numeroProcesso"`
}

func (d descriptor) payload(processNumber int64) nextPhasePayload {
	return nextPhasePayload{
		CodigoTipoCadastramento:          1,
		CodigoTipoFaseCadastramento:      d.Fase,
		CodigoTipoSubFaseCadastramento:   d.SubFase,
		CodigoTipoModeloCadastramento:    4,
		CodigoEstadoSubFaseCadastramento: "A",
		NomeTipoSubFaseCadastramento:     d.SubFaseLabel,
		NomeTipoFaseCadastramento:        d.FaseLabel,
		NumeroProcesso:                   processNumber,
	}
}

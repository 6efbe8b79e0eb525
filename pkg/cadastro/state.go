package cadastro

import (
	"fmt"

	"github.com/morezero/cadastro-incidental/pkg/matching"
)

// State is the registration context as seen by one phase. Phases never
// mutate it; they return a new value. The created process number is set once
// by InitialData and carried unchanged afterwards.
type State struct {
	req       *Request
	res       resolved
	created   bool
	process   int64
	principal string
	parties   matching.Outcome
	completed Phase
}

func newState(req *Request, res resolved) State {
	return State{req: req, res: res}
}

// ProcessNumber is the created incidental's numeroProcesso, zero before InitialData.
func (s State) ProcessNumber() int64 { return s.process }

// PrincipalNumber is the principal process number returned at creation.
func (s State) PrincipalNumber() string { return s.principal }

// Parties is the party check outcome recorded by the Parties phase.
func (s State) Parties() matching.Outcome { return s.parties }

// Completed is the last phase that finished.
func (s State) Completed() Phase { return s.completed }

func (s State) withCreated(process int64, principal string) (State, error) {
	if s.created {
		return s, fmt.Errorf("process number already assigned (%d)", s.process)
	}
	s.created = true
	s.process = process
	s.principal = principal
	return s, nil
}

func (s State) withParties(o matching.Outcome) State {
	s.parties = o
	return s
}

// advance marks p as completed. Only the phase right after the last completed one is accepted.
func (s State) advance(p Phase) (State, error) {
	if p != s.completed+1 {
		return s, fmt.Errorf("cannot complete %s after %s", p, s.completed)
	}
	if p > PhaseInitialData && !s.created {
		return s, fmt.Errorf("cannot complete %s before a process number exists", p)
	}
	s.completed = p
	return s, nil
}

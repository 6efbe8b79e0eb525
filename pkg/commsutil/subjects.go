package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectCadastro          = "svc.cadastro.incidental.v1"
	SubjectRegistrationEvent = "cadastro.registration"
)

// BuildRegistrationSubject builds the per-case event subject, e.g.
// "cadastro.registration.failed.20200012345". Tokens are sanitized so an NPJ
// with separators never produces extra subject levels.
func BuildRegistrationSubject(base, status, npj string) string {
	return fmt.Sprintf("%s.%s.%s", base, subjectToken(status), subjectToken(npj))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '/':
			return '_'
		}
		return r
	}, s)
}

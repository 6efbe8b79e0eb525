package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/morezero/cadastro-incidental/pkg/cadastro"
)

const mainTestPrefix = "cmd/cadastro:main_test"

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"serve", "register", "submit", "parties", "history", "migrate", "ensure-db", "clear", "DATABASE_URL", "BROWSER_URL"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestParseRegisterArgs(t *testing.T) {
	tests := []struct {
		args     []string
		wantFile string
		wantStop bool
	}{
		{nil, "", false},
		{[]string{"a.json"}, "a.json", false},
		{[]string{"a.json", "--stop-on-error"}, "a.json", true},
		{[]string{"-x", "b.json", "extra"}, "b.json", true},
	}
	for _, tt := range tests {
		file, stop := parseRegisterArgs(tt.args)
		if file != tt.wantFile || stop != tt.wantStop {
			t.Errorf("%s - parseRegisterArgs(%v) = %q, %t; want %q, %t", mainTestPrefix, tt.args, file, stop, tt.wantFile, tt.wantStop)
		}
	}
}

func TestSubmitEnvelope(t *testing.T) {
	req := &cadastro.Request{NPJ: "2020/0012345", Tribunal: "STJ"}
	env, err := submitEnvelope(req, "operator", 90*time.Second)
	if err != nil {
		t.Fatalf("%s - submitEnvelope: %v", mainTestPrefix, err)
	}
	if env.Method != "register" || env.ID == "" || env.Ctx.RequestID != env.ID {
		t.Errorf("%s - envelope = %+v", mainTestPrefix, env)
	}
	if env.Ctx.UserID != "operator" || env.Ctx.TimeoutMs != 90000 {
		t.Errorf("%s - ctx = %+v", mainTestPrefix, env.Ctx)
	}
	var back cadastro.Request
	if err := json.Unmarshal(env.Params, &back); err != nil || back.NPJ != req.NPJ || back.Tribunal != "STJ" {
		t.Errorf("%s - params = %s (%v)", mainTestPrefix, env.Params, err)
	}
}

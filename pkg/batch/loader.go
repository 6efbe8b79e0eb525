// Package batch loads registration requests from a file and runs them one after another.
package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/cadastro-incidental/pkg/cadastro"
)

const logPrefix = "batch:loader"

// EnvBatchFile names the file used when no path is passed.
const EnvBatchFile = "CADASTRO_BATCH_FILE"

// Load reads requests from the first readable path: passed paths first, then
// CADASTRO_BATCH_FILE. Unlike an unreadable path, a file that exists but does
// not parse is an error.
func Load(paths ...string) ([]cadastro.Request, string, error) {
	all := make([]string, 0, len(paths)+1)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvBatchFile); envPath != "" {
		all = append(all, envPath)
	}
	if len(all) == 0 {
		return nil, "", fmt.Errorf("%s - no request file given and %s is unset", logPrefix, EnvBatchFile)
	}

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - skipping %s: %v", logPrefix, p, err))
			continue
		}
		reqs, err := Parse(data)
		if err != nil {
			return nil, p, fmt.Errorf("%s - %s: %w", logPrefix, p, err)
		}
		slog.Info(fmt.Sprintf("%s - Loaded %d requests from %s", logPrefix, len(reqs), p))
		return reqs, p, nil
	}
	return nil, "", fmt.Errorf("%s - none of %v could be read", logPrefix, all)
}

// Parse accepts a single request object or an array of them.
func Parse(data []byte) ([]cadastro.Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty request file")
	}

	if trimmed[0] == '[' {
		var reqs []cadastro.Request
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, fmt.Errorf("decode request list: %w", err)
		}
		if len(reqs) == 0 {
			return nil, errors.New("request list is empty")
		}
		return reqs, nil
	}

	var req cadastro.Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return []cadastro.Request{req}, nil
}

// Validate checks every request before anything reaches the portal. The same
// npj twice in one file is refused since the second run could never start.
func Validate(reqs []cadastro.Request) error {
	var errs []error
	seen := make(map[string]int, len(reqs))
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("request %d (npj %q): %w", i, reqs[i].NPJ, err))
			continue
		}
		npj := cadastro.NormalizeNPJ(reqs[i].NPJ)
		if first, dup := seen[npj]; dup {
			errs = append(errs, fmt.Errorf("request %d: npj %s already listed at request %d", i, npj, first))
			continue
		}
		seen[npj] = i
	}
	return errors.Join(errs...)
}

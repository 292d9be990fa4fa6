package agent

import (
	"context"
	"errors"
	"os/user"
	"strings"

	"github.com/danmuck/relayctl/internal/tools"
	"github.com/rs/zerolog/log"
)

var ErrNoIdentity = errors.New("agent: could not determine identity")

// Identity returns the local user name as an alias, falling back to
// `whoami` through runner.
func Identity(ctx context.Context, runner tools.CommandRunner) (string, error) {
	if u, err := user.Current(); err == nil {
		if alias := normalizeAlias(u.Username); alias != "" {
			return alias, nil
		}
	} else {
		log.Debug().Err(err).Msg("agent.Identity user lookup failed")
	}
	if runner == nil {
		return "", ErrNoIdentity
	}
	res, err := runner.Run(ctx, "whoami")
	if err != nil {
		log.Debug().Err(err).Msg("agent.Identity whoami failed")
		return "", ErrNoIdentity
	}
	if alias := normalizeAlias(string(res.Stdout)); alias != "" {
		return alias, nil
	}
	return "", ErrNoIdentity
}

// normalizeAlias strips whitespace and replaces path separators
// (DOMAIN\user on Windows) with underscores.
func normalizeAlias(raw string) string {
	alias := strings.TrimSpace(raw)
	return strings.NewReplacer(`\`, "_", "/", "_").Replace(alias)
}

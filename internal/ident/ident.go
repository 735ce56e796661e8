// Package ident parses the "user[:gid[:gid...]]" identity strings used
// to run child processes under a different user.
package ident

import (
	"fmt"
	"os/user"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MaxGroups bounds the number of supplementary group ids attached to a
// credential set. Extra groups are dropped with a warning.
const MaxGroups = 76

// Credentials holds the identity a child process is started under.
type Credentials struct {
	UID    uint32
	GID    uint32
	Groups []uint32
}

// Parse resolves an identity string. The user token is taken as a
// numeric uid when it is a bare integer (still resolved against the
// password database to obtain the primary gid), and as a user name
// otherwise. Remaining colon-separated tokens become supplementary
// gids, each a bare integer or a group name.
func Parse(log *zap.Logger, s string) (*Credentials, error) {
	if s == "" {
		return nil, fmt.Errorf("empty user specification")
	}

	tokens := strings.Split(s, ":")

	u, err := lookupUser(tokens[0])
	if err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("user %q: unusable uid %q", tokens[0], u.Uid)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("user %q: unusable gid %q", tokens[0], u.Gid)
	}

	creds := &Credentials{UID: uint32(uid), GID: uint32(gid)}

	for _, tok := range tokens[1:] {
		if len(creds.Groups) >= MaxGroups {
			log.Warn("too many supplementary groups, ignoring additional ones",
				zap.Int("max", MaxGroups))
			break
		}
		g, err := lookupGroup(tok)
		if err != nil {
			return nil, err
		}
		creds.Groups = append(creds.Groups, g)
	}

	return creds, nil
}

func lookupUser(tok string) (*user.User, error) {
	if _, err := strconv.ParseUint(tok, 10, 32); err == nil {
		u, err := user.LookupId(tok)
		if err != nil {
			return nil, fmt.Errorf("no such uid %q", tok)
		}
		return u, nil
	}
	u, err := user.Lookup(tok)
	if err != nil {
		return nil, fmt.Errorf("no such user %q", tok)
	}
	return u, nil
}

func lookupGroup(tok string) (uint32, error) {
	if n, err := strconv.ParseUint(tok, 10, 32); err == nil {
		return uint32(n), nil
	}
	g, err := user.LookupGroup(tok)
	if err != nil {
		return 0, fmt.Errorf("no such group %q", tok)
	}
	n, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("group %q: unusable gid %q", tok, g.Gid)
	}
	return uint32(n), nil
}

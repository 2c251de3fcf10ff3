package ledger

import (
	"regexp"
	"slices"
	"strings"
)

// systemPlaceholders are words the LLM and chat commands tend to produce in place of a real user.
var systemPlaceholders = []string{
	"system", "usuario", "user", "usuário", "você", "eu", "everyone", "here", "chat",
}

// knownBots are third-party chat bots that must never hold or receive cookies.
var knownBots = []string{
	"nightbot", "streamelements", "streamlabs", "moobot", "fossabot", "wizebot", "soundalerts", "sery_bot",
}

// principalPattern matches a normalized Twitch login.
var principalPattern = regexp.MustCompile(`^[a-z0-9_]{1,25}$`)

// Validator gates every ledger mutation. A principal is valid when it normalizes to a
// Twitch login that is not on the forbidden list.
type Validator struct {
	forbidden map[string]struct{}
}

// NewValidator builds a validator whose forbidden set is the built-in list plus extra
// (typically the bot's auxiliary accounts and COOKIE_FORBIDDEN_EXTRA).
func NewValidator(extra ...string) *Validator {
	v := &Validator{forbidden: make(map[string]struct{}, len(systemPlaceholders)+len(knownBots)+len(extra))}
	for _, list := range [][]string{systemPlaceholders, knownBots, extra} {
		for _, name := range list {
			if n := Normalize(name); n != "" {
				v.forbidden[n] = struct{}{}
			}
		}
	}
	return v
}

// Normalize trims whitespace, strips one leading '@' and lowercases.
func Normalize(identifier string) string {
	s := strings.TrimSpace(identifier)
	s = strings.TrimPrefix(s, "@")
	return strings.ToLower(strings.TrimSpace(s))
}

// Validate returns the normalized principal or ErrInvalidPrincipal.
func (v *Validator) Validate(identifier string) (string, error) {
	p := Normalize(identifier)
	if !principalPattern.MatchString(p) {
		return "", ErrInvalidPrincipal
	}
	if v.IsForbidden(p) {
		return "", ErrInvalidPrincipal
	}
	return p, nil
}

// IsForbidden reports whether the identifier is on the forbidden list.
func (v *Validator) IsForbidden(identifier string) bool {
	_, ok := v.forbidden[Normalize(identifier)]
	return ok
}

// Forbidden returns the forbidden principals in sorted order.
func (v *Validator) Forbidden() []string {
	out := make([]string, 0, len(v.forbidden))
	for p := range v.forbidden {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

package csrf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Form identifies a protected form
type Form string

const (
	FormLogin                Form = "LOGIN"
	FormLogout               Form = "LOGOUT"
	FormTraineeSelectSponsor Form = "TRAINEE_SELECT_SPONSOR"
	FormSSO                  Form = "SSO"
)

// DefaultMaxTokens bounds request-scoped forms that do not state a maximum
const DefaultMaxTokens = 5

// Policy controls token issuance for one form. Request-scoped forms mint a
// token per issuance and keep at most MaxTokens; session-scoped forms keep a
// single token for the lifetime of the session.
type Policy struct {
	MaxTokens     int
	RequestScoped bool
}

// RequestScoped returns a per-issuance policy. n < 1 means DefaultMaxTokens.
func RequestScoped(n int) Policy {
	if n < 1 {
		n = DefaultMaxTokens
	}
	return Policy{MaxTokens: n, RequestScoped: true}
}

// SessionScoped returns a one-token-per-session policy
func SessionScoped() Policy {
	return Policy{MaxTokens: 1}
}

// Policies is the read-only form table
type Policies struct {
	forms map[Form]Policy
}

// NewPolicies copies table into an immutable Policies
func NewPolicies(table map[Form]Policy) Policies {
	forms := make(map[Form]Policy, len(table))
	for form, p := range table {
		forms[form] = normalise(p)
	}
	return Policies{forms: forms}
}

// DefaultPolicies declares the forms the server renders
func DefaultPolicies() Policies {
	return NewPolicies(map[Form]Policy{
		FormLogin:                RequestScoped(1),
		FormLogout:               SessionScoped(),
		FormTraineeSelectSponsor: SessionScoped(),
		FormSSO:                  RequestScoped(DefaultMaxTokens),
	})
}

func (p Policies) Lookup(form Form) (Policy, bool) {
	policy, ok := p.forms[form]
	return policy, ok
}

// Forms lists the declared forms in name order
func (p Policies) Forms() []Form {
	forms := make([]Form, 0, len(p.forms))
	for form := range p.forms {
		forms = append(forms, form)
	}
	sort.Slice(forms, func(i, j int) bool { return forms[i] < forms[j] })
	return forms
}

type policyFile struct {
	Forms map[string]formEntry `toml:"forms"`
}

type formEntry struct {
	MaxTokens     int   `toml:"max_tokens"`
	RequestScoped *bool `toml:"request_scoped"`
}

// LoadPolicies overlays the [forms.NAME] tables of a TOML file on the
// defaults. An empty path yields the defaults.
func LoadPolicies(path string) (Policies, error) {
	defaults := DefaultPolicies()
	if path == "" {
		return defaults, nil
	}

	var file policyFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return Policies{}, fmt.Errorf("[LoadPolicies] decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Policies{}, fmt.Errorf("[LoadPolicies] unknown keys in %s: %v", path, undecoded)
	}

	table := make(map[Form]Policy, len(defaults.forms)+len(file.Forms))
	for form, p := range defaults.forms {
		table[form] = p
	}
	for name, entry := range file.Forms {
		form := Form(strings.TrimSpace(name))
		if form == "" {
			return Policies{}, fmt.Errorf("[LoadPolicies] empty form name in %s", path)
		}
		p, ok := table[form]
		if !ok {
			p = RequestScoped(DefaultMaxTokens)
		}
		if entry.RequestScoped != nil {
			p.RequestScoped = *entry.RequestScoped
		}
		if entry.MaxTokens != 0 {
			p.MaxTokens = entry.MaxTokens
		}
		table[form] = p
	}
	return NewPolicies(table), nil
}

func normalise(p Policy) Policy {
	if !p.RequestScoped {
		return SessionScoped()
	}
	return RequestScoped(p.MaxTokens)
}

package cherry

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync/atomic"
)

// RandSource is the randomness used for auto-responses and sign-in
// fortunes. *rand.Rand from math/rand/v2 satisfies it.
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

// AutoResponseRule is one keyword group from the responses file
type AutoResponseRule struct {
	Name      string   `json:"-" yaml:"-"`
	Keywords  []string `json:"keywords" yaml:"keywords"`
	Responses []string `json:"responses" yaml:"responses"`
}

// AutoResponder replies to messages containing configured keywords. The
// rule set is immutable once loaded and replaced wholesale by Reload.
type AutoResponder struct {
	path   string
	chance float64
	rand   RandSource
	rules  atomic.Pointer[[]AutoResponseRule]
}

func NewAutoResponder(path string, chance float64, rnd RandSource) *AutoResponder {
	a := &AutoResponder{path: path, chance: chance, rand: rnd}
	empty := []AutoResponseRule{}
	a.rules.Store(&empty)
	return a
}

// Reload reads the responses file and swaps in the new rules. On error,
// the previous rules stay in place. A missing file loads no rules.
func (a *AutoResponder) Reload() error {
	rules, err := loadAutoResponseRules(a.path)
	if err != nil {
		return err
	}
	a.rules.Store(&rules)
	return nil
}

// Rules returns the current rule set
func (a *AutoResponder) Rules() []AutoResponseRule {
	return *a.rules.Load()
}

func loadAutoResponseRules(path string) ([]AutoResponseRule, error) {
	if path == "" {
		return []AutoResponseRule{}, nil
	}
	groups := map[string]AutoResponseRule{}
	if err := decodeConfigFile(path, &groups); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []AutoResponseRule{}, nil
		}
		return nil, fmt.Errorf("loading responses %s: %w", path, err)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]AutoResponseRule, 0, len(names))
	for _, name := range names {
		rule := groups[name]
		rule.Name = name
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		rule.Keywords = keywords
		rules = append(rules, rule)
	}
	return rules, nil
}

// Match returns the first rule (in name order) with a keyword contained
// in content, and which has at least one response
func (a *AutoResponder) Match(content string) (AutoResponseRule, bool) {
	content = strings.ToLower(strings.TrimSpace(content))
	if content == "" {
		return AutoResponseRule{}, false
	}
	for _, rule := range a.Rules() {
		if len(rule.Responses) == 0 {
			continue
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(content, kw) {
				return rule, true
			}
		}
	}
	return AutoResponseRule{}, false
}

// Respond returns the reply for content, if any rule matches and the
// reply chance passes
func (a *AutoResponder) Respond(content string) (string, bool) {
	rule, ok := a.Match(content)
	if !ok {
		return "", false
	}
	if a.chance < 1 && a.rand.Float64() >= a.chance {
		return "", false
	}
	return rule.Responses[a.rand.IntN(len(rule.Responses))], true
}

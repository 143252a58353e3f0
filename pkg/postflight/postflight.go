package postflight

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
)

// Action runs after a call completed without error. A returned error (or a
// panic) is recorded on the response and never fails the call.
type Action func(r *call.UserResponse) error

// Chain runs actions in order and stops at the first error.
func Chain(actions ...Action) Action {
	return func(r *call.UserResponse) error {
		for _, a := range actions {
			if a == nil {
				continue
			}
			if err := a(r); err != nil {
				return err
			}
		}
		return nil
	}
}

// Source is where a rule reads its value from.
type Source string

const (
	SourceBody   Source = "body"
	SourceHeader Source = "header"
	SourceStatus Source = "status"
)

// Errors returned by extraction.
var (
	ErrInvalidRule = errors.New("invalid post-flight rule")
	ErrNoMatch     = errors.New("no value matched")
)

// Rule extracts one variable.
type Rule struct {
	Variable string `json:"variable" yaml:"variable"`
	Source   Source `json:"source" yaml:"source"`

	// Path is a JSONPath for body rules and a header name for header rules.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// When is an optional boolean expression over status, headers, body and json.
	When string `json:"when,omitempty" yaml:"when,omitempty"`

	// Optional rules do not fail when nothing matches.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Variables is a concurrency-safe variable store.
type Variables struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewVariables creates an empty store.
func NewVariables() *Variables {
	return &Variables{vars: make(map[string]string)}
}

// Set stores a variable.
func (v *Variables) Set(name, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vars[name] = value
}

// Get returns a variable.
func (v *Variables) Get(name string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.vars[name]
	return val, ok
}

// Names returns the variable names, sorted.
func (v *Variables) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.vars))
	for k := range v.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type compiledRule struct {
	Rule
	path jp.Expr
	when *vm.Program
}

// Extractor applies a set of rules to responses.
type Extractor struct {
	rules []compiledRule
	vars  *Variables
}

// NewExtractor validates and compiles rules. A nil vars creates a new store.
func NewExtractor(rules []Rule, vars *Variables) (*Extractor, error) {
	if vars == nil {
		vars = NewVariables()
	}
	x := &Extractor{vars: vars}

	template := newEnv(&call.UserResponse{})
	template["json"] = map[string]interface{}{}

	for i, r := range rules {
		if r.Variable == "" {
			return nil, fmt.Errorf("%w: rule %d has no variable", ErrInvalidRule, i)
		}
		cr := compiledRule{Rule: r}

		switch r.Source {
		case SourceBody:
			p, err := jp.ParseString(r.Path)
			if err != nil {
				return nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.Variable, err)
			}
			cr.path = p
		case SourceHeader:
			if r.Path == "" {
				return nil, fmt.Errorf("%w: rule %q needs a header name", ErrInvalidRule, r.Variable)
			}
		case SourceStatus:
		default:
			return nil, fmt.Errorf("%w: rule %q has unknown source %q", ErrInvalidRule, r.Variable, r.Source)
		}

		if r.When != "" {
			program, err := expr.Compile(r.When, expr.Env(template), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.Variable, err)
			}
			cr.when = program
		}
		x.rules = append(x.rules, cr)
	}
	return x, nil
}

// Variables returns the store results are written to.
func (x *Extractor) Variables() *Variables {
	return x.vars
}

// Action returns the extractor as a post-flight action.
func (x *Extractor) Action() Action {
	return x.Apply
}

// Apply runs every rule against r.
func (x *Extractor) Apply(r *call.UserResponse) error {
	env := newEnv(r)
	for _, rule := range x.rules {
		if rule.when != nil {
			ok, err := expr.Run(rule.when, env)
			if err != nil {
				return fmt.Errorf("rule %q: eval %q: %w", rule.Variable, rule.When, err)
			}
			if b, _ := ok.(bool); !b {
				continue
			}
		}

		value, err := rule.extract(r, env)
		if err != nil {
			if rule.Optional && errors.Is(err, ErrNoMatch) {
				continue
			}
			return fmt.Errorf("rule %q: %w", rule.Variable, err)
		}
		x.vars.Set(rule.Variable, value)
	}
	return nil
}

func (r compiledRule) extract(resp *call.UserResponse, env map[string]interface{}) (string, error) {
	switch r.Source {
	case SourceStatus:
		return strconv.Itoa(resp.StatusCode), nil

	case SourceHeader:
		values := resp.Headers.Values(r.Path)
		if len(values) == 0 {
			return "", fmt.Errorf("%w: header %s", ErrNoMatch, r.Path)
		}
		return values[0], nil

	default:
		data := env["json"]
		if data == nil {
			return "", fmt.Errorf("%w: body is not JSON", ErrNoMatch)
		}
		results := r.path.Get(data)
		if len(results) == 0 {
			return "", fmt.Errorf("%w: %s", ErrNoMatch, r.Path)
		}
		if s, ok := results[0].(string); ok {
			return s, nil
		}
		return oj.JSON(results[0]), nil
	}
}

func newEnv(r *call.UserResponse) map[string]interface{} {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		if _, seen := headers[h.Name]; !seen {
			headers[h.Name] = h.Value
		}
	}

	var data interface{}
	if len(r.Body) > 0 {
		if err := json.Unmarshal(r.Body, &data); err != nil {
			data = nil
		}
	}

	return map[string]interface{}{
		"status":  r.StatusCode,
		"headers": headers,
		"body":    string(r.Body),
		"json":    data,
	}
}

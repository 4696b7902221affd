// Package style owns the shared stylesheet that carries one scoped rule per
// player marker. The registry is created once and handed to the marker factory;
// each marker holds a Rule handle and releases it when destroyed.
package style

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
)

// ErrSheetUnavailable is returned by Acquire when the shared sheet could not be created.
var ErrSheetUnavailable = errors.New("skin stylesheet unavailable")

// SkinClassPrefix prefixes every generated skin class.
const SkinClassPrefix = "skin-"

const classSuffixRange = 1_000_000

// Registry is the shared stylesheet. It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	create    func() error
	created   bool
	createErr error
	rules     []*Rule
	suffix    func() int
}

// NewRegistry creates a registry. create is invoked once, on the first
// Acquire, to set up the host stylesheet; nil means nothing to set up.
func NewRegistry(create func() error) *Registry {
	return &Registry{
		create: create,
		suffix: func() int { return rand.Intn(classSuffixRange) },
	}
}

func (r *Registry) ensureSheet() error {
	if r.created {
		return r.createErr
	}
	r.created = true
	if r.create != nil {
		if err := r.create(); err != nil {
			r.createErr = fmt.Errorf("%w: %v", ErrSheetUnavailable, err)
		}
	}
	return r.createErr
}

// Acquire inserts a new, empty rule scoped to a fresh class for username.
func (r *Registry) Acquire(username string) (*Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureSheet(); err != nil {
		return nil, err
	}

	rule := &Rule{
		registry: r,
		class:    EscapeIdent(SkinClassPrefix + username + strconv.Itoa(r.suffix())),
	}
	r.rules = append(r.rules, rule)
	return rule, nil
}

// Len returns the number of live rules.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rules)
}

// CSS renders the sheet in insertion order.
func (r *Registry) CSS() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, rule := range r.rules {
		b.WriteString(rule.text())
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *Registry) remove(rule *Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.rules {
		if existing == rule {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return
		}
	}
}

type declaration struct {
	property string
	value    string
}

// Rule is a handle to one scoped rule in the registry.
type Rule struct {
	registry *Registry
	class    string
	decls    []declaration
	released bool
}

// Class returns the generated class name.
func (r *Rule) Class() string {
	return r.class
}

// Selector returns the rule selector, targeting the opaque skin parts.
func (r *Rule) Selector() string {
	return "." + r.class + " span.skin-opaque"
}

// SetImportant sets property to value with !important priority.
// Setting a property on a released rule is a no-op.
func (r *Rule) SetImportant(property, value string) {
	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()

	if r.released {
		return
	}
	for i := range r.decls {
		if r.decls[i].property == property {
			r.decls[i].value = value
			return
		}
	}
	r.decls = append(r.decls, declaration{property: property, value: value})
}

// Property returns the current value of property.
func (r *Rule) Property(property string) (string, bool) {
	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()

	for _, d := range r.decls {
		if d.property == property {
			return d.value, true
		}
	}
	return "", false
}

// Release removes the rule from the sheet. Safe to call more than once.
func (r *Rule) Release() {
	r.registry.mu.Lock()
	if r.released {
		r.registry.mu.Unlock()
		return
	}
	r.released = true
	r.registry.mu.Unlock()

	r.registry.remove(r)
}

// text must be called with the registry lock held.
func (r *Rule) text() string {
	var b strings.Builder
	b.WriteString(r.Selector())
	b.WriteString(" {")
	for _, d := range r.decls {
		fmt.Fprintf(&b, " %s: %s !important;", d.property, d.value)
	}
	b.WriteString(" }")
	return b.String()
}

// EscapeIdent escapes s for use as a CSS identifier, following CSS.escape().
func EscapeIdent(s string) string {
	runes := []rune(s)
	var b strings.Builder

	for i, c := range runes {
		switch {
		case c == 0:
			b.WriteRune('�')
		case (c >= 0x01 && c <= 0x1F) || c == 0x7F,
			i == 0 && c >= '0' && c <= '9',
			i == 1 && c >= '0' && c <= '9' && runes[0] == '-':
			fmt.Fprintf(&b, "\\%x ", c)
		case i == 0 && c == '-' && len(runes) == 1:
			b.WriteString("\\-")
		case c >= 0x80, c == '-', c == '_',
			c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			b.WriteRune(c)
		default:
			b.WriteByte('\\')
			b.WriteRune(c)
		}
	}
	return b.String()
}

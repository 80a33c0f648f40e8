package term

// Tag registry: a static table mapping each tag byte to exactly one Rule.

import (
	"fmt"
	"sort"
)

// Rule is the decode behavior attached to one tag. The set of rule
// variants is closed: FixedRule, LengthRule, BigRule, CompoundRule, NilRule.
type Rule interface {
	Tag() byte
	Name() string
	decode(st *decodeState, tag byte, depth int) (Value, bool)
}

// FixedRule reads Width bytes (1..8) as a scalar.
type FixedRule struct {
	Code   byte
	Label  string
	Width  int
	Signed bool
	Float  bool // IEEE-754; Width must be 4 or 8
}

func (r FixedRule) Tag() byte    { return r.Code }
func (r FixedRule) Name() string { return r.Label }

// LengthRule reads a LengthWidth-byte length then that many payload bytes.
type LengthRule struct {
	Code        byte
	Label       string
	LengthWidth int
	Text        bool
}

func (r LengthRule) Tag() byte    { return r.Code }
func (r LengthRule) Name() string { return r.Label }

// BigRule reads a LengthWidth-byte digit count, a sign byte, then the
// little-endian magnitude digits.
type BigRule struct {
	Code        byte
	Label       string
	LengthWidth int
}

func (r BigRule) Tag() byte    { return r.Code }
func (r BigRule) Name() string { return r.Label }

// CompoundRule reads an ArityWidth-byte child count then decodes that many
// children in order.
type CompoundRule struct {
	Code       byte
	Label      string
	ArityWidth int
	List       bool
}

func (r CompoundRule) Tag() byte    { return r.Code }
func (r CompoundRule) Name() string { return r.Label }

// NilRule is the empty-list sentinel; it has no body.
type NilRule struct {
	Code  byte
	Label string
}

func (r NilRule) Tag() byte    { return r.Code }
func (r NilRule) Name() string { return r.Label }

// Registry is an immutable tag table built once.
type Registry struct {
	rules [256]Rule
	count int
}

// NewRegistry validates and indexes rules. Duplicate tags and impossible
// widths are rejected.
func NewRegistry(rules ...Rule) (*Registry, error) {
	reg := &Registry{}
	for _, rule := range rules {
		if err := validateRule(rule); err != nil {
			return nil, err
		}
		tag := rule.Tag()
		if existing := reg.rules[tag]; existing != nil {
			return nil, fmt.Errorf("tag 0x%02X registered twice (%s, %s)", tag, existing.Name(), rule.Name())
		}
		reg.rules[tag] = rule
		reg.count++
	}
	return reg, nil
}

// MustRegistry is NewRegistry for static tables known to be valid.
func MustRegistry(rules ...Rule) *Registry {
	reg, err := NewRegistry(rules...)
	if err != nil {
		panic(err)
	}
	return reg
}

func validateRule(rule Rule) error {
	switch r := rule.(type) {
	case FixedRule:
		if r.Width < 1 || r.Width > 8 {
			return fmt.Errorf("tag 0x%02X: fixed width %d out of range 1..8", r.Code, r.Width)
		}
		if r.Float && r.Width != 4 && r.Width != 8 {
			return fmt.Errorf("tag 0x%02X: float width must be 4 or 8, got %d", r.Code, r.Width)
		}
	case LengthRule:
		if !validPrefixWidth(r.LengthWidth) {
			return fmt.Errorf("tag 0x%02X: length width %d not supported", r.Code, r.LengthWidth)
		}
	case BigRule:
		if !validPrefixWidth(r.LengthWidth) {
			return fmt.Errorf("tag 0x%02X: digit count width %d not supported", r.Code, r.LengthWidth)
		}
	case CompoundRule:
		if r.ArityWidth != 1 && r.ArityWidth != 4 {
			return fmt.Errorf("tag 0x%02X: arity width must be 1 or 4, got %d", r.Code, r.ArityWidth)
		}
	case NilRule:
	case nil:
		return fmt.Errorf("nil rule")
	default:
		return fmt.Errorf("unsupported rule type %T", rule)
	}
	return nil
}

func validPrefixWidth(w int) bool {
	return w == 1 || w == 2 || w == 4
}

// Lookup returns the rule for tag.
func (r *Registry) Lookup(tag byte) (Rule, bool) {
	rule := r.rules[tag]
	return rule, rule != nil
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	return r.count
}

// Rules returns every rule ordered by tag.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, 0, r.count)
	for _, rule := range r.rules {
		if rule != nil {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag() < out[j].Tag() })
	return out
}

// Built-in tags.
const (
	TagFloat      byte = 0x46
	TagSmallInt   byte = 0x61
	TagInt        byte = 0x62
	TagAtom       byte = 0x64
	TagSmallTuple byte = 0x68
	TagLargeTuple byte = 0x69
	TagNil        byte = 0x6A
	TagString     byte = 0x6B
	TagList       byte = 0x6C
	TagBinary     byte = 0x6D
	TagSmallBig   byte = 0x6E
	TagLargeBig   byte = 0x6F
	TagSmallAtom  byte = 0x77

	// TagUintBase+n is an unsigned n-byte integer, TagIntBase+n a signed one.
	TagUintBase byte = 0x00
	TagIntBase  byte = 0x10
)

var defaultRegistry = MustRegistry(defaultRules()...)

// DefaultRegistry returns the built-in tag table.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

func defaultRules() []Rule {
	rules := []Rule{
		FixedRule{Code: TagFloat, Label: "float", Width: 8, Float: true},
		FixedRule{Code: TagSmallInt, Label: "small_int", Width: 1},
		FixedRule{Code: TagInt, Label: "int", Width: 4, Signed: true},
		LengthRule{Code: TagAtom, Label: "atom", LengthWidth: 2, Text: true},
		LengthRule{Code: TagSmallAtom, Label: "small_atom", LengthWidth: 1, Text: true},
		LengthRule{Code: TagString, Label: "string", LengthWidth: 2, Text: true},
		LengthRule{Code: TagBinary, Label: "binary", LengthWidth: 4},
		BigRule{Code: TagSmallBig, Label: "small_big", LengthWidth: 1},
		BigRule{Code: TagLargeBig, Label: "large_big", LengthWidth: 4},
		CompoundRule{Code: TagSmallTuple, Label: "small_tuple", ArityWidth: 1},
		CompoundRule{Code: TagLargeTuple, Label: "large_tuple", ArityWidth: 4},
		CompoundRule{Code: TagList, Label: "list", ArityWidth: 4, List: true},
		NilRule{Code: TagNil, Label: "nil"},
	}
	for n := 1; n <= 8; n++ {
		rules = append(rules,
			FixedRule{Code: TagUintBase + byte(n), Label: fmt.Sprintf("uint%d", 8*n), Width: n},
			FixedRule{Code: TagIntBase + byte(n), Label: fmt.Sprintf("int%d", 8*n), Width: n, Signed: true},
		)
	}
	return rules
}

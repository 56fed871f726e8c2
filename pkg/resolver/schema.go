package resolver

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"unicode/utf8"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/query"
)

// ErrNoFallback is returned by Schema.Resolve when the input has issues and
// there is neither an explicit fallback nor a complete set of defaults.
var ErrNoFallback = qerrors.New("Q112")

// Issue codes reported by Schema.
const (
	CodeInvalidType = "invalid_type"
	CodeRequired    = "required"
	CodeTooSmall    = "too_small"
	CodeTooBig      = "too_big"
	CodeInvalidEnum = "invalid_enum_value"
	CodeRule        = "custom"
	CodeRuleError   = "rule_error"
)

// Kind is the type of a schema field.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStrings
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStrings:
		return "strings"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Field declares one parameter of a Schema. Build fields with String, Int,
// Float, Bool or Strings and chain the constraint methods.
//
// Min and Max bound the value of numeric fields, the length of string
// fields and the element count of list fields.
type Field struct {
	name       string
	kind       Kind
	def        any
	hasDefault bool
	min, max   *float64
	oneOf      []string
	required   bool
}

// String declares a string field.
func String(name string) *Field { return &Field{name: name, kind: KindString} }

// Int declares an integer field. Values are typed int.
func Int(name string) *Field { return &Field{name: name, kind: KindInt} }

// Float declares a float field. Values are typed float64.
func Float(name string) *Field { return &Field{name: name, kind: KindFloat} }

// Bool declares a boolean field.
func Bool(name string) *Field { return &Field{name: name, kind: KindBool} }

// Strings declares a list field. Values are typed []string.
func Strings(name string) *Field { return &Field{name: name, kind: KindStrings} }

// Default sets the value used when the parameter is absent.
func (f *Field) Default(v any) *Field {
	f.def = v
	f.hasDefault = true
	return f
}

// Min sets the lower bound.
func (f *Field) Min(v float64) *Field {
	f.min = &v
	return f
}

// Max sets the upper bound.
func (f *Field) Max(v float64) *Field {
	f.max = &v
	return f
}

// OneOf restricts the raw value (each element, for lists) to vs.
func (f *Field) OneOf(vs ...string) *Field {
	f.oneOf = slices.Clone(vs)
	return f
}

// Required reports an issue when the parameter is absent and has no default.
func (f *Field) Required() *Field {
	f.required = true
	return f
}

// Name returns the parameter key.
func (f *Field) Name() string { return f.name }

// Rule is a cross-field constraint written as an expr expression over the
// resolved fields, e.g. "min_price <= max_price". A false result reports an
// issue at Path with Message.
type Rule struct {
	Path    string
	Expr    string
	Message string
}

type compiledRule struct {
	Rule
	program *exprvm.Program
}

// SchemaOption configures a Schema.
type SchemaOption func(*Schema)

// WithFallback sets the value returned when the input has issues.
// Without it the schema's own defaults are used when every field has one.
func WithFallback(value map[string]any) SchemaOption {
	return func(s *Schema) {
		s.fallback = maps.Clone(value)
	}
}

// WithRules adds cross-field rules.
func WithRules(rules ...Rule) SchemaOption {
	return func(s *Schema) {
		for _, r := range rules {
			s.rules = append(s.rules, compiledRule{Rule: r})
		}
	}
}

// WithSchemaLogger sets the logger for rule evaluation failures.
// A nil logger keeps slog.Default().
func WithSchemaLogger(logger *slog.Logger) SchemaOption {
	return func(s *Schema) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Schema is a declarative resolver over map[string]any.
type Schema struct {
	fields   []*Field
	byName   map[string]*Field
	rules    []compiledRule
	fallback map[string]any
	inferred map[string]any
	logger   *slog.Logger
}

var _ guard.Resolver[any] = (*Schema)(nil)

// NewSchema builds a Schema. It fails on duplicate fields, defaults of the
// wrong type and rules that do not compile.
func NewSchema(fields []*Field, opts ...SchemaOption) (*Schema, error) {
	s := &Schema{
		byName: make(map[string]*Field, len(fields)),
		logger: slog.Default(),
	}
	for _, f := range fields {
		if f == nil || f.name == "" {
			return nil, qerrors.New("Q100").WithDetail("schema field without a name")
		}
		if _, dup := s.byName[f.name]; dup {
			return nil, qerrors.New("Q100").WithDetail(fmt.Sprintf("duplicate schema field %q", f.name))
		}
		if f.hasDefault {
			def, ok := normalizeDefault(f.kind, f.def)
			if !ok {
				return nil, qerrors.New("Q100").WithDetail(
					fmt.Sprintf("default for %q is %T, want %s", f.name, f.def, f.kind))
			}
			f.def = def
		}
		s.fields = append(s.fields, f)
		s.byName[f.name] = f
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "schema")

	// Field names shadow expr builtins such as sort, len or max.
	compileOpts := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	}
	for _, f := range s.fields {
		compileOpts = append(compileOpts, exprlang.DisableBuiltin(f.name))
	}
	for i := range s.rules {
		program, err := exprlang.Compile(s.rules[i].Expr, compileOpts...)
		if err != nil {
			return nil, qerrors.New("Q104").
				WithDetail(fmt.Sprintf("rule %q", s.rules[i].Expr)).
				Wrap(err)
		}
		s.rules[i].program = program
	}

	if value, issues := s.parse(query.Raw{}); len(issues) == 0 {
		s.inferred = value
	}
	return s, nil
}

// Fields returns the declared field names in declaration order.
func (s *Schema) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

// Default returns the value used on failure: the explicit fallback, or the
// value resolved from an empty search string.
func (s *Schema) Default() (map[string]any, bool) {
	if s.fallback != nil {
		return cloneAny(s.fallback), true
	}
	if s.inferred != nil {
		return cloneAny(s.inferred), true
	}
	return nil, false
}

// Resolve implements guard.Resolver.
func (s *Schema) Resolve(in guard.ResolveInput) (guard.Resolved[any], error) {
	meta := &guard.Meta{}
	for _, k := range in.Raw.Keys() {
		if _, ok := s.byName[k]; !ok {
			meta.CleanedKeys = append(meta.CleanedKeys, k)
		}
	}

	value, issues := s.parse(in.Raw)
	meta.CoercedKeys = coercedKeys(s.fields, in.Raw)
	if len(issues) == 0 {
		return guard.Resolved[any]{Value: value, Meta: meta}, nil
	}

	fallback, ok := s.Default()
	if !ok {
		return guard.Resolved[any]{}, qerrors.New("Q112").
			WithDetail(fmt.Sprintf("%d issue(s), first: %s: %s", len(issues), issues[0].Path, issues[0].Message))
	}
	meta.UsedDefault = true
	meta.Issues = issues
	return guard.Resolved[any]{Value: fallback, Meta: meta}, nil
}

// Serialize implements guard.Resolver. Only declared fields are written.
func (s *Schema) Serialize(value map[string]any) (query.Raw, error) {
	known := make(map[string]any, len(value))
	for k, v := range value {
		if _, ok := s.byName[k]; ok {
			known[k] = v
		}
	}
	return ToRaw(known)
}

func (s *Schema) parse(raw query.Raw) (map[string]any, []guard.Issue) {
	value := make(map[string]any, len(s.fields))
	var issues []guard.Issue

	for _, f := range s.fields {
		rv, present := raw[f.name]
		if !present || rv.IsEmpty() {
			switch {
			case f.hasDefault:
				value[f.name] = cloneDefault(f.def)
			case f.required:
				issues = append(issues, guard.Issue{Path: f.name, Message: "required", Code: CodeRequired})
			}
			continue
		}

		v, issue := f.coerce(rv)
		if issue != nil {
			issues = append(issues, *issue)
			continue
		}
		if issue := f.check(v, rv); issue != nil {
			issues = append(issues, *issue)
			continue
		}
		value[f.name] = v
	}

	if len(issues) > 0 {
		return value, issues
	}

	for _, r := range s.rules {
		out, err := exprlang.Run(r.program, cloneAny(value))
		if err != nil {
			s.logger.Warn("rule evaluation failed", "rule", r.Expr, "error", err)
			issues = append(issues, guard.Issue{Path: r.Path, Message: err.Error(), Code: CodeRuleError})
			continue
		}
		if ok, _ := out.(bool); !ok {
			msg := r.Message
			if msg == "" {
				msg = "rule failed: " + r.Expr
			}
			issues = append(issues, guard.Issue{Path: r.Path, Message: msg, Code: CodeRule})
		}
	}
	return value, issues
}

func (f *Field) coerce(rv query.Value) (any, *guard.Issue) {
	if f.kind == KindStrings {
		return rv.Strings(), nil
	}

	s := rv.String()
	invalid := func() *guard.Issue {
		return &guard.Issue{
			Path:    f.name,
			Message: fmt.Sprintf("expected %s, got %q", f.kind, s),
			Code:    CodeInvalidType,
		}
	}
	switch f.kind {
	case KindInt:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, invalid()
		}
		return n, nil
	case KindFloat:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, invalid()
		}
		return n, nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, invalid()
		}
		return b, nil
	default:
		return s, nil
	}
}

func (f *Field) check(v any, rv query.Value) *guard.Issue {
	var size float64
	switch x := v.(type) {
	case int:
		size = float64(x)
	case float64:
		size = x
	case string:
		size = float64(utf8.RuneCountInString(x))
	case []string:
		size = float64(len(x))
	}
	if _, isBool := v.(bool); !isBool {
		if f.min != nil && size < *f.min {
			return &guard.Issue{Path: f.name, Message: fmt.Sprintf("must be at least %v", *f.min), Code: CodeTooSmall}
		}
		if f.max != nil && size > *f.max {
			return &guard.Issue{Path: f.name, Message: fmt.Sprintf("must be at most %v", *f.max), Code: CodeTooBig}
		}
	}

	if len(f.oneOf) > 0 {
		for _, s := range rv.Strings() {
			if !slices.Contains(f.oneOf, s) {
				return &guard.Issue{
					Path:    f.name,
					Message: fmt.Sprintf("%q is not one of %v", s, f.oneOf),
					Code:    CodeInvalidEnum,
				}
			}
		}
	}
	return nil
}

// coercedKeys lists present fields whose raw shape or type differs from
// their typed value.
func coercedKeys(fields []*Field, raw query.Raw) []string {
	var keys []string
	for _, f := range fields {
		rv, ok := raw[f.name]
		if !ok || rv.IsEmpty() {
			continue
		}
		switch {
		case f.kind == KindStrings && !rv.IsList():
			keys = append(keys, f.name)
		case f.kind != KindStrings && (rv.IsList() || f.kind != KindString):
			keys = append(keys, f.name)
		}
	}
	return keys
}

func normalizeDefault(kind Kind, v any) (any, bool) {
	switch kind {
	case KindString:
		s, ok := v.(string)
		return s, ok
	case KindInt:
		n, ok := v.(int)
		return n, ok
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		}
		return nil, false
	case KindBool:
		b, ok := v.(bool)
		return b, ok
	case KindStrings:
		ss, ok := v.([]string)
		return slices.Clone(ss), ok
	}
	return nil, false
}

func cloneDefault(v any) any {
	if ss, ok := v.([]string); ok {
		return slices.Clone(ss)
	}
	return v
}

func cloneAny(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneDefault(v)
	}
	return out
}

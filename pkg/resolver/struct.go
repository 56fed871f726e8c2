package resolver

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/query"
)

// DefaultTagName is the struct tag naming a field's query key.
const DefaultTagName = "query"

// StructOption configures a Struct resolver.
type StructOption func(*structConfig)

type structConfig struct {
	validate *validator.Validate
	tagName  string
}

// WithValidator uses v instead of a fresh validator. Custom validations
// registered on v are available in validate tags.
func WithValidator(v *validator.Validate) StructOption {
	return func(c *structConfig) {
		c.validate = v
	}
}

// WithTagName reads query keys from a different struct tag.
func WithTagName(name string) StructOption {
	return func(c *structConfig) {
		c.tagName = name
	}
}

type structField struct {
	key   string
	index []int
	typ   reflect.Type
}

// Struct resolves typed state described by a struct type S.
//
// Each exported field is one parameter; its key comes from the query tag or
// the lowercased field name, and "-" skips it. Supported field types are
// strings, numbers, booleans and slices of those. Fields are validated with
// go-playground/validator "validate" tags. Any issue makes Resolve return
// the default struct with UsedDefault set.
//
//	type Filters struct {
//		Query string `query:"q" validate:"max=64"`
//		Page  int    `query:"page" validate:"min=1"`
//	}
//
//	r, err := resolver.NewStruct(Filters{Page: 1})
type Struct[S any] struct {
	def      S
	fields   []structField
	byKey    map[string]structField
	validate *validator.Validate
}

var _ guard.Resolver[any] = (*Struct[struct{}])(nil)

// NewStruct returns a Struct resolver whose default value is def.
func NewStruct[S any](def S, opts ...StructOption) (*Struct[S], error) {
	cfg := structConfig{tagName: DefaultTagName}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.validate == nil {
		cfg.validate = validator.New(validator.WithRequiredStructEnabled())
	}

	t := reflect.TypeOf(def)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, qerrors.New("Q100").WithDetail(fmt.Sprintf("struct resolver needs a struct type, got %v", t))
	}

	r := &Struct[S]{
		def:      def,
		byKey:    make(map[string]structField),
		validate: cfg.validate,
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		key := tagKey(sf, cfg.tagName)
		if key == "-" {
			continue
		}
		if !supported(sf.Type) {
			return nil, qerrors.New("Q100").WithDetail(fmt.Sprintf("field %s has unsupported type %s", sf.Name, sf.Type))
		}
		if _, dup := r.byKey[key]; dup {
			return nil, qerrors.New("Q100").WithDetail(fmt.Sprintf("duplicate query key %q", key))
		}
		f := structField{key: key, index: sf.Index, typ: sf.Type}
		r.fields = append(r.fields, f)
		r.byKey[key] = f
	}

	tagName := cfg.tagName
	r.validate.RegisterTagNameFunc(func(sf reflect.StructField) string {
		return tagKey(sf, tagName)
	})
	return r, nil
}

// Keys returns the query keys in field order.
func (r *Struct[S]) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.key
	}
	return keys
}

// Default returns the typed state of the default struct. Every key is
// present, so it is suitable as guard.Options.Default.
func (r *Struct[S]) Default() map[string]any {
	return r.Defaults(r.def)
}

// Defaults converts s into typed state.
func (r *Struct[S]) Defaults(s S) map[string]any {
	v := reflect.ValueOf(s)
	out := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		out[f.key] = cloneField(v.FieldByIndex(f.index))
	}
	return out
}

// Into converts typed state back into a struct. Keys missing from m keep
// their default. String values are parsed into the field type.
func (r *Struct[S]) Into(m map[string]any) (S, error) {
	s := r.def
	v := reflect.ValueOf(&s).Elem()
	for _, f := range r.fields {
		val, ok := m[f.key]
		if !ok {
			continue
		}
		if err := assign(v.FieldByIndex(f.index), val); err != nil {
			var zero S
			return zero, fmt.Errorf("resolver: key %q: %w", f.key, err)
		}
	}
	return s, nil
}

// Resolve implements guard.Resolver.
func (r *Struct[S]) Resolve(in guard.ResolveInput) (guard.Resolved[any], error) {
	meta := &guard.Meta{}
	for _, k := range in.Raw.Keys() {
		if _, ok := r.byKey[k]; !ok {
			meta.CleanedKeys = append(meta.CleanedKeys, k)
		}
	}

	s := r.def
	v := reflect.ValueOf(&s).Elem()
	var issues []guard.Issue
	for _, f := range r.fields {
		rv, ok := in.Raw[f.key]
		if !ok || rv.IsEmpty() {
			continue
		}
		coerced, err := setRaw(v.FieldByIndex(f.index), rv)
		if err != nil {
			issues = append(issues, guard.Issue{
				Path:    f.key,
				Message: fmt.Sprintf("expected %s: %v", f.typ, err),
				Code:    CodeInvalidType,
			})
			continue
		}
		if coerced {
			meta.CoercedKeys = append(meta.CoercedKeys, f.key)
		}
	}

	if len(issues) == 0 {
		validationIssues, err := r.check(s)
		if err != nil {
			return guard.Resolved[any]{}, err
		}
		issues = validationIssues
	}

	if len(issues) > 0 {
		meta.UsedDefault = true
		meta.Issues = issues
		return guard.Resolved[any]{Value: r.Default(), Meta: meta}, nil
	}
	return guard.Resolved[any]{Value: r.Defaults(s), Meta: meta}, nil
}

// Serialize implements guard.Resolver. Unknown keys are not written. Every
// known key is written in its field's type, zero values included, so a
// write of "" or 0 replaces the previous raw value. A nil or empty slice
// becomes an empty list, which clears the key.
func (r *Struct[S]) Serialize(value map[string]any) (query.Raw, error) {
	raw := make(query.Raw, len(value))
	for k, val := range value {
		f, ok := r.byKey[k]
		if !ok {
			continue
		}
		field := reflect.New(f.typ).Elem()
		if err := assign(field, val); err != nil {
			return nil, fmt.Errorf("resolver: key %q: %w", k, err)
		}

		if field.Kind() == reflect.Slice {
			items := make([]string, field.Len())
			for i := range items {
				s, err := formatScalar(field.Index(i))
				if err != nil {
					return nil, fmt.Errorf("resolver: key %q: %w", k, err)
				}
				items[i] = s
			}
			raw[k] = query.Many(items...)
			continue
		}
		s, err := formatScalar(field)
		if err != nil {
			return nil, fmt.Errorf("resolver: key %q: %w", k, err)
		}
		raw[k] = query.One(s)
	}
	return raw, nil
}

func (r *Struct[S]) check(s S) ([]guard.Issue, error) {
	err := r.validate.Struct(s)
	if err == nil {
		return nil, nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil, qerrors.New("Q100").Wrap(err)
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}

	issues := make([]guard.Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, guard.Issue{
			Path:    fe.Field(),
			Message: fe.Error(),
			Code:    fe.Tag(),
		})
	}
	return issues, nil
}

func tagKey(sf reflect.StructField, tagName string) string {
	key, _, _ := strings.Cut(sf.Tag.Get(tagName), ",")
	if key == "" {
		key = strings.ToLower(sf.Name)
	}
	return key
}

func supported(t reflect.Type) bool {
	if t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// setRaw parses rv into field and reports whether the raw shape or type
// differed from the field's.
func setRaw(field reflect.Value, rv query.Value) (bool, error) {
	if field.Kind() == reflect.Slice {
		items := rv.Strings()
		slice := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, s := range items {
			if err := parseInto(slice.Index(i), s); err != nil {
				return false, err
			}
		}
		field.Set(slice)
		return !rv.IsList() || field.Type().Elem().Kind() != reflect.String, nil
	}

	if err := parseInto(field, rv.String()); err != nil {
		return false, err
	}
	return rv.IsList() || field.Kind() != reflect.String, nil
}

func assign(field reflect.Value, val any) error {
	if val == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	src := reflect.ValueOf(val)
	if src.Type().AssignableTo(field.Type()) {
		field.Set(src)
		return nil
	}
	if src.Type().ConvertibleTo(field.Type()) && src.Kind() != reflect.String && field.Kind() != reflect.String {
		field.Set(src.Convert(field.Type()))
		return nil
	}
	if s, ok := val.(string); ok {
		return parseInto(field, s)
	}
	if ss, ok := val.([]string); ok && field.Kind() == reflect.Slice {
		_, err := setRaw(field, query.Many(ss...))
		return err
	}
	if src.Kind() == reflect.Slice && field.Kind() == reflect.Slice {
		out := reflect.MakeSlice(field.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			if err := assign(out.Index(i), src.Index(i).Interface()); err != nil {
				return err
			}
		}
		field.Set(out)
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", val, field.Type())
}

func cloneField(v reflect.Value) any {
	if v.Kind() == reflect.Slice {
		if v.IsNil() {
			return reflect.Zero(v.Type()).Interface()
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(out, v)
		return out.Interface()
	}
	return v.Interface()
}

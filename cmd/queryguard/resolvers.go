package main

import (
	"fmt"
	"log/slog"

	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/resolver"
)

// searchFilters is the typed state of the built-in search page when served
// with the struct resolver.
type searchFilters struct {
	Q    string   `query:"q" validate:"max=200"`
	Page int      `query:"page" validate:"min=1,max=1000"`
	Sort string   `query:"sort" validate:"oneof=relevance new top"`
	Tags []string `query:"tag" validate:"max=10,dive,max=32"`
}

// searchSchema is the same state described as a schema.
func searchSchema(logger *slog.Logger) (*resolver.Schema, error) {
	return resolver.NewSchema([]*resolver.Field{
		resolver.String("q").Max(200),
		resolver.Int("page").Default(1).Min(1).Max(1000),
		resolver.String("sort").Default("relevance").OneOf("relevance", "new", "top"),
		resolver.Strings("tag").Max(10),
	},
		resolver.WithRules(resolver.Rule{
			Path:    "tag",
			Expr:    `sort != "top" || len(tag ?? []) == 0`,
			Message: "tags cannot be combined with top sorting",
		}),
		resolver.WithSchemaLogger(logger),
	)
}

// searchResolver returns the resolver and default value named by kind.
func searchResolver(kind string, logger *slog.Logger) (guard.Resolver[any], map[string]any, error) {
	switch kind {
	case "", "schema":
		schema, err := searchSchema(logger)
		if err != nil {
			return nil, nil, err
		}
		def, ok := schema.Default()
		if !ok {
			def = make(map[string]any)
		}
		for _, name := range schema.Fields() {
			if _, ok := def[name]; !ok {
				def[name] = nil
			}
		}
		return schema, def, nil

	case "struct":
		r, err := resolver.NewStruct(searchFilters{Page: 1, Sort: "relevance"})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Default(), nil
	}
	return nil, nil, usageError(fmt.Sprintf("unknown resolver %q", kind)).
		WithSuggestion("Use --resolver schema or --resolver struct")
}

// Package query converts between search strings and raw parameter mappings.
//
// A search string is the textual query part of a URL, always starting with
// the "?" marker:
//
//	?q=go&page=2&tag=a&tag=b
//
// Decode turns it into a Raw mapping where a key seen once holds a single
// value and a repeated key holds the ordered list of its values:
//
//	raw := query.Decode("?q=go&tag=a&tag=b")
//	raw["q"]   // query.One("go")
//	raw["tag"] // query.Many("a", "b")
//
// Encode is the inverse and produces the canonical form: keys in sorted order,
// form-urlencoded values, and a bare "?" for an empty mapping. For mappings
// without multi-valued keys Decode(Encode(m)) equals m.
package query

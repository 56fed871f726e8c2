package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Capability Errors (Q001-Q019)
	// ============================================

	"Q001": {
		Category: CategoryCapability,
		Message:  "Interactive history host required",
		Detail:   "The history adapter was created from a context that carries no host. It only works inside a connected browser session or another history host.",
	},

	// ============================================
	// Configuration Errors (Q100-Q109)
	// ============================================

	"Q100": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "The configuration file or environment contains an invalid value.",
	},
	"Q101": {
		Category: CategoryConfig,
		Message:  "Adapter is required",
		Detail:   "A guard needs exactly one adapter to read and write the search string.",
	},
	"Q102": {
		Category: CategoryConfig,
		Message:  "Resolver is required",
		Detail:   "A guard needs exactly one resolver to convert raw parameters into typed state.",
	},
	"Q103": {
		Category: CategoryConfig,
		Message:  "Invalid option value",
		Detail:   "Unknown-key policy must be keep or drop; history must be replace or push; reset mode must be clear or write-defaults.",
	},
	"Q104": {
		Category: CategoryConfig,
		Message:  "Invalid rule expression",
		Detail:   "A schema rule failed to compile. Rules are expr-lang expressions evaluated against the parsed fields and must return a boolean.",
	},

	// ============================================
	// Resolution Errors (Q110-Q119)
	// ============================================

	"Q110": {
		Category: CategoryResolution,
		Message:  "Resolve failed",
		Detail:   "The resolver could not produce a typed value from the raw parameters.",
	},
	"Q111": {
		Category: CategoryResolution,
		Message:  "Serialize failed",
		Detail:   "The resolver could not convert the typed value back into raw parameters.",
	},
	"Q112": {
		Category: CategoryResolution,
		Message:  "No fallback value",
		Detail:   "Parsing failed and neither a fallback nor schema defaults can produce a value.",
	},

	// ============================================
	// Storage Errors (Q120-Q139)
	// ============================================

	"Q120": {
		Category: CategoryStorage,
		Message:  "Persist failed",
		Detail:   "The adapter could not persist the next search string.",
	},
	"Q121": {
		Category: CategoryStorage,
		Message:  "Link not found",
		Detail:   "No stored search string exists for this link id.",
	},
	"Q122": {
		Category: CategoryStorage,
		Message:  "Link store failure",
		Detail:   "The link backend returned an error.",
	},

	// ============================================
	// Protocol Errors (Q140-Q159)
	// ============================================

	"Q140": {
		Category: CategoryProtocol,
		Message:  "Invalid frame",
		Detail:   "The session frame could not be decoded or has an unknown type.",
	},
	"Q141": {
		Category: CategoryProtocol,
		Message:  "Frame too large",
		Detail:   "The session frame exceeds the configured maximum message size.",
	},
	"Q142": {
		Category: CategoryProtocol,
		Message:  "Handshake required",
		Detail:   "The first frame of a session must be hello with the current search string.",
	},

	// ============================================
	// CLI Errors (Q160-Q179)
	// ============================================

	"Q160": {
		Category: CategoryCLI,
		Message:  "Invalid argument",
		Detail:   "The command received an argument it cannot parse.",
	},
}

// Register adds or replaces an error template.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}

// Lookup returns the template for a code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

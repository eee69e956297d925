package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Configuration errors (T001-T099)

	"T001": {
		Category: CategoryConfig,
		Message:  "Config file not readable",
		Detail:   "The configuration file could not be opened or read.",
	},
	"T002": {
		Category: CategoryConfig,
		Message:  "Config file not parseable",
		Detail:   "The configuration file is not valid JSON or YAML.",
	},
	"T003": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations are written as Go duration strings such as \"500ms\", \"5s\" or \"1m\".",
	},
	"T004": {
		Category: CategoryConfig,
		Message:  "Unknown fetcher",
		Detail:   "The fetcher kind must be one of \"static\", \"http\" or \"s3\".",
	},
	"T005": {
		Category: CategoryConfig,
		Message:  "Missing required setting",
		Detail:   "The selected fetcher needs a setting that was not provided.",
	},
	"T006": {
		Category: CategoryConfig,
		Message:  "Invalid log setting",
		Detail:   "The log level must be debug, info, warn or error and the format text or json.",
	},
	"T007": {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "A TURBO_* environment variable holds a value that cannot be parsed.",
	},

	// Runtime errors (T100-T199)

	"T100": {
		Category: CategoryRuntime,
		Message:  "No cache configured",
		Detail:   "The binding found no cache in its options, the config context or the process defaults.",
	},
	"T101": {
		Category: CategoryRuntime,
		Message:  "Cached value has unexpected type",
		Detail:   "The cache returned a value whose dynamic type does not match the resource's value type.",
	},
	"T102": {
		Category: CategoryRuntime,
		Message:  "Fetch failed",
		Detail:   "The origin loader returned an error for the key.",
	},
	"T103": {
		Category: CategoryRuntime,
		Message:  "Binding has no active key",
		Detail:   "The resource is not bound to a key, so the request was ignored.",
	},

	// Transport errors (T200-T299)

	"T200": {
		Category: CategoryTransport,
		Message:  "Origin returned an error status",
		Detail:   "The HTTP origin answered with a non-2xx status.",
	},
	"T201": {
		Category: CategoryTransport,
		Message:  "Origin payload not decodable",
		Detail:   "The origin answered with a body that is not valid JSON.",
	},
	"T202": {
		Category: CategoryTransport,
		Message:  "Object storage read failed",
		Detail:   "The object could not be read from the bucket.",
	},
	"T203": {
		Category: CategoryTransport,
		Message:  "Invalid request body",
		Detail:   "The inspector could not decode the request body.",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

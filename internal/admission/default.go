package admission

// DefaultRules is the built-in policy. The first six tokens are the
// baseline set; the rest cover escape hatches of the script dialect.
var DefaultRules = Rules{
	ForbiddenTokens: []string{
		"__", "os.", "sys", "subprocess", "open(", "exec(",
		"eval(", "Function(", "constructor", "prototype", "globalThis",
		"require(", "import(", "process.", "Reflect", "Proxy",
		"fetch(", "XMLHttpRequest", "setPrototypeOf", "getPrototypeOf",
		"defineProperty",
	},
	Primitives:   []string{"print", "len", "round", "abs", "sum", "min", "max", "str", "int", "float"},
	TableResult:  "result_table",
	ScalarResult: "result_value",
}

var knownPrimitive = map[string]bool{
	"print": true, "len": true, "round": true, "abs": true, "sum": true,
	"min": true, "max": true, "str": true, "int": true, "float": true,
}

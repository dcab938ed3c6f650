package testutil

// Hostile filter inputs for query-building tests. None of them contain a NUL
// byte or invalid UTF-8, so every one must be accepted and bound as a
// parameter.
var (
	// SQLInjection holds classic statement-breaking payloads.
	SQLInjection = []string{
		"'",
		"''",
		"\"",
		"' OR '1'='1",
		"' OR 1=1 --",
		"'; DROP TABLE otel_logs; --",
		"1; SELECT * FROM system.users",
		"admin'--",
		"' UNION SELECT password FROM users --",
		"%' AND 1=0 UNION ALL SELECT 1 --",
		"\\'; --",
		"/* comment */ OR 1=1",
		"{p1:String}",
		"$1",
	}

	// LikeMetachars holds wildcard and escape characters of LIKE patterns.
	LikeMetachars = []string{
		"%",
		"_",
		"\\",
		"100%",
		"snake_case",
		"C:\\temp\\",
		"%%__\\\\",
	}

	// ControlChars holds whitespace and control characters that are valid
	// UTF-8 and must survive parameter encoding.
	ControlChars = []string{
		"\t",
		"\n",
		"\r\n",
		"line1\nline2",
		"tab\tseparated",
		"\x1b[31mred\x1b[0m",
	}

	// Unicode holds multi-byte and direction-changing text.
	Unicode = []string{
		"日本語",
		"Ωmega",
		"\u202Etxt.exe",
		"👍🏽",
		"Z̤͔ͧ̑̓ä͖̭̈̇lͮ̒ͫǧ̗͚̚o̙̔ͮ̇͐̇",
	}
)

// HostileInputs returns every hostile input in one slice.
func HostileInputs() []string {
	var out []string
	for _, set := range [][]string{SQLInjection, LikeMetachars, ControlChars, Unicode} {
		out = append(out, set...)
	}
	return out
}

// UnsafeInputs are literals that must be rejected outright.
var UnsafeInputs = []string{
	"a\x00b",
	"\x00",
	"\xff\xfe",
	"trailing \xc3",
}

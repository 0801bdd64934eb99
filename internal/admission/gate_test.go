package admission

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAdmit_Empty(t *testing.T) {
	p := NewDefault()
	for _, code := range []string{"", "   ", "\n\t "} {
		d := Admit(code, p)
		assert.False(t, d.Admitted)
		assert.Equal(t, ReasonEmptyCode, d.Reason)
	}
}

func TestAdmit_Clean(t *testing.T) {
	p := NewDefault()
	for _, code := range []string{
		"employees['Salary'].max()",
		"employees.nlargest(5, 'Salary')",
		"result_table = employees.groupby('Department').agg('Salary', 'mean')",
		"plt.figure(); sns.histplot(employees['Salary']); plt.savefig('salary.png'); print('Plot saved to plots/salary.png')",
	} {
		d := Admit(code, p)
		assert.True(t, d.Admitted, code)
		assert.NoError(t, d.Err())
	}
}

func TestAdmit_Regression(t *testing.T) {
	p := NewDefault()
	for _, code := range []string{
		"__import__('os').system('id')",
		"os.system('rm -rf /')",
		"import sys",
		"subprocess.run(['ls'])",
		"open('/etc/passwd').read()",
		"exec('print(1)')",
		"eval('1+1')",
		"new Function('return this')()",
		"(()=>{}).constructor('return process')()",
		"Object.prototype.x = 1",
		"globalThis.x",
		"require('fs')",
		"import('fs')",
		"process.exit(1)",
		"Reflect.ownKeys(employees)",
		"new Proxy({}, {})",
		"fetch('http://example.com')",
		"new XMLHttpRequest()",
		"Object.setPrototypeOf(a, b)",
		"Object.getPrototypeOf(a)",
		"Object.defineProperty(a, 'b', {})",
	} {
		d := Admit(code, p)
		require.False(t, d.Admitted, code)
		assert.Equal(t, ReasonUnsafeToken, d.Reason, code)
		assert.NotEmpty(t, d.Token())
		assert.True(t, strings.Contains(code, d.Token()))
	}
}

func TestRejection_HidesToken(t *testing.T) {
	p := NewDefault()
	d := Admit("subprocess.run(['ls'])", p)
	err := d.Err()
	require.Error(t, err)

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonUnsafeToken, rej.Reason)
	for _, tok := range p.ForbiddenTokens() {
		assert.NotContains(t, err.Error(), tok)
	}
}

func TestAdmit_CaseSensitive(t *testing.T) {
	d := Admit("employees['SYSTEM_ID'].max()", NewDefault())
	assert.True(t, d.Admitted)
}

func TestAdmit_TokenAnywhereIsRejected(t *testing.T) {
	p := NewDefault()
	tokens := p.ForbiddenTokens()
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`[a-z0-9 ().'=+\n]{0,20}`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[a-z0-9 ().'=+\n]{0,20}`).Draw(t, "suffix")
		tok := rapid.SampledFrom(tokens).Draw(t, "token")

		d := Admit(prefix+tok+suffix, p)
		if d.Admitted {
			t.Fatalf("code containing %q was admitted", tok)
		}
		if d.Reason != ReasonUnsafeToken {
			t.Fatalf("reason = %s", d.Reason)
		}
	})
}

func TestAdmit_Deterministic(t *testing.T) {
	p := NewDefault()
	rapid.Check(t, func(t *rapid.T) {
		code := rapid.String().Draw(t, "code")
		if Admit(code, p) != Admit(code, p) {
			t.Fatalf("decision for %q changed between calls", code)
		}
	})
}

func TestAdmit_NoBuiltinsException(t *testing.T) {
	d := Admit("safe_globals['__builtins__'] = {}", NewDefault())
	require.False(t, d.Admitted)
	assert.Equal(t, ReasonUnsafeToken, d.Reason)
}

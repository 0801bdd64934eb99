package admission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewDefault(t *testing.T) {
	p := NewDefault()
	assert.Contains(t, p.ForbiddenTokens(), "__")
	assert.Contains(t, p.ForbiddenTokens(), "constructor")
	assert.Len(t, p.Primitives(), 10)
	assert.True(t, p.Plotting())
	assert.Equal(t, "result_table", p.TableResult())
	assert.Equal(t, "result_value", p.ScalarResult())
}

func TestNew_RejectsEmptyDenylist(t *testing.T) {
	_, err := New(Rules{ForbiddenTokens: []string{}})
	require.Error(t, err)

	_, err = New(Rules{ForbiddenTokens: []string{"os.", "  "}})
	require.Error(t, err)
}

func TestNew_RejectsUnknownPrimitive(t *testing.T) {
	_, err := New(Rules{Primitives: []string{"print", "exec"}})
	require.Error(t, err)
}

func TestNew_RejectsForbiddenResultName(t *testing.T) {
	_, err := New(Rules{TableResult: "__result"})
	require.Error(t, err)
}

func TestPermits(t *testing.T) {
	p := NewDefault()
	assert.True(t, p.Permits("employees"))
	assert.False(t, p.Permits("__secret"))
	assert.False(t, p.Permits("filesystem"))
}

func TestPolicy_CopiesAreIndependent(t *testing.T) {
	p := NewDefault()
	toks := p.ForbiddenTokens()
	toks[0] = "x"
	assert.Equal(t, "__", p.ForbiddenTokens()[0])
}

func TestLoad(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, NewDefault().ForbiddenTokens(), p.ForbiddenTokens())

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
forbidden_tokens: ["__", "os."]
primitives: [print, len]
plotting: false
`), 0o644))
	p, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"__", "os."}, p.ForbiddenTokens())
	assert.Equal(t, []string{"print", "len"}, p.Primitives())
	assert.False(t, p.Plotting())
	assert.Equal(t, "result_table", p.TableResult())

	require.NoError(t, os.WriteFile(path, []byte("forbidden_tokens: []\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestRules_RoundTrip(t *testing.T) {
	out, err := yaml.Marshal(NewDefault().Rules())
	require.NoError(t, err)

	var r Rules
	require.NoError(t, yaml.Unmarshal(out, &r))
	p, err := New(r)
	require.NoError(t, err)
	assert.Equal(t, NewDefault().Rules(), p.Rules())
}

func FuzzAdmit(f *testing.F) {
	f.Add("employees['Salary'].max()")
	f.Add("")
	f.Add("__import__('os')")
	f.Add("print('Plot saved to plots/x.png')")

	p := NewDefault()
	f.Fuzz(func(t *testing.T, code string) {
		d := Admit(code, p)
		if d.Admitted {
			for _, tok := range p.ForbiddenTokens() {
				if containsToken(code, tok) {
					t.Fatalf("admitted code containing %q", tok)
				}
			}
		}
	})
}

func containsToken(code, tok string) bool {
	_, hit := (&Policy{forbidden: []string{tok}}).scan(code)
	return hit
}

func TestLoad_ExampleMatchesDefaults(t *testing.T) {
	p, err := Load(filepath.Join("..", "..", "configs", "policy.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRules.ForbiddenTokens, p.ForbiddenTokens())
	assert.Equal(t, DefaultRules.Primitives, p.Primitives())
	assert.True(t, p.Plotting())
}

package matrix

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/ttr/internal/definition"
	"github.com/zjrosen/ttr/internal/log"
	"github.com/zjrosen/ttr/internal/registry"
	"github.com/zjrosen/ttr/internal/tree"
)

func intelDP(configs ...string) []definition.CompilerTests {
	return []definition.CompilerTests{{
		Compiler:   "intel",
		Precisions: []definition.PrecisionTests{{Precision: "dp", Configs: configs}},
	}}
}

func TestExpand_CrossProduct(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Add(&registry.Case{Name: "previous"}))

	res, err := NewExpander("alice").Expand(reg, &definition.IAL{
		Hash:  "abcdef1234567",
		Tests: intelDP("conf1", "conf2"),
	})
	require.NoError(t, err)

	require.Equal(t, "abcdef1_", res.Tag)
	require.Equal(t, []string{"conf1_intel_dp", "conf2_intel_dp"}, res.Selection)
	require.Equal(t, []string{"previous", "conf1_intel_dp", "conf2_intel_dp"}, reg.Names())

	c, ok := reg.Get("conf1_intel_dp")
	require.True(t, ok)
	require.Equal(t, "conf1", c.Base)

	v, _ := tree.Get(c.Modifs, "submission", "compiler")
	require.Equal(t, "intel", v)
	v, _ = tree.Get(c.Modifs, "submission", "precision")
	require.Equal(t, "dp", v)
	v, _ = tree.Get(c.Modifs, "scheduler", "ecfvars", "case_prefix")
	require.Equal(t, "abcdef1_conf1_intel_dp_", v)
	_, ok = tree.Get(c.Modifs, "submission", "bindir")
	require.False(t, ok)
}

func TestExpand_BindirPerCompilerAndPrecision(t *testing.T) {
	reg := registry.New()
	ial := &definition.IAL{
		Hash:   "abcdef1234567",
		Bindir: "/scratch/@USER@/@IAL_HASH@@CPTAG@/bin",
		Tests: []definition.CompilerTests{
			{Compiler: "gnu", Precisions: []definition.PrecisionTests{
				{Precision: "sp", Configs: []string{"c"}},
				{Precision: "dp", Configs: []string{"c"}},
			}},
			{Compiler: "cray", Precisions: []definition.PrecisionTests{
				{Precision: "sp", Configs: []string{"c"}},
			}},
		},
	}

	res, err := NewExpander("alice").Expand(reg, ial)
	require.NoError(t, err)
	require.Equal(t, []string{"c_gnu_sp", "c_gnu_dp", "c_cray_sp"}, res.Selection)

	tests := []struct {
		name         string
		bindir       string
		forecastBins string
	}{
		{"c_gnu_sp", "/scratch/alice/abcdef1234567-gnu/bin", "/scratch/alice/abcdef1234567-sp-gnu/bin"},
		{"c_gnu_dp", "/scratch/alice/abcdef1234567-gnu/bin", "/scratch/alice/abcdef1234567-gnu/bin"},
		{"c_cray_sp", "/scratch/alice/abcdef1234567/bin", "/scratch/alice/abcdef1234567/bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := reg.Get(tt.name)
			require.True(t, ok)
			v, _ := tree.Get(c.Modifs, "submission", "bindir")
			require.Equal(t, tt.bindir, v)
			v, _ = tree.Get(c.Modifs, "submission", "task_exceptions", "Forecast", "bindir")
			require.Equal(t, tt.forecastBins, v)
		})
	}
}

func TestExpand_DefaultHash(t *testing.T) {
	res, err := NewExpander("").Expand(registry.New(), &definition.IAL{Tests: intelDP("x")})
	require.NoError(t, err)
	require.Equal(t, "latest_", res.Tag)
}

func TestExpand_ReplacesExistingEntry(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	reg := registry.New()
	require.NoError(t, reg.Add(&registry.Case{Name: "x_intel_dp", Host: "stale"}))

	_, err := NewExpander("").Expand(reg, &definition.IAL{Tests: intelDP("x")})
	require.NoError(t, err)

	c, _ := reg.Get("x_intel_dp")
	require.Empty(t, c.Host)
	require.Equal(t, 1, reg.Len())
	require.Contains(t, buf.String(), "[WARN] [matrix] matrix case replaces existing case case=x_intel_dp")
}

func TestExpand_FreshNamesDoNotWarn(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	reg := registry.New()
	require.NoError(t, reg.Add(&registry.Case{Name: "x"}))
	_, err := NewExpander("").Expand(reg, &definition.IAL{Tests: intelDP("x")})
	require.NoError(t, err)
	require.NotContains(t, buf.String(), "WARN")
}

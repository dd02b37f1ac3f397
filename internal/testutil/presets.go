package testutil

// WithHostScenario adds a host case B and a dependent case A that reads the
// host's identity through macros. Both share a counter-driven override.
func (b *Builder) WithHostScenario() *Builder {
	return b.
		WithGeneral(Tag("t1_")).
		WithCase("B", Modifs(map[string]any{
			"general": map[string]any{"case": "@counter@"},
		})).
		WithCase("A", Host("B"), Modifs(map[string]any{
			"general": map[string]any{"case": "@counter@"},
			"coupling": map[string]any{
				"host_case":   "@host_case@",
				"host_domain": "@host_domain@",
			},
		}))
}

// WithSubtagScenario adds cases AROME and ALARO and an active subtag rule a
// that excludes ALARO.
func (b *Builder) WithSubtagScenario() *Builder {
	return b.
		WithGeneral(Tag("t2_")).
		WithSubtag("a", Active(true), Exclude("ALARO"), SubtagExtra("a.toml")).
		WithCase("AROME").
		WithCase("ALARO")
}

// WithMatrixScenario adds an active build matrix over two intel precisions
// and one gnu precision.
func (b *Builder) WithMatrixScenario() *Builder {
	return b.
		WithGeneral(Tag("t3_")).
		WithCase("AROME").
		WithIAL(
			Hash("a1b2c3d4e5f6"),
			IALActive(true),
			Bindir("/home/@USER@/bin/@IAL_HASH@@CPTAG@/bin"),
		).
		WithTests("intel", "dp", "AROME", "ALARO").
		WithTests("intel", "sp", "AROME").
		WithTests("gnu", "dp", "AROME")
}

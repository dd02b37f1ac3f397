package testutil

// GeneralOption sets a [general] key.
type GeneralOption func(map[string]any)

// Tag sets the run tag.
func Tag(tag string) GeneralOption {
	return func(m map[string]any) { m["tag"] = tag }
}

// Dry sets general.dry.
func Dry(dry bool) GeneralOption {
	return func(m map[string]any) { m["dry"] = dry }
}

// Mode sets the run mode, "suite" or "task".
func Mode(mode string) GeneralOption {
	return func(m map[string]any) { m["mode"] = mode }
}

// Selection sets the base selection.
func Selection(names ...string) GeneralOption {
	return func(m map[string]any) { m["selection"] = names }
}

// GlobalExtra sets the fragments applied to every case.
func GlobalExtra(paths ...string) GeneralOption {
	return func(m map[string]any) { m["extra"] = paths }
}

// SubtagOption sets a subtag rule key.
type SubtagOption func(map[string]any)

// Active sets whether the rule applies.
func Active(active bool) SubtagOption {
	return func(m map[string]any) { m["active"] = active }
}

// Exclude sets name substrings the rule skips.
func Exclude(patterns ...string) SubtagOption {
	return func(m map[string]any) { m["exclude"] = patterns }
}

// SubtagExtra sets fragments appended to derived cases.
func SubtagExtra(paths ...string) SubtagOption {
	return func(m map[string]any) { m["extra"] = paths }
}

// CaseOption sets a [cases.<name>] key.
type CaseOption func(map[string]any)

// Base sets the template the case is generated from.
func Base(base string) CaseOption {
	return func(m map[string]any) { m["base"] = base }
}

// Host makes the case run on another case.
func Host(host string) CaseOption {
	return func(m map[string]any) { m["host"] = host }
}

// Subtag sets the case's subtag label.
func Subtag(subtag string) CaseOption {
	return func(m map[string]any) { m["subtag"] = subtag }
}

// Start fixes the counter of a hostless case.
func Start(n int) CaseOption {
	return func(m map[string]any) { m["start"] = n }
}

// Extra sets the case's extra fragments.
func Extra(paths ...string) CaseOption {
	return func(m map[string]any) { m["extra"] = paths }
}

// Tasks sets the tasks run in task mode.
func Tasks(tasks ...string) CaseOption {
	return func(m map[string]any) { m["tasks"] = tasks }
}

// Modifs sets the case's override tree.
func Modifs(modifs map[string]any) CaseOption {
	return func(m map[string]any) { m["modifs"] = modifs }
}

// IALOption sets an [ial] key.
type IALOption func(map[string]any)

// Hash sets ial_hash.
func Hash(hash string) IALOption {
	return func(m map[string]any) { m["ial_hash"] = hash }
}

// IALActive sets whether matrix expansion runs.
func IALActive(active bool) IALOption {
	return func(m map[string]any) { m["active"] = active }
}

// Bindir sets the binary directory template.
func Bindir(template string) IALOption {
	return func(m map[string]any) { m["bindir"] = template }
}

// BuildTarPath sets where build archives are found.
func BuildTarPath(path string) IALOption {
	return func(m map[string]any) { m["build_tar_path"] = path }
}

// UserBinaryPath sets the root for binaries when no bindir is given.
func UserBinaryPath(path string) IALOption {
	return func(m map[string]any) { m["user_binary_path"] = path }
}

package table

import "github.com/mesh-intelligence/stagehand/pkg/types"

// DefaultCodegen regenerates protocol interface code in the source tree.
var DefaultCodegen = []string{"bin/protogen"}

// DefaultRecipe is the recipe shared by every package of the built-in table.
func DefaultRecipe() types.Recipe {
	return types.Recipe{
		Build: types.Step{
			Command: []string{"python3", "setup.py", "--command-packages=stdeb.command", "bdist_deb"},
		},
		Repeat:    1,
		Artifacts: types.ArtifactsRequired,
	}
}

// DefaultPackages is the built-in dependency table, in declared build order.
//
// Keep this list consistent with the packages' real imports: the build tool
// resolves its transitive dependencies from the search path only.
func DefaultPackages() []types.Package {
	return []types.Package{
		{Path: "signing"},
		{Path: "sdk/python", DependsOn: []string{"signing"}},
		{Path: "cli", DependsOn: withBase()},
		{
			Path:      "validator",
			DependsOn: withBase(),
			// stdeb packages the generated sources only after a first pass.
			Recipe: types.Recipe{
				Clean:  []string{"build", "deb_dist"},
				Repeat: 2,
			},
		},
		{Path: "rest_api", DependsOn: withBase()},
		{Path: "families/settings", DependsOn: withBase()},
		{Path: "families/identity", DependsOn: withBase()},
		{Path: "families/block_info", DependsOn: withBase()},
		{Path: "families/intkey", DependsOn: withBase()},
		{Path: "families/xo", DependsOn: withBase()},
		{Path: "consensus/poet/common", DependsOn: withBase()},
		{
			Path:      "consensus/poet/simulator",
			DependsOn: withBase("consensus/poet/common", "consensus/poet/common/tests"),
		},
		{
			Path: "consensus/poet/core",
			DependsOn: withBase(
				"validator",
				"consensus/poet/common",
				"consensus/poet/simulator",
			),
			Recipe: types.Recipe{
				Pre: []types.Step{{Command: []string{"python3", "setup.py", "clean", "--all"}}},
			},
		},
		{
			Path:      "consensus/poet/families",
			DependsOn: withBase("consensus/poet/common", "consensus/poet/common/tests"),
		},
		{
			Path: "consensus/poet/cli",
			DependsOn: withBase(
				"cli",
				"consensus/poet/common",
				"consensus/poet/core",
				"consensus/poet/simulator",
			),
		},
	}
}

// withBase returns the edges every package past the SDK needs, followed by extra.
func withBase(extra ...string) []string {
	return append([]string{"signing", "sdk/python"}, extra...)
}

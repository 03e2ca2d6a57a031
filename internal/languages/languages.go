// Package languages holds the per-language build/run/scaffold profiles the
// grading pipeline needs, generalizing the dispatch worker.rs and
// compiler.rs performed with a set of free functions per language.
package languages

import "fmt"

// ScaffoldFile is a file the pipeline writes into the workspace alongside
// the submission before compiling, e.g. a minimal package manifest.
type ScaffoldFile struct {
	Name    string
	Content string
}

// Profile describes how to prepare, compile, and run a submission in one
// language.
type Profile struct {
	Language string

	// SourceFileName is the conventional filename the submission is written
	// to in the workspace.
	SourceFileName string

	// Scaffold is written alongside SourceFileName before compiling.
	Scaffold []ScaffoldFile

	// CompileCmd is empty for languages with no separate compile step
	// (interpreted languages): the pipeline skips straight to test-running.
	CompileCmd []string

	// RunCmd runs the compiled artifact (or the interpreter) against one
	// input file appended as the final argument.
	RunCmd []string

	// TestRunnerDriven is true for toolchains (e.g. Foundry) whose test
	// command runs every fixture itself in one pass; the pipeline invokes
	// it once and treats a zero exit as "all fixtures passed" rather than
	// looping per fixture.
	TestRunnerDriven bool

	// TestCmd is only set when TestRunnerDriven is true.
	TestCmd []string
}

var profiles = map[string]Profile{
	"rust": {
		Language:       "rust",
		SourceFileName: "main.rs",
		Scaffold: []ScaffoldFile{
			{Name: "Cargo.toml", Content: "[package]\nname = \"submission\"\nversion = \"0.1.0\"\nedition = \"2021\"\n\n[[bin]]\nname = \"submission\"\npath = \"main.rs\"\n"},
		},
		CompileCmd: []string{"rustc", "-O", "main.rs", "-o", "submission"},
		RunCmd:     []string{"./submission"},
	},
	"javascript": {
		Language:       "javascript",
		SourceFileName: "main.js",
		RunCmd:         []string{"node", "main.js"},
	},
	"python": {
		Language:       "python",
		SourceFileName: "main.py",
		RunCmd:         []string{"python3", "main.py"},
	},
	"solidity": {
		Language:       "solidity",
		SourceFileName: "src/Submission.sol",
		Scaffold: []ScaffoldFile{
			{Name: "foundry.toml", Content: "[profile.default]\nsrc = \"src\"\nout = \"out\"\nlibs = [\"lib\"]\n"},
		},
		CompileCmd:       []string{"forge", "build"},
		TestRunnerDriven: true,
		TestCmd:          []string{"forge", "test"},
	},
	"solidity-hardhat": {
		Language:       "solidity-hardhat",
		SourceFileName: "contracts/Submission.sol",
		Scaffold: []ScaffoldFile{
			{Name: "hardhat.config.js", Content: "module.exports = {\n  solidity: \"0.8.24\",\n};\n"},
		},
		CompileCmd:       []string{"npx", "hardhat", "compile"},
		TestRunnerDriven: true,
		TestCmd:          []string{"npx", "hardhat", "test"},
	},
	"move": {
		Language:       "move",
		SourceFileName: "sources/submission.move",
		Scaffold: []ScaffoldFile{
			{Name: "Move.toml", Content: "[package]\nname = \"submission\"\nversion = \"0.0.1\"\n"},
		},
		CompileCmd: []string{"aptos", "move", "compile"},
		RunCmd:     []string{"aptos", "move", "run"},
	},
}

// Lookup returns the Profile for language, matched case-insensitively.
func Lookup(language string) (Profile, error) {
	p, ok := profiles[normalize(language)]
	if !ok {
		return Profile{}, fmt.Errorf("unsupported language: %s", language)
	}
	return p, nil
}

func normalize(language string) string {
	out := make([]byte, 0, len(language))
	for _, c := range language {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, byte(c))
	}
	return string(out)
}

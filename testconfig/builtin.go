package testconfig

import (
	"embed"
	"fmt"
	"strings"
	"sync"
)

//go:embed builtin/*.csv
var builtinFS embed.FS

var builtinNames = []string{
	"osha",
	"osha_legacy",
	"osha_fast_ffp",
	"osha_fast_elasto",
	"crash_2_5",
	"hse_indg_479",
	"iso_16975_3_2017",
	"live_mode_1h",
}

var loadBuiltins = sync.OnceValue(func() map[string]TestConfig {
	configs := make(map[string]TestConfig, len(builtinNames))
	for _, name := range builtinNames {
		data, err := builtinFS.ReadFile("builtin/" + name + ".csv")
		if err != nil {
			panic(fmt.Sprintf("testconfig: missing builtin %q: %v", name, err))
		}
		cfg, err := Parse(strings.NewReader(string(data)))
		if err != nil {
			panic(fmt.Sprintf("testconfig: builtin %q failed to parse: %v", name, err))
		}
		if err := cfg.Validate(); err != nil {
			panic(fmt.Sprintf("testconfig: builtin %q failed to validate: %v", name, err))
		}
		if cfg.ID != name {
			panic(fmt.Sprintf("testconfig: builtin file %q declares id %q", name, cfg.ID))
		}
		if _, exists := configs[cfg.ID]; exists {
			panic(fmt.Sprintf("testconfig: duplicate builtin id %q", cfg.ID))
		}
		configs[cfg.ID] = cfg
	}
	return configs
})

// Builtins returns the name-keyed set of built-in test protocols. It is
// computed once; the returned map must be treated as read-only.
func Builtins() map[string]TestConfig {
	return loadBuiltins()
}

// Builtin returns the built-in protocol with the given id, or false if no
// such protocol exists.
func Builtin(id string) (TestConfig, bool) {
	cfg, ok := loadBuiltins()[id]
	return cfg, ok
}

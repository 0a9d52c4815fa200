package jack

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

// The Jack OS standard library ships no bodies of its own: its classes (Math, String,
// Array, Output, Screen, Keyboard, Memory, Sys) are assumed to be provided externally at
// link time. What we embed here is just their ABI (arity and argument/return kinds) so
// that lowering and type-checking can resolve calls into the standard library without
// requiring its sources to be present among the compiled translation units.
//
//go:embed stdlib.json
var content string

// Indexed by class name, then by subroutine name.
var StandardLibraryABI = map[string]map[string]Subroutine{}

func init() {
	if err := json.Unmarshal([]byte(content), &StandardLibraryABI); err != nil {
		panic(fmt.Sprintf("jack: malformed embedded stdlib.json: %s", err))
	}
}

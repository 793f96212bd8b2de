// Command depscheck enforces the layering rules between packages: the
// deterministic core (proto, gate, rules, sim) must never depend on
// transport or wiring, and only executables may import the app package.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type packageInfo struct {
	ImportPath string
	Imports    []string
}

type rule struct {
	pkgPrefix    string
	importPrefix string
}

var rules = []rule{
	{"skirmish/internal/proto", "skirmish/internal/gate"},
	{"skirmish/internal/proto", "skirmish/internal/sim"},
	{"skirmish/internal/gate", "skirmish/internal/sim"},
	{"skirmish/internal/gate", "skirmish/internal/relay"},
	{"skirmish/internal/sim", "skirmish/internal/relay"},
	{"skirmish/internal/sim", "skirmish/internal/net"},
	{"skirmish/internal/sim", "skirmish/internal/audit"},
	{"skirmish/internal/relay", "skirmish/internal/sim"},
	{"skirmish/internal", "skirmish/internal/app"},
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./internal/...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	decoder := json.NewDecoder(bytes.NewReader(output))

	var violations []string
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
			os.Exit(1)
		}

		for _, imp := range pkg.Imports {
			for _, r := range rules {
				if strings.HasPrefix(pkg.ImportPath, r.pkgPrefix) && strings.HasPrefix(imp, r.importPrefix) {
					violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
				}
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
)

// allowedGlobals lists package-level vars that are constant in practice but
// not recognized by the checks below.
var allowedGlobals = map[string][]string{
	// Filled by go:embed at build time, read-only afterwards.
	"prompts": {"defaultsYAML"},
}

// allowedGlobalPrefixes treats every var with one of these prefixes as
// constant-like: lipgloss colors and styles are built once and never
// reassigned.
var allowedGlobalPrefixes = map[string][]string{
	"tui": {"style", "color"},
}

// TestNoMutableGlobalState flags package-level vars other than error
// sentinels, interface checks, sync or atomic values, literals and
// allowlisted names.
func TestNoMutableGlobalState(t *testing.T) {
	t.Parallel()
	dir := internalDirPath(t)
	for _, pkg := range internalPackages(t) {
		t.Run(pkg, func(t *testing.T) {
			t.Parallel()
			allowed := make(map[string]bool)
			for _, n := range allowedGlobals[pkg] {
				allowed[n] = true
			}
			for _, file := range goFilesIn(t, filepath.Join(dir, filepath.FromSlash(pkg))) {
				for _, v := range mutableGlobals(t, file, "") {
					if allowed[v] || hasAnyPrefix(v, allowedGlobalPrefixes[pkg]) {
						continue
					}
					t.Errorf("mutable global state in %s: var %s; pass it in or move it into a function", filepath.Base(file), v)
				}
			}
		})
	}
}

// TestAllowedGlobalsAreUsed catches allowlist entries that outlived the var.
func TestAllowedGlobalsAreUsed(t *testing.T) {
	t.Parallel()
	dir := internalDirPath(t)
	for pkg, names := range allowedGlobals {
		declared := make(map[string]bool)
		for _, file := range goFilesIn(t, filepath.Join(dir, filepath.FromSlash(pkg))) {
			for _, v := range varNames(t, file, "") {
				declared[v] = true
			}
		}
		for _, n := range names {
			if !declared[n] {
				t.Errorf("allowedGlobals[%q] lists %q but no such var exists", pkg, n)
			}
		}
	}
}

func TestGlobalStateDetection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		src     string
		flagged bool
	}{
		{"errors.New", `package p; import "errors"; var ErrFoo = errors.New("foo")`, false},
		{"fmt.Errorf", `package p; import "fmt"; var ErrBar = fmt.Errorf("bar: %w", nil)`, false},
		{"typed error", `package p; var errX error`, false},
		{"interface check", `package p; type I interface{}; type S struct{}; var _ I = (*S)(nil)`, false},
		{"regexp", `package p; import "regexp"; var re = regexp.MustCompile("^a$")`, false},
		{"sync", `package p; import "sync"; var once sync.Once`, false},
		{"literal", `package p; var name = "hello"`, false},
		{"composite literal", `package p; var lookup = map[string]bool{"x": true}`, false},
		{"make map", `package p; var m = make(map[string]string)`, true},
		{"make chan", `package p; var ch = make(chan int)`, true},
		{"pointer", `package p; type T struct{}; var cur *T`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mutableGlobals(t, "p.go", tt.src)
			if flagged := len(got) > 0; flagged != tt.flagged {
				t.Errorf("flagged = %v (%v), want %v", flagged, got, tt.flagged)
			}
		})
	}
}

// varNames returns every package-level var name declared in a file. When src
// is non-empty it is parsed instead of reading file.
func varNames(t *testing.T, file, src string) []string {
	t.Helper()
	var out []string
	for _, vs := range varSpecs(t, file, src) {
		for _, id := range vs.Names {
			out = append(out, id.Name)
		}
	}
	return out
}

// mutableGlobals returns the package-level vars in a file that are not
// error sentinels, interface checks, sync or atomic values, regexps or
// literals.
func mutableGlobals(t *testing.T, file, src string) []string {
	t.Helper()
	var out []string
	for _, vs := range varSpecs(t, file, src) {
		for i, id := range vs.Names {
			var val ast.Expr
			if i < len(vs.Values) {
				val = vs.Values[i]
			}
			if id.Name == "_" || constantLike(vs.Type, val) {
				continue
			}
			out = append(out, id.Name)
		}
	}
	return out
}

func varSpecs(t *testing.T, file, src string) []*ast.ValueSpec {
	t.Helper()
	var in any
	if src != "" {
		in = src
	}
	node, err := parser.ParseFile(token.NewFileSet(), file, in, parser.SkipObjectResolution)
	if err != nil {
		t.Fatalf("parsing %s: %v", file, err)
	}
	var specs []*ast.ValueSpec
	for _, decl := range node.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			continue
		}
		for _, spec := range gd.Specs {
			if vs, ok := spec.(*ast.ValueSpec); ok {
				specs = append(specs, vs)
			}
		}
	}
	return specs
}

func constantLike(typ, val ast.Expr) bool {
	if id, ok := typ.(*ast.Ident); ok && id.Name == "error" {
		return true
	}
	if pkg, _ := selector(typ); pkg == "sync" || pkg == "atomic" {
		return true
	}
	switch v := val.(type) {
	case *ast.BasicLit, *ast.CompositeLit:
		return true
	case *ast.CallExpr:
		switch pkg, name := selector(v.Fun); pkg + "." + name {
		case "errors.New", "fmt.Errorf", "regexp.MustCompile":
			return true
		}
	}
	return false
}

// selector splits pkg.Name expressions.
func selector(expr ast.Expr) (string, string) {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return "", ""
	}
	x, ok := sel.X.(*ast.Ident)
	if !ok {
		return "", ""
	}
	return x.Name, sel.Sel.Name
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

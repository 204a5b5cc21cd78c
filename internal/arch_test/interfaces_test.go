package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"testing"
)

// colocated lists interfaces allowed to live beside an implementation.
var colocated = map[string]map[string]bool{
	// Generator is shared by every backend and middleware; GeneratorFunc,
	// Scripted and the retry, timeout and tracing wrappers implement it in
	// place while memory, pipeline and cmd consume it.
	"llm": {"Generator": true},
}

// methodSets maps each receiver type in pkgDir to its method names.
func methodSets(t *testing.T, pkgDir string) map[string]map[string]bool {
	t.Helper()
	sets := make(map[string]map[string]bool)
	fset := token.NewFileSet()
	for _, f := range goFilesIn(t, pkgDir) {
		node, err := parser.ParseFile(fset, f, nil, parser.SkipObjectResolution)
		if err != nil {
			t.Fatalf("parsing %s: %v", f, err)
		}
		for _, decl := range node.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Recv == nil || len(fd.Recv.List) == 0 {
				continue
			}
			expr := fd.Recv.List[0].Type
			if star, ok := expr.(*ast.StarExpr); ok {
				expr = star.X
			}
			id, ok := expr.(*ast.Ident)
			if !ok {
				continue
			}
			if sets[id.Name] == nil {
				sets[id.Name] = make(map[string]bool)
			}
			sets[id.Name][fd.Name.Name] = true
		}
	}
	return sets
}

// TestInterfacePlacement keeps interfaces with their consumers: an interface
// whose method names are all implemented by a type in the same package is
// flagged unless allowlisted.
func TestInterfacePlacement(t *testing.T) {
	t.Parallel()
	dir := internalDirPath(t)
	for _, pkg := range internalPackages(t) {
		t.Run(pkg, func(t *testing.T) {
			t.Parallel()
			pkgDir := filepath.Join(dir, filepath.FromSlash(pkg))
			var ifaces []interfaceDecl
			for _, f := range goFilesIn(t, pkgDir) {
				ifaces = append(ifaces, interfaceDecls(t, f)...)
			}
			if len(ifaces) == 0 {
				return
			}
			sets := methodSets(t, pkgDir)
			for _, iface := range ifaces {
				if len(iface.Methods) == 0 || colocated[pkg][iface.Name] {
					continue
				}
				for typ, methods := range sets {
					if hasAll(methods, iface.Methods) {
						t.Errorf("interface %s is implemented by %s in the same package %s; declare it at the consumer",
							iface.Name, typ, pkg)
					}
				}
			}
		})
	}
}

func hasAll(set map[string]bool, names []string) bool {
	for _, n := range names {
		if !set[n] {
			return false
		}
	}
	return true
}

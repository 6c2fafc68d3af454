package server

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"testing"
)

type registeredRoute struct {
	method  string
	path    string
	handler string
}

type boundaryCalls struct {
	service   []string
	delegates []string
}

func TestEvidenceRoutesUseServiceBoundary(t *testing.T) {
	routes := parseRegisteredRoutes(t)
	handlers := parseServerHandlers(t)

	evidenceRoutes := make([]registeredRoute, 0)
	for _, route := range routes {
		if strings.HasPrefix(route.path, "/api/v1/") {
			evidenceRoutes = append(evidenceRoutes, route)
		}
	}
	if len(evidenceRoutes) == 0 {
		t.Fatal("no evidence routes discovered")
	}

	for _, route := range evidenceRoutes {
		if _, ok := handlers[route.handler]; !ok {
			t.Fatalf("handler %q for %s %s not found", route.handler, route.method, route.path)
		}
		if !reachesService(route.handler, handlers, map[string]bool{}) {
			t.Fatalf("handler %q (%s %s) does not call the evidence service", route.handler, route.method, route.path)
		}
	}
}

func TestServerDoesNotImportStorageLayers(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(serverPackageDir(t), "*.go"))
	if err != nil {
		t.Fatalf("glob server files: %v", err)
	}
	forbidden := []string{"evidencevault/internal/store", "evidencevault/internal/blobstore"}

	fset := token.NewFileSet()
	for _, filePath := range files {
		if strings.HasSuffix(filePath, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filePath, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", filePath, err)
		}
		for _, imp := range file.Imports {
			path, _ := strconv.Unquote(imp.Path.Value)
			if slices.Contains(forbidden, path) {
				t.Fatalf("%s imports %s; content must flow through the evidence service", filepath.Base(filePath), path)
			}
		}
	}
}

func reachesService(name string, handlers map[string]*ast.FuncDecl, seen map[string]bool) bool {
	if seen[name] {
		return false
	}
	seen[name] = true
	fn, ok := handlers[name]
	if !ok {
		return false
	}
	calls := inspectBoundaryCalls(fn)
	if len(calls.service) > 0 {
		return true
	}
	for _, next := range calls.delegates {
		if reachesService(next, handlers, seen) {
			return true
		}
	}
	return false
}

func parseRegisteredRoutes(t *testing.T) []registeredRoute {
	t.Helper()

	routesPath := filepath.Join(serverPackageDir(t), "routes.go")
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, routesPath, nil, 0)
	if err != nil {
		t.Fatalf("parse routes.go: %v", err)
	}

	routes := make([]registeredRoute, 0)
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "HandleFunc" || len(call.Args) != 2 {
			return true
		}

		patternLit, ok := call.Args[0].(*ast.BasicLit)
		if !ok || patternLit.Kind != token.STRING {
			return true
		}
		pattern, err := strconv.Unquote(patternLit.Value)
		if err != nil {
			t.Fatalf("unquote route pattern %q: %v", patternLit.Value, err)
		}
		parts := strings.SplitN(pattern, " ", 2)
		if len(parts) != 2 {
			return true
		}

		handlerSel, ok := call.Args[1].(*ast.SelectorExpr)
		if !ok {
			return true
		}
		recv, ok := handlerSel.X.(*ast.Ident)
		if !ok || recv.Name != "s" {
			return true
		}

		routes = append(routes, registeredRoute{
			method:  strings.TrimSpace(parts[0]),
			path:    strings.TrimSpace(parts[1]),
			handler: handlerSel.Sel.Name,
		})
		return true
	})

	return routes
}

func parseServerHandlers(t *testing.T) map[string]*ast.FuncDecl {
	t.Helper()

	files, err := filepath.Glob(filepath.Join(serverPackageDir(t), "handlers*.go"))
	if err != nil {
		t.Fatalf("glob handler files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no handler files found")
	}

	out := make(map[string]*ast.FuncDecl)
	fset := token.NewFileSet()
	for _, filePath := range files {
		file, err := parser.ParseFile(fset, filePath, nil, 0)
		if err != nil {
			t.Fatalf("parse %s: %v", filePath, err)
		}
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || fn.Name == nil || !strings.HasPrefix(fn.Name.Name, "handle") {
				continue
			}
			if !isServerReceiver(fn.Recv) {
				continue
			}
			out[fn.Name.Name] = fn
		}
	}
	return out
}

func inspectBoundaryCalls(fn *ast.FuncDecl) boundaryCalls {
	calls := boundaryCalls{}
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		selector, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if recv, ok := selector.X.(*ast.Ident); ok && recv.Name == "s" {
			if strings.HasPrefix(selector.Sel.Name, "handle") {
				calls.delegates = append(calls.delegates, selector.Sel.Name)
			}
			return true
		}
		chain, ok := selector.X.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		recv, ok := chain.X.(*ast.Ident)
		if ok && recv.Name == "s" && chain.Sel.Name == "service" {
			calls.service = append(calls.service, selector.Sel.Name)
		}
		return true
	})
	calls.service = uniqueSorted(calls.service)
	calls.delegates = uniqueSorted(calls.delegates)
	return calls
}

func isServerReceiver(recv *ast.FieldList) bool {
	if recv == nil || len(recv.List) != 1 {
		return false
	}
	star, ok := recv.List[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	ident, ok := star.X.(*ast.Ident)
	return ok && ident.Name == "Server"
}

func serverPackageDir(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(file)
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for value := range set {
		out = append(out, value)
	}
	slices.Sort(out)
	return out
}

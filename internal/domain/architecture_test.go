package domain_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const modulePath = "github.com/davidleathers/clinic-security-monitor"

// domain packages may only depend on the packages listed for them
var allowedDomainDeps = map[string][]string{
	"errors":   {},
	"values":   {},
	"behavior": {"errors"},
	"breach":   {"errors", "values", "behavior"},
}

func TestDomainDependencyDirection(t *testing.T) {
	for pkg, allowed := range allowedDomainDeps {
		t.Run(pkg, func(t *testing.T) {
			for _, file := range sourceFiles(t, pkg) {
				for _, imp := range getFileImports(t, file) {
					other, ok := strings.CutPrefix(imp, modulePath+"/internal/domain/")
					if !ok {
						continue
					}
					if !contains(allowed, other) {
						t.Errorf("domain %s imports domain/%s in %s", pkg, other, file)
					}
				}
			}
		})
	}
}

func TestDomainNotDependOnInfrastructure(t *testing.T) {
	forbidden := []string{
		"database/sql",
		"net/http",
		"github.com/lib/pq",
		"github.com/jackc/pgx",
		"github.com/redis/go-redis",
		"github.com/nats-io/nats.go",
		"github.com/aws/aws-sdk-go-v2",
		"go.uber.org/zap",
		modulePath + "/internal/infrastructure",
		modulePath + "/internal/service",
		modulePath + "/internal/api",
	}

	for pkg := range allowedDomainDeps {
		for _, file := range sourceFiles(t, pkg) {
			for _, imp := range getFileImports(t, file) {
				for _, f := range forbidden {
					if strings.HasPrefix(imp, f) {
						t.Errorf("domain file %s imports infrastructure: %s", file, imp)
					}
				}
			}
		}
	}
}

func TestServicesNotDependOnTransport(t *testing.T) {
	forbidden := []string{"net/http", modulePath + "/internal/api"}

	err := filepath.WalkDir("../service", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isSource(path) {
			return err
		}
		for _, imp := range getFileImports(t, path) {
			for _, f := range forbidden {
				if strings.HasPrefix(imp, f) {
					t.Errorf("service file %s imports transport package %s", path, imp)
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestServiceMaxDependencies keeps service structs small: repositories,
// directories and outbound adapters count, loggers and clocks do not
func TestServiceMaxDependencies(t *testing.T) {
	const maxDeps = 5
	collaborator := []string{"Repository", "Directory", "Sender", "Archiver", "Scorer", "WorkerPool"}

	err := filepath.WalkDir("../service", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isSource(path) {
			return err
		}
		node := parseFile(t, path, parser.SkipObjectResolution)
		ast.Inspect(node, func(n ast.Node) bool {
			ts, ok := n.(*ast.TypeSpec)
			if !ok || ts.Name.Name != "service" {
				return true
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				return true
			}
			deps := 0
			for _, field := range st.Fields.List {
				typeStr := getTypeString(field.Type)
				for _, c := range collaborator {
					if strings.Contains(typeStr, c) {
						deps += max(len(field.Names), 1)
						break
					}
				}
			}
			if deps > maxDeps {
				t.Errorf("service in %s has %d dependencies (max allowed: %d)", path, deps, maxDeps)
			}
			return false
		})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestValueObjectsAreImmutable ensures value objects don't have setters
func TestValueObjectsAreImmutable(t *testing.T) {
	for _, file := range sourceFiles(t, "values") {
		node := parseFile(t, file, parser.SkipObjectResolution)
		for _, decl := range node.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv != nil && strings.HasPrefix(fn.Name.Name, "Set") {
				t.Errorf("value object in %s has setter method: %s", file, fn.Name.Name)
			}
		}
	}
}

func sourceFiles(t *testing.T, pkg string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(pkg, "*.go"))
	if err != nil {
		t.Fatal(err)
	}
	out := files[:0]
	for _, f := range files {
		if isSource(f) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		t.Fatalf("no source files in domain/%s", pkg)
	}
	return out
}

func isSource(path string) bool {
	return strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go")
}

func parseFile(t *testing.T, filename string, mode parser.Mode) *ast.File {
	t.Helper()
	content, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	node, err := parser.ParseFile(token.NewFileSet(), filename, content, mode)
	if err != nil {
		t.Fatalf("failed to parse %s: %v", filename, err)
	}
	return node
}

func getFileImports(t *testing.T, filename string) []string {
	t.Helper()
	node := parseFile(t, filename, parser.ImportsOnly)
	imports := make([]string, 0, len(node.Imports))
	for _, imp := range node.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, `"`))
	}
	return imports
}

func getTypeString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return getTypeString(t.X)
	case *ast.SelectorExpr:
		return getTypeString(t.X) + "." + t.Sel.Name
	default:
		return ""
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

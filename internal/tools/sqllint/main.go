// Command sqllint checks that every inline SQL constant starts with a
// "--sql <uuid>" marker and that no marker is reused. SQLRunner refuses
// queries without one, so this catches the mistake before runtime.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create|alter|drop)\b`)
	markerPattern     = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

type finding struct {
	Pos     token.Position
	Name    string
	Message string
}

func (f finding) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", f.Pos.Filename, f.Pos.Line, f.Message, f.Name)
}

type linter struct {
	fset     *token.FileSet
	seen     map[string]token.Position
	findings []finding
}

func newLinter() *linter {
	return &linter{fset: token.NewFileSet(), seen: make(map[string]token.Position)}
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"internal/sqlinline"}
	}
	l := newLinter()
	for _, target := range targets {
		if err := l.walk(target); err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(2)
		}
	}
	if l.report(os.Stderr) > 0 {
		os.Exit(1)
	}
}

func (l *linter) walk(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return l.lintSource(path, src)
	})
}

// lintSource inspects the string constants and variables of one file.
func (l *linter) lintSource(filename string, src []byte) error {
	file, err := parser.ParseFile(l.fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			text, err := unquote(lit.Value)
			if err != nil || !sqlKeywordPattern.MatchString(text) {
				continue
			}
			name := "_"
			if i < len(spec.Names) {
				name = spec.Names[i].Name
			}
			l.check(l.fset.Position(lit.Pos()), name, text)
		}
		return true
	})
	return nil
}

func (l *linter) check(pos token.Position, name, text string) {
	m := markerPattern.FindStringSubmatch(firstLine(text))
	if m == nil {
		l.findings = append(l.findings, finding{Pos: pos, Name: name, Message: "missing or invalid --sql <uuid> marker"})
		return
	}
	if prev, dup := l.seen[m[1]]; dup {
		l.findings = append(l.findings, finding{
			Pos:     pos,
			Name:    name,
			Message: fmt.Sprintf("marker %s already used at %s:%d", m[1], prev.Filename, prev.Line),
		})
		return
	}
	l.seen[m[1]] = pos
}

func (l *linter) report(w io.Writer) int {
	if len(l.findings) == 0 {
		return 0
	}
	sort.Slice(l.findings, func(i, j int) bool {
		a, b := l.findings[i].Pos, l.findings[j].Pos
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.Line < b.Line
	})
	fmt.Fprintln(w, "sqllint: SQL audit marker problems")
	for _, f := range l.findings {
		fmt.Fprintf(w, "  %s\n", f)
	}
	return len(l.findings)
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if strings.HasPrefix(v, "`") {
		return strings.Trim(v, "`"), nil
	}
	return strconv.Unquote(v)
}

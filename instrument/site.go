// Copyright © 2025 The DraftPad authors

package instrument

import (
	"go/ast"
	"go/token"
	"go/types"
	"sort"
	"strings"
)

// resolveSite maps a marker offset to a breakpoint site: the smallest
// enclosing statement of the code following the marker, the enclosing
// function, and the locals visible there. A marker outside any
// statement or outside any function yields ok=false (a silent skip,
// not an error, since users may place markers in non-method context).
func resolveSite(tokFile *token.File, f *ast.File, src string, markerOffset int) (*Site, bool) {
	stmtOffset, ok := nextCodeOffset(src, markerOffset)
	if !ok || stmtOffset >= tokFile.Size() {
		return nil, false
	}
	pos := tokFile.Pos(stmtOffset)

	path := pathEnclosing(f, pos)

	var stmt ast.Stmt
	for i := len(path) - 1; i >= 0; i-- {
		s, ok := path[i].(ast.Stmt)
		if !ok {
			continue
		}
		switch s.(type) {
		case *ast.BlockStmt, *ast.CaseClause, *ast.CommClause:
			// Containers are not targets: text that only parses as a
			// container (a closing brace, a case label) is not a
			// statement the marker can precede.
			continue
		}
		stmt = s
		break
	}
	// The resolved statement must start exactly where the code after
	// the marker starts; anything else means the marker does not sit
	// above a real statement.
	if stmt == nil || tokFile.Offset(stmt.Pos()) != stmtOffset {
		return nil, false
	}

	fn, fnIdx := enclosingFunc(path)
	if fn == nil {
		return nil, false
	}

	markerPos := tokFile.Pos(markerOffset)
	site := &Site{
		MarkerOffset: markerOffset,
		StmtOffset:   tokFile.Offset(stmt.Pos()),
		stmtEnd:      tokFile.Offset(stmt.End()),
		Locals:       collectLocals(path, fnIdx, f, markerPos),
	}
	site.Async, site.CtxName = asyncInfo(fn, f)
	return site, true
}

// nextCodeOffset returns the offset of the first non-whitespace byte
// after the marker's line.
func nextCodeOffset(src string, markerOffset int) (int, bool) {
	nl := strings.IndexByte(src[markerOffset:], '\n')
	if nl < 0 {
		return 0, false
	}
	for i := markerOffset + nl + 1; i < len(src); i++ {
		switch src[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return i, true
		}
	}
	return 0, false
}

// pathEnclosing returns the chain of nodes containing pos, from the
// file down to the innermost node.
func pathEnclosing(f *ast.File, pos token.Pos) []ast.Node {
	var path []ast.Node
	ast.Inspect(f, func(n ast.Node) bool {
		if n == nil {
			return false
		}
		if n.Pos() <= pos && pos < n.End() {
			path = append(path, n)
			return true
		}
		return false
	})
	return path
}

// enclosingFunc returns the innermost function declaration, lambda,
// or anonymous method on the path, and its path index.
func enclosingFunc(path []ast.Node) (ast.Node, int) {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i].(type) {
		case *ast.FuncDecl, *ast.FuncLit:
			return path[i], i
		}
	}
	return nil, -1
}

// asyncInfo reports whether the function is asynchronous: it declares
// a named context.Context parameter. The generated call then targets
// the async hook, threading that context.
func asyncInfo(fn ast.Node, f *ast.File) (bool, string) {
	var ft *ast.FuncType
	switch n := fn.(type) {
	case *ast.FuncDecl:
		ft = n.Type
	case *ast.FuncLit:
		ft = n.Type
	}
	if ft == nil || ft.Params == nil {
		return false, ""
	}
	ctxPkg := contextImportName(f)
	for _, field := range ft.Params.List {
		sel, ok := field.Type.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "Context" {
			continue
		}
		x, ok := sel.X.(*ast.Ident)
		if !ok || x.Name != ctxPkg {
			continue
		}
		for _, name := range field.Names {
			if name.Name != "_" {
				return true, name.Name
			}
		}
	}
	return false, ""
}

// contextImportName returns the local name the file imports the
// context package under.
func contextImportName(f *ast.File) string {
	for _, imp := range f.Imports {
		if imp.Path.Value != `"context"` {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name
		}
		return "context"
	}
	return "context"
}

// collectLocals gathers every locally-visible, non-blank variable
// whose declaration precedes markerPos. The walk covers the outermost
// enclosing function down to the instrumented statement, so variables
// captured by enclosing closures are included, while anything declared
// lexically after the breakpoint is filtered out.
//
// fnIdx is the path index of the innermost enclosing function; the
// walk starts at the outermost function on the path so that closure
// captures are visible.
func collectLocals(path []ast.Node, fnIdx int, f *ast.File, markerPos token.Pos) []Local {
	outer := fnIdx
	for i := 0; i <= fnIdx; i++ {
		if _, ok := path[i].(*ast.FuncDecl); ok {
			outer = i
			break
		}
		if _, ok := path[i].(*ast.FuncLit); ok {
			outer = i
			break
		}
	}

	byName := make(map[string]Local)
	add := func(name *ast.Ident, typ ast.Expr) {
		if name == nil || name.Name == "_" || name.Pos() >= markerPos {
			return
		}
		l := Local{Name: name.Name}
		if typ != nil {
			l.Type = types.ExprString(typ)
		}
		byName[name.Name] = l
	}

	for i := outer; i < len(path); i++ {
		switch n := path[i].(type) {
		case *ast.FuncDecl:
			if n.Recv != nil {
				for _, field := range n.Recv.List {
					for _, name := range field.Names {
						add(name, field.Type)
					}
				}
			}
			addFieldList(n.Type.Params, add)
			addFieldList(n.Type.Results, add)
		case *ast.FuncLit:
			addFieldList(n.Type.Params, add)
			addFieldList(n.Type.Results, add)
		case *ast.BlockStmt:
			for _, s := range n.List {
				if s.Pos() >= markerPos {
					break
				}
				addStmtDecls(s, add)
			}
		case *ast.CaseClause:
			for _, s := range n.Body {
				if s.Pos() >= markerPos {
					break
				}
				addStmtDecls(s, add)
			}
		case *ast.CommClause:
			if n.Comm != nil {
				addStmtDecls(n.Comm, add)
			}
			for _, s := range n.Body {
				if s.Pos() >= markerPos {
					break
				}
				addStmtDecls(s, add)
			}
		case *ast.IfStmt:
			if n.Init != nil {
				addStmtDecls(n.Init, add)
			}
		case *ast.ForStmt:
			if n.Init != nil {
				addStmtDecls(n.Init, add)
			}
		case *ast.SwitchStmt:
			if n.Init != nil {
				addStmtDecls(n.Init, add)
			}
		case *ast.TypeSwitchStmt:
			if n.Init != nil {
				addStmtDecls(n.Init, add)
			}
			if n.Assign != nil {
				addStmtDecls(n.Assign, add)
			}
		case *ast.RangeStmt:
			if n.Tok == token.DEFINE {
				if k, ok := n.Key.(*ast.Ident); ok {
					add(k, nil)
				}
				if v, ok := n.Value.(*ast.Ident); ok {
					add(v, nil)
				}
			}
		}
	}

	out := make([]Local, 0, len(byName))
	for _, l := range byName {
		out = append(out, l)
	}
	sortLocals(out)
	return out
}

func addFieldList(fl *ast.FieldList, add func(*ast.Ident, ast.Expr)) {
	if fl == nil {
		return
	}
	for _, field := range fl.List {
		for _, name := range field.Names {
			add(name, field.Type)
		}
	}
}

// addStmtDecls harvests variable declarations introduced by a single
// statement: var/const declarations and := assignments.
func addStmtDecls(s ast.Stmt, add func(*ast.Ident, ast.Expr)) {
	switch n := s.(type) {
	case *ast.DeclStmt:
		gd, ok := n.Decl.(*ast.GenDecl)
		if !ok {
			return
		}
		for _, spec := range gd.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, name := range vs.Names {
				add(name, vs.Type)
			}
		}
	case *ast.AssignStmt:
		if n.Tok != token.DEFINE {
			return
		}
		for _, lhs := range n.Lhs {
			if id, ok := lhs.(*ast.Ident); ok {
				add(id, nil)
			}
		}
	case *ast.LabeledStmt:
		addStmtDecls(n.Stmt, add)
	}
}

func sortLocals(locals []Local) {
	sort.Slice(locals, func(i, j int) bool { return locals[i].Name < locals[j].Name })
}

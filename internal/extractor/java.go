package extractor

import (
	"context"
	"path"
	"sort"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"javagent/internal/graph"
)

// builtinTypes are Java primitives and ubiquitous java.lang types that never
// become DEPENDS_ON targets.
var builtinTypes = map[string]bool{
	"boolean": true, "byte": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true, "void": true,
	"String": true, "Object": true, "Integer": true, "Long": true,
	"Double": true, "Float": true, "Short": true, "Byte": true,
	"Character": true, "Boolean": true, "Void": true, "Number": true,
	"Exception": true, "RuntimeException": true, "Throwable": true,
	"Error": true, "Iterable": true, "Comparable": true, "CharSequence": true,
	"StringBuilder": true, "Math": true, "System": true, "Thread": true,
}

// Extract parses one Java source unit and returns its entities and claims.
// It is a pure function of its inputs: no shared state, trivially safe to
// call from many goroutines at once.
func Extract(unitID string, source []byte) (*Result, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, &ParseError{UnitID: unitID, Detail: err.Error()}
	}

	root := tree.RootNode()
	if root.HasError() {
		line, col := firstErrorLocation(root)
		return nil, &ParseError{UnitID: unitID, Line: line, Column: col, Detail: "malformed Java source"}
	}

	ex := &extraction{
		unitID:  unitID,
		source:  source,
		imports: map[string]string{},
		result:  &Result{UnitID: unitID},
	}
	ex.run(root)
	return ex.result, nil
}

// firstErrorLocation finds the shallowest ERROR or MISSING node for the
// diagnostic hint. Rows and columns are reported 1-based.
func firstErrorLocation(node *sitter.Node) (int, int) {
	if node.Type() == "ERROR" || node.IsMissing() {
		return int(node.StartPoint().Row) + 1, int(node.StartPoint().Column) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsMissing() {
			return firstErrorLocation(child)
		}
	}
	return int(node.StartPoint().Row) + 1, int(node.StartPoint().Column) + 1
}

type extraction struct {
	unitID  string
	source  []byte
	pkg     string
	imports map[string]string // simple name -> fully qualified
	result  *Result
}

func (ex *extraction) run(root *sitter.Node) {
	ex.scanTopLevel(root)
	if ex.pkg == "" {
		ex.pkg = packageFromPath(ex.unitID)
	}
	ex.result.Package = ex.pkg

	ex.addEntity(graph.Entity{
		ID:            graph.EntityID(graph.KindPackage, ex.pkg),
		Kind:          graph.KindPackage,
		Name:          ex.pkg,
		QualifiedName: ex.pkg,
	})

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if isTypeDeclaration(node.Type()) {
			ex.extractTypeDecl(node, "")
		}
	}
}

func (ex *extraction) scanTopLevel(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "package_declaration":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				child := node.NamedChild(j)
				if t := child.Type(); t == "scoped_identifier" || t == "identifier" {
					ex.pkg = child.Content(ex.source)
				}
			}
		case "import_declaration":
			ex.recordImport(node)
		}
	}
}

func (ex *extraction) recordImport(node *sitter.Node) {
	var full string
	wildcard := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "scoped_identifier", "identifier":
			full = child.Content(ex.source)
		case "asterisk":
			wildcard = true
		}
	}
	if full == "" || wildcard {
		// Wildcard imports cannot be resolved per-name; bare references
		// stay package-qualified and resolve through the store instead.
		return
	}
	simple := full
	if i := strings.LastIndex(full, "."); i >= 0 {
		simple = full[i+1:]
	}
	ex.imports[simple] = full
}

func isTypeDeclaration(nodeType string) bool {
	switch nodeType {
	case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
		return true
	}
	return false
}

// extractTypeDecl turns one type declaration (possibly nested) into a Type
// entity plus its member entities and relationship claims. ownerQName is
// empty for top-level declarations.
func (ex *extraction) extractTypeDecl(node *sitter.Node, ownerQName string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(ex.source)

	var kind graph.Kind
	switch node.Type() {
	case "interface_declaration":
		kind = graph.KindInterface
	case "enum_declaration":
		kind = graph.KindEnum
	default:
		kind = graph.KindClass
	}

	qname := ex.pkg + "." + name
	declTarget := ex.pkg
	if ownerQName != "" {
		qname = ownerQName + "." + name
		declTarget = ownerQName
	}

	modifiers, annotations := ex.modifiersAndAnnotations(node)
	entity := graph.Entity{
		ID:            graph.EntityID(kind, qname),
		Kind:          kind,
		Name:          name,
		QualifiedName: qname,
		Package:       ex.pkg,
		Modifiers:     modifiers,
		Annotations:   annotations,
		Doc:           ex.docComment(node),
		Signature:     ex.typeSignature(node, name, modifiers),
	}
	ex.addEntity(entity)
	ex.addClaim(graph.Claim{From: entity.ID, Target: declTarget, Kind: graph.RelDeclaredIn})

	deps := map[string]bool{}

	// extends: single superclass for classes, a list for interfaces.
	if super := node.ChildByFieldName("superclass"); super != nil {
		for _, t := range ex.typeNamesIn(super) {
			ex.addClaim(graph.Claim{From: entity.ID, Target: t, Kind: graph.RelExtends})
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "extends_interfaces":
			for _, t := range ex.typeNamesIn(child) {
				ex.addClaim(graph.Claim{From: entity.ID, Target: t, Kind: graph.RelExtends})
			}
		case "super_interfaces":
			for _, t := range ex.typeNamesIn(child) {
				ex.addClaim(graph.Claim{From: entity.ID, Target: t, Kind: graph.RelImplements})
			}
		}
	}

	if body := ex.typeBody(node); body != nil {
		ex.extractMembers(body, entity, qname, deps)
	}

	for _, dep := range sortedKeys(deps) {
		ex.addClaim(graph.Claim{From: entity.ID, Target: dep, Kind: graph.RelDependsOn})
	}
}

func (ex *extraction) typeBody(node *sitter.Node) *sitter.Node {
	if body := node.ChildByFieldName("body"); body != nil {
		return body
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "class_body", "interface_body", "enum_body":
			return child
		}
	}
	return nil
}

func (ex *extraction) extractMembers(body *sitter.Node, owner graph.Entity, ownerQName string, deps map[string]bool) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_declaration", "constructor_declaration":
			ex.extractMethod(member, owner, ownerQName, deps)
		case "field_declaration", "constant_declaration":
			ex.extractField(member, owner, ownerQName, deps)
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			ex.extractTypeDecl(member, ownerQName)
		case "enum_body_declarations":
			ex.extractMembers(member, owner, ownerQName, deps)
		}
	}
}

func (ex *extraction) extractMethod(node *sitter.Node, owner graph.Entity, ownerQName string, deps map[string]bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(ex.source)

	returnType := "void"
	if node.Type() == "constructor_declaration" {
		returnType = ""
	} else if t := node.ChildByFieldName("type"); t != nil {
		returnType = t.Content(ex.source)
	}

	var paramTypes []string
	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() != "formal_parameter" && p.Type() != "spread_parameter" {
				continue
			}
			ptype := ""
			if t := p.ChildByFieldName("type"); t != nil {
				ptype = t.Content(ex.source)
			} else if p.NamedChildCount() > 0 {
				ptype = p.NamedChild(0).Content(ex.source)
			}
			paramTypes = append(paramTypes, ptype)
			ex.addTypeDeps(ptype, deps)
		}
	}
	ex.addTypeDeps(returnType, deps)

	// Overloads disambiguate through the parameter-type signature.
	qname := ownerQName + "#" + name + "(" + strings.Join(paramTypes, ",") + ")"
	modifiers, annotations := ex.modifiersAndAnnotations(node)

	sig := strings.TrimSpace(strings.Join(append(append([]string{}, modifiers...),
		strings.TrimSpace(returnType+" "+name+"("+strings.Join(paramTypes, ", ")+")")), " "))

	entity := graph.Entity{
		ID:            graph.EntityID(graph.KindMethod, qname),
		Kind:          graph.KindMethod,
		Name:          name,
		QualifiedName: qname,
		Package:       ex.pkg,
		Modifiers:     modifiers,
		Annotations:   annotations,
		ReturnType:    returnType,
		Signature:     sig,
		Doc:           ex.docComment(node),
	}
	ex.addEntity(entity)
	ex.addClaim(graph.Claim{From: entity.ID, Target: ownerQName, Kind: graph.RelDeclaredIn})
	ex.addClaim(graph.Claim{From: owner.ID, Target: qname, Kind: graph.RelHasMethod})
}

func (ex *extraction) extractField(node *sitter.Node, owner graph.Entity, ownerQName string, deps map[string]bool) {
	fieldType := ""
	if t := node.ChildByFieldName("type"); t != nil {
		fieldType = t.Content(ex.source)
	}
	ex.addTypeDeps(fieldType, deps)
	modifiers, annotations := ex.modifiersAndAnnotations(node)

	// One declaration can introduce several fields: int a, b;
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := nameNode.Content(ex.source)
		qname := ownerQName + "#" + name

		entity := graph.Entity{
			ID:            graph.EntityID(graph.KindField, qname),
			Kind:          graph.KindField,
			Name:          name,
			QualifiedName: qname,
			Package:       ex.pkg,
			Modifiers:     modifiers,
			Annotations:   annotations,
			Signature:     strings.TrimSpace(fieldType + " " + name),
			ReturnType:    fieldType,
		}
		ex.addEntity(entity)
		ex.addClaim(graph.Claim{From: entity.ID, Target: ownerQName, Kind: graph.RelDeclaredIn})
		ex.addClaim(graph.Claim{From: owner.ID, Target: qname, Kind: graph.RelHasField})
	}
}

// addTypeDeps records DEPENDS_ON targets for a declared type reference,
// unwrapping arrays, varargs and generic arguments.
func (ex *extraction) addTypeDeps(raw string, deps map[string]bool) {
	for _, name := range referencedTypeNames(raw) {
		if target := ex.qualify(name); target != "" {
			deps[target] = true
		}
	}
}

// qualify maps a referenced type name to the best-known qualified form:
// dotted names pass through, imported names expand, everything else is
// assumed package-local (Java's resolution order before java.lang).
func (ex *extraction) qualify(name string) string {
	if name == "" || builtinTypes[name] {
		return ""
	}
	if strings.Contains(name, ".") {
		return name
	}
	if fq, ok := ex.imports[name]; ok {
		return fq
	}
	return ex.pkg + "." + name
}

// typeNamesIn collects qualified type references under a supertype clause.
func (ex *extraction) typeNamesIn(node *sitter.Node) []string {
	var names []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "type_identifier", "scoped_type_identifier":
			if q := ex.qualifySuper(n.Content(ex.source)); q != "" {
				names = append(names, q)
			}
			return
		case "generic_type":
			// The base name is the supertype; its arguments are plain deps.
			if n.NamedChildCount() > 0 {
				walk(n.NamedChild(0))
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return names
}

// qualifySuper qualifies a supertype reference. Unlike plain dependencies,
// builtin filtering does not apply: extending Exception is a real edge.
func (ex *extraction) qualifySuper(name string) string {
	if name == "" {
		return ""
	}
	if strings.Contains(name, ".") {
		return name
	}
	if fq, ok := ex.imports[name]; ok {
		return fq
	}
	if builtinTypes[name] {
		return "java.lang." + name
	}
	return ex.pkg + "." + name
}

func (ex *extraction) modifiersAndAnnotations(node *sitter.Node) ([]string, []graph.AnnotationUse) {
	var mods []string
	var annos []graph.AnnotationUse
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			m := child.Child(j)
			switch m.Type() {
			case "marker_annotation", "annotation":
				annos = append(annos, ex.annotationUse(m))
			default:
				if text := m.Content(ex.source); text != "" {
					mods = append(mods, text)
				}
			}
		}
	}
	return mods, annos
}

func (ex *extraction) annotationUse(node *sitter.Node) graph.AnnotationUse {
	use := graph.AnnotationUse{}
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		use.Name = nameNode.Content(ex.source)
	}
	if args := node.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			use.Arguments = append(use.Arguments, args.NamedChild(i).Content(ex.source))
		}
	}
	return use
}

func (ex *extraction) typeSignature(node *sitter.Node, name string, modifiers []string) string {
	var sb strings.Builder
	if len(modifiers) > 0 {
		sb.WriteString(strings.Join(modifiers, " "))
		sb.WriteString(" ")
	}
	switch node.Type() {
	case "interface_declaration":
		sb.WriteString("interface ")
	case "enum_declaration":
		sb.WriteString("enum ")
	case "record_declaration":
		sb.WriteString("record ")
	default:
		sb.WriteString("class ")
	}
	sb.WriteString(name)
	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		sb.WriteString(tp.Content(ex.source))
	}
	return sb.String()
}

// docComment returns the block comment immediately preceding a declaration.
func (ex *extraction) docComment(node *sitter.Node) string {
	prev := node.PrevSibling()
	for prev != nil {
		switch prev.Type() {
		case "block_comment":
			return prev.Content(ex.source)
		case "line_comment", "marker_annotation", "annotation", "modifiers":
			prev = prev.PrevSibling()
		default:
			return ""
		}
	}
	return ""
}

func (ex *extraction) addEntity(e graph.Entity) {
	ex.result.Entities = append(ex.result.Entities, e)
}

func (ex *extraction) addClaim(c graph.Claim) {
	ex.result.Claims = append(ex.result.Claims, c)
}

// referencedTypeNames splits a raw declared type into the type names it
// mentions: "Map<String, Foo>[]" -> Map, String, Foo. Splitting happens
// on non-identifier runes, so wildcard-bound keywords only drop out as
// whole tokens and never truncate names containing them.
func referencedTypeNames(raw string) []string {
	var names []string
	seen := map[string]bool{}
	for _, tok := range strings.FieldsFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_'
	}) {
		tok = strings.Trim(tok, ".")
		if tok == "" || tok == "extends" || tok == "super" || seen[tok] {
			continue
		}
		seen[tok] = true
		names = append(names, tok)
	}
	return names
}

// packageFromPath derives a fallback package from the unit's logical path
// when the source declares none.
func packageFromPath(unitID string) string {
	dir := path.Dir(strings.ReplaceAll(unitID, "\\", "/"))
	if dir == "." || dir == "/" || dir == "" {
		return "default"
	}
	dir = strings.Trim(dir, "/")
	return strings.ReplaceAll(dir, "/", ".")
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Kind classifies a graph entity.
type Kind string

const (
	KindPackage    Kind = "package"
	KindClass      Kind = "class"
	KindInterface  Kind = "interface"
	KindEnum       Kind = "enum"
	KindMethod     Kind = "method"
	KindField      Kind = "field"
	KindUnresolved Kind = "unresolved"
)

// IsType reports whether the kind is a type declaration (class, interface or enum).
func (k Kind) IsType() bool {
	return k == KindClass || k == KindInterface || k == KindEnum
}

// RelationKind is the type of a directed edge between two entities.
type RelationKind string

const (
	RelDeclaredIn RelationKind = "DECLARED_IN"
	RelExtends    RelationKind = "EXTENDS"
	RelImplements RelationKind = "IMPLEMENTS"
	RelDependsOn  RelationKind = "DEPENDS_ON"
	RelHasMethod  RelationKind = "HAS_METHOD"
	RelHasField   RelationKind = "HAS_FIELD"
)

// AnnotationUse records an annotation attached to an entity. Annotation uses
// are carried on the entity itself rather than modeled as separate nodes.
type AnnotationUse struct {
	Name      string   `json:"name"`
	Arguments []string `json:"arguments,omitempty"`
}

// Entity is a node in the knowledge graph: a package, type, method, field or
// an unresolved placeholder standing in for a name not yet indexed.
type Entity struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	Name          string          `json:"name"`
	QualifiedName string          `json:"qualified_name"`
	Package       string          `json:"package,omitempty"`
	Modifiers     []string        `json:"modifiers,omitempty"`
	Signature     string          `json:"signature,omitempty"`
	ReturnType    string          `json:"return_type,omitempty"`
	Doc           string          `json:"doc,omitempty"`
	Annotations   []AnnotationUse `json:"annotations,omitempty"`
}

// Edge is a materialized directed relationship between two entity IDs.
type Edge struct {
	From string       `json:"from"`
	To   string       `json:"to"`
	Kind RelationKind `json:"kind"`
}

// Claim is a relationship as declared by a source unit: the source is a known
// entity ID, the target is a name that may or may not resolve to a known
// entity yet. The store materializes claims into edges, pointing them at a
// placeholder entity while the target is unknown.
type Claim struct {
	From   string       `json:"from"`
	Target string       `json:"target"`
	Kind   RelationKind `json:"kind"`
}

// Direction selects edge orientation for neighbor queries.
type Direction int

const (
	DirOut Direction = iota
	DirIn
	DirBoth
)

// EntityID derives the stable identifier for an entity from its kind and
// fully-qualified name. Identical declarations yield identical IDs no matter
// when or in which unit they are indexed.
func EntityID(kind Kind, qualifiedName string) string {
	sum := sha256.Sum256([]byte(string(kind) + "|" + qualifiedName))
	return fmt.Sprintf("%s:%s:%s", kind, qualifiedName, hex.EncodeToString(sum[:6]))
}

// PlaceholderID derives the identifier for the unresolved placeholder
// standing in for a referenced name.
func PlaceholderID(name string) string {
	return EntityID(KindUnresolved, name)
}

// SimpleName returns the last segment of a dotted qualified name, with any
// member suffix ("Owner#member") handled first.
func SimpleName(qualifiedName string) string {
	name := qualifiedName
	if i := strings.LastIndex(name, "#"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Stats summarises graph contents, mirroring what the status command reports.
type Stats struct {
	Packages   int `json:"packages"`
	Classes    int `json:"classes"`
	Interfaces int `json:"interfaces"`
	Enums      int `json:"enums"`
	Methods    int `json:"methods"`
	Fields     int `json:"fields"`
	Unresolved int `json:"unresolved"`
	Edges      int `json:"edges"`
	Units      int `json:"units"`
}

// Entities is the total declared entity count, placeholders excluded.
func (s Stats) Entities() int {
	return s.Packages + s.Classes + s.Interfaces + s.Enums + s.Methods + s.Fields
}

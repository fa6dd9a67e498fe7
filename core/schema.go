// Package core provides the building blocks of the smartrecord engine.
// This file defines the schema system, which maps Go structs to database
// tables, describes columns and relations, and supports schema building.
package core

import (
	"reflect"
	"time"
)

// ColumnKind classifies a column's Go type into the coarse categories
// the filter compiler validates operands against.
type ColumnKind int

const (
	KindInvalid ColumnKind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindTime
	KindBytes
)

var timeType = reflect.TypeOf(time.Time{})

// columnKindOf derives the ColumnKind for a Go type, unwrapping one
// level of pointer (nullable columns are declared as pointer fields).
func columnKindOf(t reflect.Type) ColumnKind {
	if t == nil {
		return KindInvalid
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return KindTime
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindUint
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.String:
		return KindString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes
		}
	}
	return KindInvalid
}

// Column represents a struct field mapped to a database column.
//
// It contains metadata such as the Go field name, database column name,
// type information, and constraints (primary key, unique, required).
type Column struct {
	StructFieldName    string       // Name of the field in the Go struct
	DatabaseColumnName string       // Name of the column in the database
	Type               reflect.Type // Go type of the field
	Kind               ColumnKind   // Coarse type category used for operand checks
	Nullable           bool         // Whether the field is a pointer (nullable column)
	IsPrimaryKey       bool         // Whether this column is the primary key
	IsUnique           bool         // Whether this column is unique
	IsRequired         bool         // Whether this column is required
	DefaultValue       string       // Default value (if any)
	MemoryOffset       uintptr      // Memory offset within the struct
}

// FieldOption is a function used to configure a Column.
type FieldOption func(*Column)

// PrimaryKey marks the column as the primary key.
func PrimaryKey() FieldOption {
	return func(c *Column) { c.IsPrimaryKey = true }
}

// Unique marks the column as unique.
func Unique() FieldOption {
	return func(c *Column) { c.IsUnique = true }
}

// Required marks the column as required (non-nullable).
func Required() FieldOption {
	return func(c *Column) { c.IsRequired = true }
}

// Default sets a default value for the column.
func Default(value string) FieldOption {
	return func(c *Column) { c.DefaultValue = value }
}

// RelationKind defines the type of relationship between models.
type RelationKind int

const (
	OneToOne   RelationKind = 1
	OneToMany  RelationKind = 2
	ManyToMany RelationKind = 3
)

// ToMany reports whether the relation yields a collection.
func (k RelationKind) ToMany() bool {
	return k == OneToMany || k == ManyToMany
}

// Relation describes a directed edge in the schema graph.
//
// The target model is referenced by its registered name rather than by
// pointer, so mutually referential and self-referential schemas form no
// ownership cycles; edges are resolved through the Registry arena.
type Relation struct {
	FieldName      string       // Struct field on the local model that receives loaded values
	Kind           RelationKind // OneToOne, OneToMany or ManyToMany
	Target         string       // Registered name of the related model
	LocalKey       string       // Struct field name of the key on the local model
	ForeignKey     string       // Struct field name of the key on the target model
	JoinTable      string       // Join table name (many-to-many only)
	JoinLocalKey   string       // Join table column referencing the local key (many-to-many)
	JoinForeignKey string       // Join table column referencing the foreign key (many-to-many)
}

// ModelMeta contains the type-erased schema information required at
// runtime: the table name, columns, relations, and the struct type used
// to materialize instances. One ModelMeta exists per registered model
// for the process lifetime.
type ModelMeta struct {
	Name      string
	Database  string
	Table     string
	Type      reflect.Type
	Columns   []*Column
	Relations []*Relation

	columnsByName   map[string]*Column
	relationsByName map[string]*Relation
	fieldsByOffset  map[uintptr]*Column
	primaryKey      *Column

	preHookList  map[PreHook][]func(any) error
	postHookList map[PostHook][]func(any) error
}

// Column finds a declared column by database column name or Go struct
// field name. Lookup is case-insensitive. Returns nil when not declared.
func (m *ModelMeta) Column(name string) *Column {
	return m.columnsByName[foldName(name)]
}

// Relation finds a declared relation by struct field name.
// Lookup is case-insensitive. Returns nil when not declared.
func (m *ModelMeta) Relation(name string) *Relation {
	return m.relationsByName[foldName(name)]
}

// PrimaryKey returns the column marked as primary key, or nil.
func (m *ModelMeta) PrimaryKey() *Column { return m.primaryKey }

// SchemaMeta extends ModelMeta with hooks typed to the model struct.
type SchemaMeta[T any] struct {
	ModelMeta
}

// RegisterPreHook registers a pre-operation hook for the schema.
// The hook runs before the operation inside the same call; returning an
// error aborts the operation.
func (s *SchemaMeta[T]) RegisterPreHook(hook PreHook, fn func(*T) error) {
	s.preHookList[hook] = append(s.preHookList[hook], func(doc any) error {
		return fn(doc.(*T))
	})
}

// RegisterPostHook registers a post-operation hook for the schema.
func (s *SchemaMeta[T]) RegisterPostHook(hook PostHook, fn func(*T) error) {
	s.postHookList[hook] = append(s.postHookList[hook], func(doc any) error {
		return fn(doc.(*T))
	})
}

// RelationSpec declares a relation on the local model L. The loaded
// field is selected type-safely; keys are struct field names, validated
// against both models when the registry is frozen.
type RelationSpec[L any] struct {
	Kind           RelationKind
	Field          any    // func(*L) *F selecting the field that receives loaded values
	Target         string // registered name of the related model
	LocalKey       string // struct field name on L
	ForeignKey     string // struct field name on the target model
	JoinTable      string // many-to-many only
	JoinLocalKey   string // join table column referencing LocalKey values
	JoinForeignKey string // join table column referencing ForeignKey values
}

// AddRelation resolves the field selector into a field name and records
// the relation on the schema.
//
// Example:
//
//	core.AddRelation(userSchema, core.RelationSpec[User]{
//		Kind:       core.OneToMany,
//		Field:      func(u *User) any { return &u.Posts },
//		Target:     "Post",
//		LocalKey:   "ID",
//		ForeignKey: "UserID",
//	})
func AddRelation[L any](schema *SchemaMeta[L], spec RelationSpec[L]) {
	relation := &Relation{
		FieldName:      fieldNameFromSelectorFor[L](spec.Field),
		Kind:           spec.Kind,
		Target:         spec.Target,
		LocalKey:       spec.LocalKey,
		ForeignKey:     spec.ForeignKey,
		JoinTable:      spec.JoinTable,
		JoinLocalKey:   spec.JoinLocalKey,
		JoinForeignKey: spec.JoinForeignKey,
	}
	schema.Relations = append(schema.Relations, relation)
	schema.relationsByName[foldName(relation.FieldName)] = relation
}

// SchemaBuilder is used to construct a schema definition from a Go struct.
//
// It collects column metadata using reflection and applies customization
// through SchemaOptions.
type SchemaBuilder[T any] struct {
	database       string
	table          string
	tagKey         string
	structType     reflect.Type
	columns        []*Column
	fieldsByOffset map[uintptr]*Column
}

// SchemaOption represents a function that customizes the schema builder.
type SchemaOption[T any] func(*SchemaBuilder[T])

// TagKey sets the struct tag key to use for database column mapping.
func TagKey[T any](key string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.tagKey = key }
}

// Table sets the database table name for the schema.
func Table[T any](name string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.table = name }
}

// Database sets the database name for the schema.
func Database[T any](name string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.database = name }
}

// OverrideField allows modifying the metadata of a specific column
// (e.g., making it required, unique, primary key).
func OverrideField[T any, F any](selector func(*T) *F, opts ...FieldOption) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) {
		// No-op on the first option pass, before columns exist.
		if len(schemaBuilder.columns) == 0 {
			return
		}
		offset := offsetOf(selector)
		column, ok := schemaBuilder.fieldsByOffset[offset]
		if !ok {
			panic("core: OverrideField selector does not address a mapped field")
		}
		for _, opt := range opts {
			opt(column)
		}
	}
}

// Schema builds a SchemaMeta[T] by reflecting on struct fields and
// applying the given SchemaOptions.
//
// Fields tagged `db:"-"` are skipped; relation fields must carry that
// tag and be declared through AddRelation instead. A field named "ID"
// becomes the primary key unless OverrideField marks another one.
func Schema[T any](options ...SchemaOption[T]) *SchemaMeta[T] {
	var zero T
	structType := reflect.TypeOf(zero)
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}

	builder := &SchemaBuilder[T]{
		structType:     structType,
		fieldsByOffset: make(map[uintptr]*Column),
	}

	// Apply options before building columns (Table/Database/TagKey)
	for _, option := range options {
		option(builder)
	}

	for _, sf := range reflect.VisibleFields(structType) {
		tagKey := builder.tagKey
		if tagKey == "" {
			tagKey = "db"
		}
		dbName := sf.Tag.Get(tagKey)
		if dbName == "-" {
			continue
		}
		if dbName == "" {
			dbName = sf.Name
		}

		column := &Column{
			StructFieldName:    sf.Name,
			DatabaseColumnName: dbName,
			Type:               sf.Type,
			Kind:               columnKindOf(sf.Type),
			Nullable:           sf.Type.Kind() == reflect.Pointer,
			MemoryOffset:       sf.Offset,
		}
		builder.columns = append(builder.columns, column)
		builder.fieldsByOffset[sf.Offset] = column
	}

	// Re-apply options so that OverrideField can work after columns exist
	for _, option := range options {
		option(builder)
	}

	meta := &SchemaMeta[T]{
		ModelMeta: ModelMeta{
			Name:            structType.Name(),
			Database:        builder.database,
			Table:           builder.table,
			Type:            structType,
			Columns:         builder.columns,
			columnsByName:   make(map[string]*Column),
			relationsByName: make(map[string]*Relation),
			fieldsByOffset:  builder.fieldsByOffset,
			preHookList:     make(map[PreHook][]func(any) error),
			postHookList:    make(map[PostHook][]func(any) error),
		},
	}

	for _, column := range builder.columns {
		meta.columnsByName[foldName(column.DatabaseColumnName)] = column
		meta.columnsByName[foldName(column.StructFieldName)] = column
		if column.IsPrimaryKey {
			meta.primaryKey = column
		}
	}
	if meta.primaryKey == nil {
		if column := meta.Column("ID"); column != nil {
			column.IsPrimaryKey = true
			meta.primaryKey = column
		}
	}

	return meta
}

package domain

// FieldType is the coercion target for a schema field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeInteger FieldType = "integer"
	FieldTypeEnum    FieldType = "enum"
	FieldTypeURL     FieldType = "url"
)

// FieldSpec describes one target schema field: how it is validated and
// which source column names the heuristic matcher should recognize.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
	Unique   bool
	Pattern  string
	Enum     []string
	Min      *float64
	Default  string
	WarnOnly bool
	Aliases  []string
}

func floatPtr(v float64) *float64 { return &v }

// ProductSchema is the target schema for product imports. Validation rule
// order and the uniqueness/business-rule semantics are driven by these
// specs, not hard-coded per field.
func ProductSchema() []FieldSpec {
	return []FieldSpec{
		{
			Name:     "sku",
			Type:     FieldTypeString,
			Required: true,
			Unique:   true,
			Pattern:  `^[A-Za-z0-9_-]+$`,
			Aliases:  []string{"sku", "item number", "item no", "product code", "article number"},
		},
		{
			Name:     "name",
			Type:     FieldTypeString,
			Required: true,
			Aliases:  []string{"name", "product name", "title", "product title"},
		},
		{
			Name:    "description",
			Type:    FieldTypeString,
			Aliases: []string{"description", "details", "long description"},
		},
		{
			Name:     "price",
			Type:     FieldTypeNumber,
			Required: true,
			Min:      floatPtr(0.01),
			Aliases:  []string{"price", "list price", "unit price", "amount", "cost"},
		},
		{
			Name:    "sale_price",
			Type:    FieldTypeNumber,
			Min:     floatPtr(0),
			Aliases: []string{"sale price", "discount price", "special price", "promo price"},
		},
		{
			Name:    "quantity",
			Type:    FieldTypeInteger,
			Min:     floatPtr(0),
			Aliases: []string{"quantity", "qty", "stock", "inventory", "on hand"},
		},
		{
			Name:    "category",
			Type:    FieldTypeString,
			Aliases: []string{"category", "product category", "department"},
		},
		{
			Name:    "brand",
			Type:    FieldTypeString,
			Aliases: []string{"brand", "manufacturer", "vendor", "maker"},
		},
		{
			Name:    "status",
			Type:    FieldTypeEnum,
			Enum:    []string{"active", "draft", "archived"},
			Default: "draft",
			Aliases: []string{"status", "state", "visibility"},
		},
		{
			Name:    "weight",
			Type:    FieldTypeNumber,
			Min:     floatPtr(0),
			Aliases: []string{"weight", "shipping weight", "weight kg"},
		},
		{
			Name:     "image_url",
			Type:     FieldTypeURL,
			WarnOnly: true,
			Aliases:  []string{"image url", "image", "picture", "photo url", "thumbnail"},
		},
	}
}

// FieldSpecByName indexes the schema by field name.
func FieldSpecByName(schema []FieldSpec) map[string]FieldSpec {
	out := make(map[string]FieldSpec, len(schema))
	for _, spec := range schema {
		out[spec.Name] = spec
	}
	return out
}

package models

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity  string                 `json:"entity"`
	Version string                 `json:"version"`
	Columns []ImportTemplateColumn `json:"columns"`
}

// ProductImportTemplate returns the template for the product spreadsheet.
// Only the title is required; every other column degrades to a default.
func ProductImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "product",
		Version: "1.0",
		Columns: []ImportTemplateColumn{
			{Name: "Product Title", Description: "Product title", Required: true, Type: "string", Example: "Red Mug"},
			{Name: "SKU", Description: "Variant SKU; Shopify auto-assigns one when empty", Required: false, Type: "string", Example: "MUG01"},
			{Name: "Description", Description: "Product description, rendered as rich text", Required: false, Type: "string", Example: "A ceramic mug"},
			{Name: "Collections", Description: "Reserved, not applied during import", Required: false, Type: "string", Example: "Kitchen"},
			{Name: "Tags", Description: "Comma-separated tags", Required: false, Type: "string", Example: "mug, ceramic"},
			{Name: "Page Title", Description: "SEO title, truncated to 70 characters", Required: false, Type: "string", Example: "Red Mug | Shop"},
			{Name: "Meta Description", Description: "SEO description, truncated to 320 characters", Required: false, Type: "string", Example: "Hand-glazed red ceramic mug."},
			{Name: "URL Handle", Description: "Storefront handle; derived from the title when empty", Required: false, Type: "string", Example: "red-mug"},
		},
	}
}

package services

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"shopify-import-service/internal/clients"
	"shopify-import-service/internal/models"
)

// Spreadsheet column headers. Lookup is case-insensitive and ignores
// surrounding whitespace.
const (
	ColumnTitle           = "Product Title"
	ColumnSKU             = "SKU"
	ColumnDescription     = "Description"
	ColumnCollections     = "Collections"
	ColumnTags            = "Tags"
	ColumnPageTitle       = "Page Title"
	ColumnMetaDescription = "Meta Description"
	ColumnURLHandle       = "URL Handle"
)

// rowIndexKey carries the original spreadsheet row number through the
// parsed record, set by the upload handler.
const rowIndexKey = "_row"

// ProductRow is one parsed spreadsheet row
type ProductRow struct {
	RowIndex       int
	Title          string
	SKU            string
	BodyHTML       string
	Collections    string
	Tags           []string
	SEOTitle       string
	SEODescription string
	Handle         string
	ExplicitHandle bool
}

// ParseRow extracts a ProductRow from a raw record. The handle falls
// back to a slug of the title when the URL Handle column is empty.
func ParseRow(record map[string]string) *ProductRow {
	row := &ProductRow{
		Title:          fieldValue(record, ColumnTitle),
		SKU:            fieldValue(record, ColumnSKU),
		BodyHTML:       fieldValue(record, ColumnDescription),
		Collections:    fieldValue(record, ColumnCollections),
		Tags:           NormalizeTags(fieldValue(record, ColumnTags)),
		SEOTitle:       fieldValue(record, ColumnPageTitle),
		SEODescription: fieldValue(record, ColumnMetaDescription),
	}

	if idx, err := strconv.Atoi(record[rowIndexKey]); err == nil {
		row.RowIndex = idx
	}

	if handle := fieldValue(record, ColumnURLHandle); handle != "" {
		row.Handle = handle
		row.ExplicitHandle = true
	} else if row.Title != "" {
		row.Handle = Slugify(row.Title)
	}

	return row
}

// Valid reports whether the row can become a product. Title is the
// only required field; everything else has a fallback.
func (r *ProductRow) Valid() bool {
	return r.Title != ""
}

// MatchKeys returns the non-empty keys used for image filename
// matching, SKU first then handle.
func (r *ProductRow) MatchKeys() []string {
	var keys []string
	if r.SKU != "" {
		keys = append(keys, r.SKU)
	}
	if r.Handle != "" {
		keys = append(keys, r.Handle)
	}
	return keys
}

// BuildPayload assembles the product-creation request for a row using
// the run-wide defaults. The product always carries exactly one
// variant priced at the run default.
func (r *ProductRow) BuildPayload(defaults *models.RunDefaults) *clients.ProductPayload {
	var sku *string
	if r.SKU != "" {
		sku = &r.SKU
	}

	payload := &clients.ProductPayload{
		Title:       r.Title,
		BodyHTML:    r.BodyHTML,
		Vendor:      defaults.Vendor,
		ProductType: defaults.ProductType,
		Status:      defaults.Status,
		Tags:        strings.Join(r.Tags, ", "),
		Variants: []clients.VariantPayload{{
			SKU:                 sku,
			Price:               strconv.FormatFloat(defaults.Price, 'f', 2, 64),
			InventoryPolicy:     defaults.InventoryPolicy,
			InventoryManagement: "shopify",
			InventoryQuantity:   defaults.InventoryQuantity,
			RequiresShipping:    true,
			Taxable:             true,
		}},
		Handle: r.Handle,
	}
	return payload
}

// NormalizeTags splits a raw comma-separated tag cell, trimming each
// tag and dropping empties. An empty or whitespace-only cell yields nil.
func NormalizeTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Slugify converts a title into a URL handle: accents folded to their
// ASCII base letters, lowercased, with runs of non-alphanumeric
// characters collapsed into single hyphens. Non-ASCII characters that
// have no ASCII base form are dropped.
func Slugify(value string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	if folded, _, err := transform.String(fold, value); err == nil {
		value = folded
	}
	value = strings.ToLower(strings.TrimSpace(value))

	var result strings.Builder
	lastHyphen := false
	for _, r := range value {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			result.WriteRune(r)
			lastHyphen = false
		case r > unicode.MaxASCII:
			// no ASCII base form, dropped without a hyphen
		default:
			if !lastHyphen && result.Len() > 0 {
				result.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(result.String(), "-")
}

// fieldValue looks up a column by header, tolerating case and
// whitespace differences in the uploaded file.
func fieldValue(record map[string]string, column string) string {
	if v, ok := record[column]; ok {
		return strings.TrimSpace(v)
	}
	want := strings.ToLower(column)
	for k, v := range record {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

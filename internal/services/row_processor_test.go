package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopify-import-service/internal/models"
)

func TestParseRow(t *testing.T) {
	row := ParseRow(map[string]string{
		"Product Title":    "Red Mug",
		"SKU":              "MUG01",
		"Description":      "<p>A ceramic mug</p>",
		"Tags":             " kitchen , ceramic,, ",
		"Page Title":       "Red Mug | Shop",
		"Meta Description": "Hand-glazed red ceramic mug.",
		"_row":             "2",
	})

	assert.Equal(t, 2, row.RowIndex)
	assert.Equal(t, "Red Mug", row.Title)
	assert.Equal(t, "MUG01", row.SKU)
	assert.Equal(t, []string{"kitchen", "ceramic"}, row.Tags)
	assert.Equal(t, "red-mug", row.Handle)
	assert.False(t, row.ExplicitHandle)
	assert.True(t, row.Valid())
}

func TestParseRowExplicitHandle(t *testing.T) {
	row := ParseRow(map[string]string{
		"Product Title": "Red Mug",
		"URL Handle":    "my-custom-handle",
	})
	assert.Equal(t, "my-custom-handle", row.Handle)
	assert.True(t, row.ExplicitHandle)
}

func TestParseRowCaseInsensitiveHeaders(t *testing.T) {
	// the CSV parser lowercases headers, lookup must still find them
	row := ParseRow(map[string]string{
		"product title": "Blue Mug",
		"sku":           "MUG02",
	})
	assert.Equal(t, "Blue Mug", row.Title)
	assert.Equal(t, "MUG02", row.SKU)
}

func TestParseRowMissingTitle(t *testing.T) {
	row := ParseRow(map[string]string{
		"SKU": "MUG01",
	})
	assert.False(t, row.Valid())
	assert.Empty(t, row.Handle)
}

func TestMatchKeys(t *testing.T) {
	row := &ProductRow{SKU: "MUG01", Handle: "red-mug"}
	assert.Equal(t, []string{"MUG01", "red-mug"}, row.MatchKeys())

	row = &ProductRow{Handle: "red-mug"}
	assert.Equal(t, []string{"red-mug"}, row.MatchKeys())

	row = &ProductRow{}
	assert.Empty(t, row.MatchKeys())
}

func TestBuildPayload(t *testing.T) {
	defaults := &models.RunDefaults{
		Vendor:            "Acme",
		ProductType:       "Kitchenware",
		Price:             12.5,
		Status:            "draft",
		InventoryPolicy:   "continue",
		InventoryQuantity: 3,
	}

	row := ParseRow(map[string]string{
		"Product Title": "Red Mug",
		"SKU":           "MUG01",
		"Description":   "<p>nice</p>",
		"Tags":          "a, b",
	})

	payload := row.BuildPayload(defaults)
	assert.Equal(t, "Red Mug", payload.Title)
	assert.Equal(t, "<p>nice</p>", payload.BodyHTML)
	assert.Equal(t, "Acme", payload.Vendor)
	assert.Equal(t, "Kitchenware", payload.ProductType)
	assert.Equal(t, "draft", payload.Status)
	assert.Equal(t, "a, b", payload.Tags)
	assert.Equal(t, "red-mug", payload.Handle)

	require.Len(t, payload.Variants, 1)
	variant := payload.Variants[0]
	require.NotNil(t, variant.SKU)
	assert.Equal(t, "MUG01", *variant.SKU)
	assert.Equal(t, "12.50", variant.Price)
	assert.Equal(t, "continue", variant.InventoryPolicy)
	assert.Equal(t, "shopify", variant.InventoryManagement)
	assert.Equal(t, 3, variant.InventoryQuantity)
	assert.True(t, variant.RequiresShipping)
	assert.True(t, variant.Taxable)
}

func TestBuildPayloadEmptySKU(t *testing.T) {
	row := ParseRow(map[string]string{"Product Title": "Red Mug"})
	payload := row.BuildPayload(&models.RunDefaults{Status: "active"})
	require.Len(t, payload.Variants, 1)
	assert.Nil(t, payload.Variants[0].SKU)
	assert.Empty(t, payload.Tags)
}

func TestNormalizeTags(t *testing.T) {
	assert.Nil(t, NormalizeTags(""))
	assert.Nil(t, NormalizeTags("   "))
	assert.Nil(t, NormalizeTags(",,,"))
	assert.Equal(t, []string{"a", "b c", "d"}, NormalizeTags(" a ,b c,, d"))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Red Mug":             "red-mug",
		"  Red   Mug  ":       "red-mug",
		"Café Olé!":           "cafe-ole",
		"Łódź Soufflé":        "odz-souffle",
		"100% Cotton T-Shirt": "100-cotton-t-shirt",
		"---":                 "",
		"":                    "",
	}
	for input, want := range cases {
		assert.Equal(t, want, Slugify(input), "Slugify(%q)", input)
	}

	// idempotent on its own output
	assert.Equal(t, "red-mug", Slugify(Slugify("Red Mug")))
}

package clients

import "context"

// ProductPayload is the product-creation request body sent to the
// commerce platform. Tags and Handle are omitted when empty.
type ProductPayload struct {
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Status      string           `json:"status"`
	Tags        string           `json:"tags,omitempty"`
	Variants    []VariantPayload `json:"variants"`
	Handle      string           `json:"handle,omitempty"`
}

// VariantPayload is the single variant created per product. SKU is
// null when absent so the platform auto-assigns one.
type VariantPayload struct {
	SKU                 *string `json:"sku"`
	Price               string  `json:"price"`
	InventoryPolicy     string  `json:"inventory_policy"`
	InventoryManagement string  `json:"inventory_management"`
	InventoryQuantity   int     `json:"inventory_quantity"`
	RequiresShipping    bool    `json:"requires_shipping"`
	Taxable             bool    `json:"taxable"`
}

// ImagePayload is one base64-encoded image attachment
type ImagePayload struct {
	Attachment string `json:"attachment"`
	Filename   string `json:"filename"`
}

// Product is the subset of a created product this service reads back
type Product struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
	Status string `json:"status"`
}

// Shop describes the store, used by the connection test
type Shop struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Email  string `json:"email"`
}

// CommerceClient is the remote commerce platform surface the import
// pipeline consumes: create a product, best-effort SEO update, attach
// one image at a time, and a credentials check.
type CommerceClient interface {
	CreateProduct(ctx context.Context, payload *ProductPayload) (*Product, error)
	UpdateProductSEO(ctx context.Context, productID int64, seoTitle, seoDescription string) error
	AttachImage(ctx context.Context, productID int64, image *ImagePayload) error
	GetShop(ctx context.Context) (*Shop, error)
}

package models

// RemoteProduct is the subset of a remote listing the reconciler needs.
type RemoteProduct struct {
	ID              int64
	VariantID       int64
	InventoryItemID int64
	SKU             string
	HasImage        bool
}

// ProductDraft describes a listing to create.
type ProductDraft struct {
	Title       string
	BodyHTML    string
	Vendor      string
	ProductType string
	Status      string
	Tags        []string
	Variant     VariantInput
	Image       *ImageInput
}

// ProductPatch describes an in-place update of an existing listing.
// Image is nil whenever the listing already carries an image.
type ProductPatch struct {
	Title       string
	BodyHTML    string
	Vendor      string
	ProductType string
	Status      string
	Tags        []string
	Variant     VariantPatch
	Image       *ImageInput
}

type VariantInput struct {
	SKU               string
	Price             string
	CompareAtPrice    *string
	InventoryQuantity int
}

type VariantPatch struct {
	ID             int64
	SKU            string
	Price          string
	CompareAtPrice *string
}

type ImageInput struct {
	Src string
}

const (
	RemoteStatusActive = "active"
	RemoteStatusDraft  = "draft"
)

package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"strconv"
	"strings"

	"inventory/internal/apperror"
	"inventory/internal/logger"
	"inventory/internal/models"
	"inventory/internal/repositories"
	"inventory/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	msgMissingFields = "Please provide all required fields"
	msgDuplicateSKU  = "Product with this SKU already exists"
	msgNegative      = "Price and quantity must be non-negative"
	msgNotFound      = "Product not found"
	msgNotOwner      = "Only the creator of this product may change it"
)

// ProductInput holds the raw product fields of a create or update request.
// A nil field was absent from the request.
type ProductInput struct {
	Name              *string
	Description       *string
	Category          *string
	Price             *string
	Quantity          *string
	SKU               *string
	LowStockThreshold *string
}

// CommandOptions tunes the ProductCommandService.
type CommandOptions struct {
	// MaxImageBytes caps the size of an uploaded image. Zero means no limit.
	MaxImageBytes int64
	// EnforceOwnership restricts update and delete to the product's creator.
	EnforceOwnership bool
}

// ProductCommandService validates and applies product mutations.
type ProductCommandService struct {
	products repositories.ProductRepository
	users    repositories.UserRepository
	images   storage.ImageStore
	events   EventPublisher
	validate *validator.Validate
	log      *zap.Logger
	opts     CommandOptions
}

// NewProductCommandService creates a new ProductCommandService. events may be nil.
func NewProductCommandService(
	products repositories.ProductRepository,
	users repositories.UserRepository,
	images storage.ImageStore,
	events EventPublisher,
	log *zap.Logger,
	opts CommandOptions,
) *ProductCommandService {
	return &ProductCommandService{
		products: products,
		users:    users,
		images:   images,
		events:   events,
		validate: models.NewValidator(),
		log:      logger.OrNop(log),
		opts:     opts,
	}
}

// CreateProduct validates in, stores the optional image and inserts the product owned by ownerID.
// The stored image is removed again if the insert fails.
func (s *ProductCommandService) CreateProduct(ctx context.Context, in ProductInput, ownerID string, image *multipart.FileHeader) (*models.Product, error) {
	if blank(in.Name) || blank(in.Category) || blank(in.Price) || blank(in.Quantity) || blank(in.SKU) {
		return nil, apperror.Validation(msgMissingFields)
	}
	if ownerID == "" {
		return nil, apperror.Unauthorized("Authentication required")
	}

	sku := strings.TrimSpace(*in.SKU)
	if err := s.ensureSKUFree(ctx, sku, ""); err != nil {
		return nil, err
	}

	price, err := parsePrice(*in.Price)
	if err != nil {
		return nil, err
	}
	quantity, err := parseInteger(*in.Quantity, "Quantity")
	if err != nil {
		return nil, err
	}
	threshold := models.DefaultLowStockThreshold
	if in.LowStockThreshold != nil {
		if n, err := parseInteger(*in.LowStockThreshold, "Low stock threshold"); err == nil {
			threshold = n
		}
	}

	product := &models.Product{
		Name:              strings.TrimSpace(*in.Name),
		Description:       trimmed(in.Description),
		Category:          strings.TrimSpace(*in.Category),
		Price:             price,
		Quantity:          quantity,
		SKU:               sku,
		LowStockThreshold: threshold,
		CreatedByID:       ownerID,
	}
	if err := s.check(product); err != nil {
		return nil, err
	}

	if image != nil {
		ref, err := s.storeImage(ctx, image)
		if err != nil {
			return nil, err
		}
		product.Image = ref
	}

	if err := s.products.Create(ctx, product); err != nil {
		s.discardImage(ctx, product.Image, "create failed")
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, apperror.Conflict(msgDuplicateSKU)
		}
		return nil, apperror.Storage("Server error while creating product", err)
	}

	s.resolveOwner(ctx, product)
	s.log.Info("product created",
		zap.String("product_id", product.ID),
		zap.String("sku", product.SKU),
		zap.String("owner_id", ownerID),
	)
	publish(ctx, s.events, s.log, models.NewProductEvent(models.EventProductCreated, product, ownerID))
	if product.IsLowStock() {
		publish(ctx, s.events, s.log, models.NewProductEvent(models.EventProductLowStock, product, ownerID))
	}
	return product, nil
}

// UpdateProduct merges in over the stored product. Absent or blank fields keep their stored
// value, except quantity and lowStockThreshold which only keep it when absent.
// A new image replaces the old one, which is removed once the product points at the new file.
func (s *ProductCommandService) UpdateProduct(ctx context.Context, id string, in ProductInput, image *multipart.FileHeader, actorID string) (*models.Product, error) {
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(existing, actorID); err != nil {
		return nil, err
	}

	merged := *existing
	if !blank(in.SKU) {
		sku := strings.TrimSpace(*in.SKU)
		if sku != existing.SKU {
			if err := s.ensureSKUFree(ctx, sku, existing.ID); err != nil {
				return nil, err
			}
			merged.SKU = sku
		}
	}
	if !blank(in.Name) {
		merged.Name = strings.TrimSpace(*in.Name)
	}
	if !blank(in.Description) {
		merged.Description = strings.TrimSpace(*in.Description)
	}
	if !blank(in.Category) {
		merged.Category = strings.TrimSpace(*in.Category)
	}
	if !blank(in.Price) {
		if merged.Price, err = parsePrice(*in.Price); err != nil {
			return nil, err
		}
	}
	if in.Quantity != nil {
		if merged.Quantity, err = parseInteger(*in.Quantity, "Quantity"); err != nil {
			return nil, err
		}
	}
	if in.LowStockThreshold != nil {
		if merged.LowStockThreshold, err = parseInteger(*in.LowStockThreshold, "Low stock threshold"); err != nil {
			return nil, err
		}
	}
	if err := s.check(&merged); err != nil {
		return nil, err
	}

	newImage := ""
	if image != nil {
		if newImage, err = s.storeImage(ctx, image); err != nil {
			return nil, err
		}
		merged.Image = newImage
	}

	if err := s.products.Update(ctx, &merged); err != nil {
		s.discardImage(ctx, newImage, "update failed")
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return nil, apperror.NotFound(msgNotFound)
		case errors.Is(err, repositories.ErrDuplicateKey):
			return nil, apperror.Conflict(msgDuplicateSKU)
		}
		return nil, apperror.Storage("Server error while updating product", err)
	}

	if newImage != "" && existing.Image != "" {
		s.discardImage(ctx, existing.Image, "image replaced")
	}

	s.resolveOwner(ctx, &merged)
	s.log.Info("product updated", zap.String("product_id", merged.ID), zap.String("actor_id", actorID))
	publish(ctx, s.events, s.log, models.NewProductEvent(models.EventProductUpdated, &merged, actorID))
	if merged.IsLowStock() && !existing.IsLowStock() {
		publish(ctx, s.events, s.log, models.NewProductEvent(models.EventProductLowStock, &merged, actorID))
	}
	return &merged, nil
}

// DeleteProduct removes the product permanently, then its image.
func (s *ProductCommandService) DeleteProduct(ctx context.Context, id string, actorID string) error {
	existing, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(existing, actorID); err != nil {
		return err
	}

	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperror.NotFound(msgNotFound)
		}
		return apperror.Storage("Server error while deleting product", err)
	}
	s.discardImage(ctx, existing.Image, "product deleted")

	s.log.Info("product deleted", zap.String("product_id", id), zap.String("actor_id", actorID))
	publish(ctx, s.events, s.log, models.NewProductEvent(models.EventProductDeleted, existing, actorID))
	return nil
}

func (s *ProductCommandService) load(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.NotFound(msgNotFound)
		}
		return nil, apperror.Storage("Server error while fetching product", err)
	}
	return product, nil
}

func (s *ProductCommandService) authorize(product *models.Product, actorID string) error {
	if s.opts.EnforceOwnership && product.CreatedByID != actorID {
		return apperror.Forbidden(msgNotOwner)
	}
	return nil
}

// ensureSKUFree fails with a conflict when a product other than exceptID owns sku.
func (s *ProductCommandService) ensureSKUFree(ctx context.Context, sku, exceptID string) error {
	other, err := s.products.GetBySKU(ctx, sku)
	switch {
	case err == nil && other.ID != exceptID:
		return apperror.Conflict(msgDuplicateSKU)
	case err == nil, errors.Is(err, repositories.ErrNotFound):
		return nil
	default:
		return apperror.Storage("Server error while checking SKU", err)
	}
}

// check enforces the numeric and field rules on a normalized product.
func (s *ProductCommandService) check(p *models.Product) error {
	if p.Price.IsNegative() || p.Quantity < 0 {
		return apperror.Validation(msgNegative)
	}
	if err := s.validate.Struct(p); err != nil {
		return apperror.Validation(models.DescribeValidation(err))
	}
	return nil
}

func (s *ProductCommandService) storeImage(ctx context.Context, image *multipart.FileHeader) (string, error) {
	if err := storage.CheckImage(image, s.opts.MaxImageBytes); err != nil {
		if errors.Is(err, storage.ErrImageTooLarge) {
			return "", apperror.Validation(fmt.Sprintf("Image must be at most %d bytes", s.opts.MaxImageBytes))
		}
		return "", apperror.Validation("Only image files are allowed (" + strings.Join(storage.AllowedExtensions(), ", ") + ")")
	}
	ref, err := s.images.Save(ctx, image)
	if err != nil {
		return "", apperror.Storage("Server error while saving image", err)
	}
	return ref, nil
}

// discardImage removes ref best-effort; a failure is logged for operators only.
func (s *ProductCommandService) discardImage(ctx context.Context, ref, reason string) {
	if ref == "" {
		return
	}
	if err := s.images.Remove(ctx, ref); err != nil {
		s.log.Error("failed to remove image", zap.String("image", ref), zap.String("reason", reason), zap.Error(err))
	}
}

func (s *ProductCommandService) resolveOwner(ctx context.Context, p *models.Product) {
	if err := attachOwner(ctx, s.users, p); err != nil {
		s.log.Warn("failed to resolve product owner", zap.String("product_id", p.ID), zap.Error(err))
		p.CreatedBy = &models.Owner{ID: p.CreatedByID}
	}
}

func blank(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

// parsePrice rounds to the stored scale so the returned record matches what is persisted.
func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, apperror.Validation("Price must be a valid number")
	}
	if price.IsNegative() {
		return decimal.Decimal{}, apperror.Validation(msgNegative)
	}
	price = price.Round(models.PriceScale)
	if price.GreaterThan(models.MaxPrice) {
		return decimal.Decimal{}, apperror.Validation("Price must be at most " + models.MaxPrice.StringFixed(models.PriceScale))
	}
	return price, nil
}

var (
	maxInt = decimal.NewFromInt(math.MaxInt)
	minInt = decimal.NewFromInt(math.MinInt)
)

// parseInteger accepts integer text, or decimal text truncated toward zero.
// Values outside the int range are rejected.
func parseInteger(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, apperror.Validation(field + " must be a valid integer")
	}
	d = d.Truncate(0)
	if d.GreaterThan(maxInt) || d.LessThan(minInt) {
		return 0, apperror.Validation(field + " must be a valid integer")
	}
	return int(d.IntPart()), nil
}

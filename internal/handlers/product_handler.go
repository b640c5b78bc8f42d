package handlers

import (
	"inventory/internal/logger"
	"inventory/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	query   *services.ProductQueryService
	command *services.ProductCommandService
	log     *zap.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(query *services.ProductQueryService, command *services.ProductCommandService, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		query:   query,
		command: command,
		log:     logger.OrNop(log),
	}
}

// RegisterRoutes registers the product routes. The router is expected to require authentication.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleListProducts)
	// stats must be registered before /:id
	productRoutes.Get("/stats", h.HandleGetStats)
	productRoutes.Get("/:id", h.HandleGetProduct)
	productRoutes.Post("/", h.HandleCreateProduct)
	productRoutes.Put("/:id", h.HandleUpdateProduct)
	productRoutes.Delete("/:id", h.HandleDeleteProduct)
}

// HandleListProducts lists products filtered by search and category, sorted by sortBy and order.
func (h *ProductHandler) HandleListProducts(c *fiber.Ctx) error {
	list, err := h.query.ListProducts(c.UserContext(), services.ListQuery{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		SortBy:   c.Query("sortBy"),
		Order:    c.Query("order"),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(list)
}

// HandleGetStats returns the dashboard aggregates.
func (h *ProductHandler) HandleGetStats(c *fiber.Ctx) error {
	stats, err := h.query.GetStats(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(stats)
}

// HandleGetProduct retrieves a single product by its ID.
func (h *ProductHandler) HandleGetProduct(c *fiber.Ctx) error {
	product, err := h.query.GetProduct(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(product)
}

// HandleCreateProduct creates a product owned by the authenticated user.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	input, image, err := parseProductForm(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	product, err := h.command.CreateProduct(c.UserContext(), input, currentUserID(c), image)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Product created successfully",
		"product": product,
	})
}

// HandleUpdateProduct applies a partial update to an existing product.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	input, image, err := parseProductForm(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	product, err := h.command.UpdateProduct(c.UserContext(), c.Params("id"), input, image, currentUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"message": "Product updated successfully",
		"product": product,
	})
}

// HandleDeleteProduct deletes a product and its image.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	if err := h.command.DeleteProduct(c.UserContext(), c.Params("id"), currentUserID(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"message": "Product deleted successfully"})
}

// currentUserID returns the user id stored by the auth middleware.
func currentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

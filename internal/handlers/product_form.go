package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"strings"

	"inventory/internal/apperror"
	"inventory/internal/services"

	"github.com/gofiber/fiber/v2"
)

const imageField = "image"

// parseProductForm reads the product fields and the optional image of a create or update request.
// Fields missing from the body stay nil so the service can tell absent from blank.
func parseProductForm(c *fiber.Ctx) (services.ProductInput, *multipart.FileHeader, error) {
	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return services.ProductInput{}, nil, apperror.Validation("Invalid multipart form")
		}
		lookup := func(key string) (string, bool) {
			values, ok := form.Value[key]
			if !ok || len(values) == 0 {
				return "", false
			}
			return values[0], true
		}
		var image *multipart.FileHeader
		if files := form.File[imageField]; len(files) > 0 {
			image = files[0]
		}
		return buildInput(lookup), image, nil

	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		fields, err := decodeJSONFields(c.Body())
		if err != nil {
			return services.ProductInput{}, nil, apperror.Validation("Invalid request body")
		}
		return buildInput(func(key string) (string, bool) {
			v, ok := fields[key]
			return v, ok
		}), nil, nil

	default:
		args := c.Request().PostArgs()
		return buildInput(func(key string) (string, bool) {
			if !args.Has(key) {
				return "", false
			}
			return string(args.Peek(key)), true
		}), nil, nil
	}
}

func buildInput(lookup func(string) (string, bool)) services.ProductInput {
	field := func(key string) *string {
		if v, ok := lookup(key); ok {
			return &v
		}
		return nil
	}
	return services.ProductInput{
		Name:              field("name"),
		Description:       field("description"),
		Category:          field("category"),
		Price:             field("price"),
		Quantity:          field("quantity"),
		SKU:               field("sku"),
		LowStockThreshold: field("lowStockThreshold"),
	}
}

// decodeJSONFields flattens a JSON object into field text. Numbers keep their literal form and
// null counts as absent.
func decodeJSONFields(body []byte) (map[string]string, error) {
	raw := map[string]interface{}{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		default:
			fields[key] = fmt.Sprint(v)
		}
	}
	return fields, nil
}

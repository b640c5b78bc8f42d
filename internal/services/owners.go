package services

import (
	"context"

	"inventory/internal/models"
	"inventory/internal/repositories"
)

// attachOwners resolves the createdBy projection of every product with one user lookup.
func attachOwners(ctx context.Context, users repositories.UserRepository, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	ids := make([]string, 0, len(products))
	for _, p := range products {
		if p.CreatedByID != "" && !seen[p.CreatedByID] {
			seen[p.CreatedByID] = true
			ids = append(ids, p.CreatedByID)
		}
	}

	owners := make(map[string]*models.Owner, len(ids))
	if users != nil && len(ids) > 0 {
		found, err := users.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for i := range found {
			owners[found[i].ID] = found[i].Owner()
		}
	}

	for i := range products {
		if owner, ok := owners[products[i].CreatedByID]; ok {
			products[i].CreatedBy = owner
		} else {
			products[i].CreatedBy = &models.Owner{ID: products[i].CreatedByID}
		}
	}
	return nil
}

// attachOwner is attachOwners for a single product.
func attachOwner(ctx context.Context, users repositories.UserRepository, product *models.Product) error {
	list := []models.Product{*product}
	if err := attachOwners(ctx, users, list); err != nil {
		return err
	}
	product.CreatedBy = list[0].CreatedBy
	return nil
}

package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/app"
	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/services"
	"github.com/shinobiwanshin/Sweetify/utils"
)

// ListSweetsHandler handles GET /api/sweets
func ListSweetsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sweets, err := deps.SweetService.List(r.Context())
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		_ = utils.WriteOK(w, sweets)
	}
}

// GetSweetHandler handles GET /api/sweets/{id}
func GetSweetHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		sweet, err := deps.SweetService.Get(r.Context(), id)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		_ = utils.WriteOK(w, sweet)
	}
}

// SearchSweetsHandler handles GET /api/sweets/search
func SearchSweetsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		minPrice, err := utils.ParseOptionalFloat(q.Get("minPrice"), "minPrice")
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}
		maxPrice, err := utils.ParseOptionalFloat(q.Get("maxPrice"), "maxPrice")
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		sweets, err := deps.SweetService.Search(r.Context(), models.SweetFilter{
			Name:     q.Get("name"),
			Category: q.Get("category"),
			MinPrice: minPrice,
			MaxPrice: maxPrice,
		})
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		_ = utils.WriteOK(w, sweets)
	}
}

// CreateSweetHandler handles POST /api/sweets
func CreateSweetHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req services.SweetRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}

		sweet, err := deps.SweetService.Create(r.Context(), req)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		_ = utils.WriteCreated(w, sweet)
	}
}

// UpdateSweetHandler handles PUT /api/sweets/{id}
func UpdateSweetHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		var req services.SweetRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}

		sweet, err := deps.SweetService.Update(r.Context(), id, req)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		_ = utils.WriteOK(w, sweet)
	}
}

// DeleteSweetHandler handles DELETE /api/sweets/{id}
func DeleteSweetHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		if err := deps.SweetService.Delete(r.Context(), id); err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		utils.WriteNoContent(w)
	}
}

// RestockSweetHandler handles POST /api/sweets/{id}/restock
func RestockSweetHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		quantity, err := decodeQuantity(w, r, 0)
		if err != nil {
			writeDecodeError(w, err)
			return
		}

		sweet, err := deps.SweetService.Restock(r.Context(), id, quantity)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		_ = utils.WriteOK(w, sweet)
	}
}

// PurchaseSweetHandler handles POST /api/sweets/{id}/purchase.
// The buyer is the authenticated principal; quantity defaults to 1.
func PurchaseSweetHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		id, err := pathID(r)
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		quantity, err := decodeQuantity(w, r, 1)
		if err != nil {
			writeDecodeError(w, err)
			return
		}

		purchase, err := deps.PurchaseService.Purchase(r.Context(), id, quantity, principal.Username)
		if err != nil {
			deps.Metrics.RecordPurchase(purchaseResult(err), 0)
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Metrics.RecordPurchase("ok", purchase.Quantity)
		deps.Logger.Debug("purchase recorded",
			zap.String("purchase_id", purchase.ID.String()),
			zap.String("customer", principal.Username))
		_ = utils.WriteOK(w, purchase)
	}
}

func purchaseResult(err error) string {
	switch {
	case errors.Is(err, services.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, services.ErrSweetNotFound):
		return "not_found"
	case services.IsValidationError(err):
		return "invalid"
	default:
		return "error"
	}
}

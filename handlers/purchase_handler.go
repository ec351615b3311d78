package handlers

import (
	"net/http"

	"github.com/shinobiwanshin/Sweetify/app"
	"github.com/shinobiwanshin/Sweetify/utils"
)

// MyPurchasesHandler handles GET /api/purchases/my
func MyPurchasesHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		purchases, err := deps.PurchaseService.ListForCustomer(r.Context(), principal.Username)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		_ = utils.WriteOK(w, purchases)
	}
}

// AllPurchasesHandler handles GET /api/purchases/all
func AllPurchasesHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		purchases, err := deps.PurchaseService.ListAll(r.Context())
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		_ = utils.WriteOK(w, purchases)
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/orders"
)

type api struct {
	service *orders.Service
	log     *zap.Logger
}

func newRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", a.createOrder)
		r.Get("/", a.listOrders)
		r.Get("/{id}", a.getOrder)
		r.Post("/{id}/take", a.transition((*orders.Service).Take))
		r.Post("/{id}/deposit", a.transition((*orders.Service).Deposit))
		r.Post("/{id}/markpaid", a.transition((*orders.Service).MarkPaid))
		r.Post("/{id}/release", a.transition((*orders.Service).Release))
		r.Post("/{id}/cancel", a.transition((*orders.Service).Cancel))
		r.Post("/{id}/dispute", a.transition((*orders.Service).Dispute))
	})

	r.Get("/accounts/balance", a.getBalance)
	r.Post("/accounts/credit", a.credit)
	r.Get("/system/accounts", a.resolveSystemAccount)

	return r
}

func (a *api) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreatorID       string          `json:"creator_id"`
		Side            string          `json:"side"`
		Network         string          `json:"network"`
		PrincipalAmount decimal.Decimal `json:"principal_amount"`
		FiatCurrency    string          `json:"fiat_currency"`
		FiatMethod      string          `json:"fiat_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, errs.Validationf("invalid request body"))
		return
	}

	order, err := a.service.CreateOrder(r.Context(), req.CreatorID,
		models.OrderSide(req.Side), models.Network(req.Network),
		req.PrincipalAmount, req.FiatCurrency, req.FiatMethod)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// transition adapts the state-machine methods, which all share the
// (orderID, actorID) shape.
func (a *api) transition(fn func(*orders.Service, context.Context, string, string) (models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ActorID string `json:"actor_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, errs.Validationf("invalid request body"))
			return
		}
		if req.ActorID == "" {
			a.writeError(w, errs.Validationf("actor_id is required"))
			return
		}

		order, err := fn(a.service, r.Context(), chi.URLParam(r, "id"), req.ActorID)
		if err != nil {
			a.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}

func (a *api) listOrders(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.Order
		err  error
	)
	if creator := r.URL.Query().Get("creator_id"); creator != "" {
		list, err = a.service.ListByCreator(r.Context(), creator)
	} else {
		list, err = a.service.ListOpen(r.Context())
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	if list == nil {
		list = []models.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *api) getBalance(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		a.writeError(w, errs.Validationf("account_id is a mandatory field"))
		return
	}

	balance, currency, err := a.service.GetBalance(r.Context(), accountID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		AccountID string          `json:"account_id"`
		Balance   decimal.Decimal `json:"balance"`
		Currency  string          `json:"currency"`
	}{accountID, balance, currency})
}

func (a *api) credit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string          `json:"user_id"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, errs.Validationf("invalid request body"))
		return
	}

	receipt, err := a.service.Credit(r.Context(), req.UserID, req.Amount)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *api) resolveSystemAccount(w http.ResponseWriter, r *http.Request) {
	role := models.AccountRole(r.URL.Query().Get("role"))
	currency := r.URL.Query().Get("currency")

	accountID, err := a.service.ResolveSystemAccount(r.Context(), role, currency)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account_id": accountID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	var (
		invalidState   *errs.InvalidStateError
		partialRelease *errs.PartialReleaseError
		configErr      *errs.ConfigurationError
	)
	switch {
	case errors.Is(err, errs.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errBody("validation", err))
	case errors.Is(err, errs.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errBody("unauthorized", err))
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody("not_found", err))
	case errors.As(err, &invalidState):
		writeJSON(w, http.StatusConflict, errBody("invalid_state", err))
	case errors.Is(err, errs.ErrInsufficientFunds):
		writeJSON(w, http.StatusConflict, errBody("insufficient_funds", err))
	case errors.As(err, &partialRelease):
		// Distinct code so the front-end never renders this as a
		// generic failure inviting a duplicate release attempt.
		a.log.Error("partial release", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("partial_release", err))
	case errors.Is(err, errs.ErrNotInitialized), errors.As(err, &configErr):
		a.log.Error("configuration error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("not_initialized", err))
	case errors.Is(err, errs.ErrExternalService):
		a.log.Error("external ledger failure", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errBody("external_service", err))
	default:
		a.log.Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("internal", err))
	}
}

func errBody(code string, err error) map[string]string {
	return map[string]string{"code": code, "error": err.Error()}
}

package handlers

import (
	"github.com/go-chi/chi/v5"

	mW "github.com/fbibank/backend/internal/middleware"
)

// API groups the HTTP handlers mounted under /api/v1
type API struct {
	Accounts *AccountHandler
	Loans    *LoanHandler
	Admin    *AdminHandler
	QR       *QRHandler
}

// Mount registers the versioned routes on r. Every route needs a bearer token signed with
// secret; customer routes need a token bound to an account and admin routes the admin role.
func (api *API) Mount(r chi.Router, secret []byte) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.Authenticate(secret))

		// Customer endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.RequireAccount)

			r.Post("/accounts/deposit", api.Accounts.Deposit)
			r.Post("/accounts/withdraw", api.Accounts.Withdraw)
			r.Post("/accounts/transfer", api.Accounts.Transfer)
			r.Get("/accounts/transactions", api.Accounts.Transactions)
			r.Get("/accounts/me", api.Accounts.Me)
			r.Get("/accounts/me/qr", api.QR.MyQR)
			r.Get("/accounts/transfers/{correlationId}/advice", api.Accounts.TransferAdvice)

			r.Post("/loans/apply", api.Loans.Apply)
			r.Post("/loans/custom-apply", api.Loans.CustomApply)
			r.Get("/loans/my-loans", api.Loans.MyLoans)
			r.Get("/loans/active", api.Loans.Active)
			r.Get("/loans/schemes", api.Loans.Schemes)
			r.Get("/loans/{id}/payments", api.Loans.Payments)
			r.Post("/loans/pay-emi/{id}", api.Loans.PayEMI)
			r.Post("/loans/pay-advance/{id}", api.Loans.PayAdvance)
		})

		// Admin endpoints
		r.Route("/admin", func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleAdmin))

			r.Post("/create", api.Admin.CreateAccount)
			r.Get("/accounts", api.Admin.Accounts)
			r.Get("/accounts/{id}/reconcile", api.Admin.Reconcile)
			r.Put("/block/{id}", api.Admin.Block)
			r.Put("/unblock/{id}", api.Admin.Unblock)

			r.Get("/loans", api.Admin.Loans)
			r.Put("/loans/approve/{id}", api.Admin.ApproveLoan)
			r.Put("/loans/reject/{id}", api.Admin.RejectLoan)
			r.Post("/loans/launch", api.Admin.LaunchScheme)
			r.Get("/loans/schemes", api.Admin.Schemes)
			r.Put("/loans/schemes/{id}/status", api.Admin.SetSchemeStatus)
		})
	})
}

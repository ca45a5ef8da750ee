package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	appnotification "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/notification"
	apporder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/order"
	apppayment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/payment"
	appshipment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/shipment"
	domcart "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/cart"
	domnotif "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/notification"
	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	dompayment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
	domproduct "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/product"
	domshipment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/shipment"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
)

// Handler exposes the commerce saga over HTTP: checkout, the gateway
// callback that drives reconciliation, order and shipment lifecycle
// endpoints, and the in-app notification inbox action.
type Handler struct {
	checkout     *apppayment.CheckoutService
	reconciler   *apppayment.Reconciler
	orders       *apporder.Service
	orchestrator *appshipment.Orchestrator
	dispatcher   *appnotification.Dispatcher
	tel          observability.Observability
}

func NewHandler(
	checkout *apppayment.CheckoutService,
	reconciler *apppayment.Reconciler,
	orders *apporder.Service,
	orchestrator *appshipment.Orchestrator,
	dispatcher *appnotification.Dispatcher,
	tel observability.Observability,
) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		checkout:     checkout,
		reconciler:   reconciler,
		orders:       orders,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		tel:          tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(ObservabilityMiddleware(h.tel))

	r.Post("/checkout", h.handleCheckout)
	r.Post("/payments/callback/{provider}", h.handlePaymentCallback)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Post("/orders/{id}/cancel", h.handleCancelOrder)
	r.Post("/orders/{id}/shipment", h.handleGenerateShipment)
	r.Post("/shipments/{id}/cancel", h.handleCancelShipment)
	r.Post("/notifications/{id}/read", h.handleMarkNotificationRead)
	r.Get("/health", h.handleHealth)

	return r
}

type checkoutRequest struct {
	UserID         string           `json:"user_id"`
	CartID         string           `json:"cart_id"`
	Provider       string           `json:"provider"`
	Amount         string           `json:"amount"`
	Currency       string           `json:"currency"`
	ReturnURL      string           `json:"return_url"`
	CancelURL      string           `json:"cancel_url"`
	QuotedShipping *quotedShipping  `json:"quoted_shipping,omitempty"`
	SimpleShipping *shippingAddress `json:"simple_shipping,omitempty"`
}

type quotedShipping struct {
	Address     shippingAddress `json:"address"`
	CarrierCode string          `json:"carrier_code"`
	ServiceName string          `json:"service_name"`
	Fee         string          `json:"fee"`
}

type shippingAddress struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

type checkoutResponse struct {
	PaymentID   string `json:"payment_id"`
	ProviderRef string `json:"provider_ref"`
	ApprovalURL string `json:"approval_url"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("payment: invalid amount"))
		return
	}

	input := apppayment.CheckoutInput{
		UserID:    req.UserID,
		CartID:    req.CartID,
		Provider:  dompayment.Provider(req.Provider),
		Amount:    amount,
		Currency:  req.Currency,
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	}
	if req.QuotedShipping != nil {
		fee, feeErr := decimal.NewFromString(req.QuotedShipping.Fee)
		if feeErr != nil {
			writeError(w, http.StatusBadRequest, errors.New("payment: invalid shipping fee"))
			return
		}
		input.QuotedShipping = &domorder.QuotedShipping{
			Address:     toAddress(req.QuotedShipping.Address),
			CarrierCode: req.QuotedShipping.CarrierCode,
			ServiceName: req.QuotedShipping.ServiceName,
			Fee:         fee,
		}
	}
	if req.SimpleShipping != nil {
		addr := toAddress(*req.SimpleShipping)
		input.SimpleShipping = &addr
	}

	result, err := h.checkout.Checkout(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		PaymentID:   result.PaymentID,
		ProviderRef: result.ProviderRef,
		ApprovalURL: result.ApprovalURL,
	})
}

type callbackRequest struct {
	ProviderRef string `json:"provider_ref"`
	Outcome     string `json:"outcome"`
}

type callbackResponse struct {
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	OrderID     string `json:"order_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
	Replayed    bool   `json:"replayed"`
}

func (h *Handler) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	provider := dompayment.Provider(chi.URLParam(r, "provider"))
	result, err := h.reconciler.HandleCallback(r.Context(), provider, req.ProviderRef, apppayment.CallbackOutcome(req.Outcome))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, callbackResponse{
		PaymentID:   result.PaymentID,
		Status:      string(result.Status),
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
		Replayed:    result.Replayed,
	})
}

type orderItemResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	Number      string              `json:"number"`
	Status      string              `json:"status"`
	Items       []orderItemResponse `json:"items"`
	Subtotal    string              `json:"subtotal"`
	Discount    string              `json:"discount"`
	ShippingFee string              `json:"shipping_fee"`
	Tax         string              `json:"tax"`
	Total       string              `json:"total"`
	Currency    string              `json:"currency,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ord, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(ord))
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ord, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(ord))
}

type shipmentResponse struct {
	ID                string     `json:"id"`
	OrderID           string     `json:"order_id"`
	Status            string     `json:"status"`
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	LabelURL          string     `json:"label_url,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

func (h *Handler) handleGenerateShipment(w http.ResponseWriter, r *http.Request) {
	shp, err := h.orchestrator.Generate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentResponse(shp))
}

func (h *Handler) handleCancelShipment(w http.ResponseWriter, r *http.Request) {
	shp, err := h.orchestrator.CancelShipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(shp))
}

func (h *Handler) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.dispatcher.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     n.ID,
		"status": string(n.Status),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func toOrderResponse(ord *domorder.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(ord.Items))
	for _, it := range ord.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Snapshot.Name,
			Size:      it.Size,
			Quantity:  it.Quantity,
			UnitPrice: it.Snapshot.Price.StringFixed(2),
			Subtotal:  it.Subtotal().StringFixed(2),
		})
	}
	return orderResponse{
		ID:          ord.ID,
		Number:      ord.Number,
		Status:      string(ord.Status),
		Items:       items,
		Subtotal:    ord.Subtotal.StringFixed(2),
		Discount:    ord.Discount.StringFixed(2),
		ShippingFee: ord.ShippingFee.StringFixed(2),
		Tax:         ord.Tax.StringFixed(2),
		Total:       ord.Total.StringFixed(2),
		Currency:    ord.Currency,
		CreatedAt:   ord.CreatedAt,
	}
}

func toShipmentResponse(shp *domshipment.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:                shp.ID,
		OrderID:           shp.OrderID,
		Status:            string(shp.Status),
		TrackingNumber:    shp.TrackingNumber,
		LabelURL:          shp.LabelURL,
		EstimatedDelivery: shp.EstimatedDelivery,
	}
}

func toAddress(a shippingAddress) domorder.Address {
	return domorder.Address{
		Name:       a.Name,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, dompayment.ErrNotFound),
		errors.Is(err, domcart.ErrNotFound),
		errors.Is(err, domproduct.ErrNotFound),
		errors.Is(err, domnotif.ErrNotFound),
		errors.Is(err, domshipment.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domcart.ErrEmpty),
		errors.Is(err, domproduct.ErrInvalidQuantity),
		errors.Is(err, domproduct.ErrInsufficientStock),
		errors.Is(err, domnotif.ErrNotSent),
		errors.Is(err, appshipment.ErrNoShippingAddress),
		errors.Is(err, appshipment.ErrCarrierValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domorder.ErrInvalidStateTransition),
		errors.Is(err, dompayment.ErrInvalidStateTransition),
		errors.Is(err, domshipment.ErrNotCancellable),
		errors.Is(err, appshipment.ErrOrderNotReady):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, appshipment.ErrCarrierTimeout),
		errors.Is(err, appshipment.ErrServiceUnavailable):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

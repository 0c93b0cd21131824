// shopstate/services/storefront_service.go

package services

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/norun9/shopstate/coupon"
	"github.com/norun9/shopstate/ledger"
	"github.com/norun9/shopstate/storefront"
)

// BrowserIDHeader identifies the browser install a request belongs to.
const BrowserIDHeader = "X-Browser-Id"

// StorefrontServer exposes the shopping-state operations over HTTP.
type StorefrontServer struct {
	registry *storefront.Registry
	tracer   trace.Tracer
	log      logrus.FieldLogger
}

// NewStorefrontServer creates a server with the session registry injected.
func NewStorefrontServer(registry *storefront.Registry, log logrus.FieldLogger) *StorefrontServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StorefrontServer{
		registry: registry,
		tracer:   otel.Tracer("shopstate"),
		log:      log,
	}
}

// Router builds the API routes.
func (s *StorefrontServer) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/state", s.handle("GetState", s.getState)).Methods(http.MethodGet)

	api.HandleFunc("/cart/items", s.handle("AddToCart", s.addToCart)).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{productId}", s.handle("UpdateQuantity", s.updateQuantity)).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{productId}", s.handle("RemoveFromCart", s.removeFromCart)).Methods(http.MethodDelete)
	api.HandleFunc("/cart", s.handle("ClearCart", s.clearCart)).Methods(http.MethodDelete)

	api.HandleFunc("/wishlist/items", s.handle("AddToWishlist", s.addToWishlist)).Methods(http.MethodPost)
	api.HandleFunc("/wishlist/items/{productId}", s.handle("IsInWishlist", s.isInWishlist)).Methods(http.MethodGet)
	api.HandleFunc("/wishlist/items/{productId}", s.handle("RemoveFromWishlist", s.removeFromWishlist)).Methods(http.MethodDelete)
	api.HandleFunc("/wishlist/items/{productId}/move-to-cart", s.handle("MoveToCart", s.moveToCart)).Methods(http.MethodPost)
	api.HandleFunc("/wishlist", s.handle("ClearWishlist", s.clearWishlist)).Methods(http.MethodDelete)

	api.HandleFunc("/coupon", s.handle("ApplyCoupon", s.applyCoupon)).Methods(http.MethodPost)
	api.HandleFunc("/coupon", s.handle("RemoveCoupon", s.removeCoupon)).Methods(http.MethodDelete)
	api.HandleFunc("/coupons", s.handle("ListCoupons", s.listCoupons)).Methods(http.MethodGet)

	api.HandleFunc("/login", s.handle("Login", s.login)).Methods(http.MethodPost)
	api.HandleFunc("/logout", s.handle("Logout", s.logout)).Methods(http.MethodPost)
	api.HandleFunc("/checkout", s.handle("Checkout", s.checkout)).Methods(http.MethodPost)
	return r
}

// request is the per-call context handed to each handler.
type request struct {
	ctx       context.Context
	r         *http.Request
	span      trace.Span
	browserID string

	registry *storefront.Registry
	sess     *storefront.Session
}

// session returns the caller's session, loading it on first use.
func (req *request) session() *storefront.Session {
	if req.sess == nil {
		req.sess = req.registry.Session(req.ctx, req.browserID)
	}
	return req.sess
}

type handlerFunc func(req *request) (int, interface{})

func (s *StorefrontServer) handle(name string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := s.tracer.Start(ctx, name)
		defer span.End()

		browserID := r.Header.Get(BrowserIDHeader)
		if browserID == "" {
			browserID = uuid.NewString()
		}
		w.Header().Set(BrowserIDHeader, browserID)
		span.SetAttributes(attribute.String("app.browser_id", browserID))

		req := &request{
			ctx:       ctx,
			r:         r,
			span:      span,
			browserID: browserID,
			registry:  s.registry,
		}
		code, body := h(req)

		log := s.log.WithFields(logrus.Fields{"op": name, "browser_id": browserID, "status": code})
		if code >= http.StatusInternalServerError {
			log.Error("request failed")
		} else {
			log.Debug("request completed")
		}
		writeJSON(w, code, body)
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func badRequest(err error) (int, interface{}) {
	return http.StatusBadRequest, errorResponse{Error: err.Error()}
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func (s *StorefrontServer) getState(req *request) (int, interface{}) {
	return http.StatusOK, req.session().State()
}

type addToCartRequest struct {
	Product  ledger.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

func (s *StorefrontServer) addToCart(req *request) (int, interface{}) {
	var body addToCartRequest
	if err := decodeBody(req.r, &body); err != nil {
		return badRequest(err)
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}
	req.span.SetAttributes(
		attribute.String("app.product_id", body.Product.ID),
		attribute.Int("app.quantity", body.Quantity),
	)
	if body.Product.Price.IsNegative() {
		return badRequest(errors.New("price must not be negative"))
	}
	if err := req.session().AddToCart(req.ctx, body.Product, body.Quantity); err != nil {
		return badRequest(err)
	}
	return http.StatusOK, req.session().State()
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (s *StorefrontServer) updateQuantity(req *request) (int, interface{}) {
	productID := mux.Vars(req.r)["productId"]
	var body updateQuantityRequest
	if err := decodeBody(req.r, &body); err != nil {
		return badRequest(err)
	}
	req.span.SetAttributes(
		attribute.String("app.product_id", productID),
		attribute.Int("app.quantity", body.Quantity),
	)
	if !req.session().UpdateQuantity(req.ctx, productID, body.Quantity) {
		return http.StatusNotFound, errorResponse{Error: "item not in cart"}
	}
	return http.StatusOK, req.session().State()
}

func (s *StorefrontServer) removeFromCart(req *request) (int, interface{}) {
	productID := mux.Vars(req.r)["productId"]
	req.span.SetAttributes(attribute.String("app.product_id", productID))
	if !req.session().RemoveFromCart(req.ctx, productID) {
		return http.StatusNotFound, errorResponse{Error: "item not in cart"}
	}
	return http.StatusOK, req.session().State()
}

func (s *StorefrontServer) clearCart(req *request) (int, interface{}) {
	req.session().ClearCart(req.ctx)
	return http.StatusOK, req.session().State()
}

type addToWishlistRequest struct {
	Product ledger.Product `json:"product"`
}

type wishlistResponse struct {
	Added      *bool `json:"added,omitempty"`
	InWishlist bool  `json:"inWishlist"`
	Count      int   `json:"count"`
}

func (s *StorefrontServer) addToWishlist(req *request) (int, interface{}) {
	var body addToWishlistRequest
	if err := decodeBody(req.r, &body); err != nil {
		return badRequest(err)
	}
	if body.Product.ID == "" {
		return badRequest(ledger.ErrMissingProductID)
	}
	req.span.SetAttributes(attribute.String("app.product_id", body.Product.ID))
	added := req.session().AddToWishlist(req.ctx, body.Product)
	return http.StatusOK, wishlistResponse{
		Added:      &added,
		InWishlist: true,
		Count:      req.session().WishlistCount(),
	}
}

func (s *StorefrontServer) isInWishlist(req *request) (int, interface{}) {
	productID := mux.Vars(req.r)["productId"]
	return http.StatusOK, wishlistResponse{
		InWishlist: req.session().IsInWishlist(productID),
		Count:      req.session().WishlistCount(),
	}
}

func (s *StorefrontServer) removeFromWishlist(req *request) (int, interface{}) {
	productID := mux.Vars(req.r)["productId"]
	req.span.SetAttributes(attribute.String("app.product_id", productID))
	req.session().RemoveFromWishlist(req.ctx, productID)
	return http.StatusOK, wishlistResponse{Count: req.session().WishlistCount()}
}

func (s *StorefrontServer) moveToCart(req *request) (int, interface{}) {
	productID := mux.Vars(req.r)["productId"]
	req.span.SetAttributes(attribute.String("app.product_id", productID))
	if !req.session().MoveToCart(req.ctx, productID) {
		return http.StatusNotFound, errorResponse{Error: "item not in wishlist"}
	}
	return http.StatusOK, req.session().State()
}

func (s *StorefrontServer) clearWishlist(req *request) (int, interface{}) {
	req.session().ClearWishlist(req.ctx)
	return http.StatusOK, wishlistResponse{Count: 0}
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (s *StorefrontServer) applyCoupon(req *request) (int, interface{}) {
	var body applyCouponRequest
	if err := decodeBody(req.r, &body); err != nil {
		return badRequest(err)
	}
	req.span.SetAttributes(attribute.String("app.coupon_code", coupon.Normalize(body.Code)))
	if err := req.session().ApplyCoupon(body.Code); err != nil {
		var uie coupon.UserInputError
		if errors.As(err, &uie) {
			return http.StatusUnprocessableEntity, errorResponse{Error: uie.UserMessage()}
		}
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}
	return http.StatusOK, req.session().State()
}

func (s *StorefrontServer) removeCoupon(req *request) (int, interface{}) {
	req.session().RemoveCoupon()
	return http.StatusOK, req.session().State()
}

func (s *StorefrontServer) listCoupons(req *request) (int, interface{}) {
	return http.StatusOK, coupon.Catalog()
}

type loginRequest struct {
	UserID string `json:"userId"`
}

type loginResponse struct {
	CartMigration     string           `json:"cartMigration"`
	WishlistMigration string           `json:"wishlistMigration"`
	State             storefront.State `json:"state"`
}

func (s *StorefrontServer) login(req *request) (int, interface{}) {
	var body loginRequest
	if err := decodeBody(req.r, &body); err != nil {
		return badRequest(err)
	}
	if body.UserID == "" {
		return badRequest(errors.New("userId is required"))
	}
	req.span.SetAttributes(attribute.String("app.user_id", body.UserID))

	res, err := req.session().Login(req.ctx, body.UserID)
	if err != nil {
		return badRequest(err)
	}
	return http.StatusOK, loginResponse{
		CartMigration:     string(res.Cart.Outcome),
		WishlistMigration: string(res.Wishlist.Outcome),
		State:             req.session().State(),
	}
}

func (s *StorefrontServer) logout(req *request) (int, interface{}) {
	req.session().Logout(req.ctx)
	return http.StatusOK, req.session().State()
}

func (s *StorefrontServer) checkout(req *request) (int, interface{}) {
	receipt, err := req.session().Checkout(req.ctx)
	if errors.Is(err, storefront.ErrEmptyCart) {
		return http.StatusConflict, errorResponse{Error: err.Error()}
	}
	if err != nil {
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}
	req.span.SetAttributes(attribute.String("app.order_total", receipt.Summary.Total.String()))
	return http.StatusOK, receipt
}

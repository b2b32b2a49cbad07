package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/greenchain/greenchain/buyer"
	"github.com/greenchain/greenchain/service"
	"github.com/greenchain/greenchain/storage"
)

// Response wraps all API responses.
type Response struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
	Meta  *Meta     `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	TotalCount int  `json:"total_count,omitempty"`
	HasMore    bool `json:"has_more,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

// writeJSONWithMeta writes a JSON response with metadata.
func writeJSONWithMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data, Meta: meta})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Error: &APIError{Code: code, Message: message},
	})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// parseInt parses an integer from a query parameter with a default.
// It applies bounds validation to prevent resource exhaustion.
func parseInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return service.ValidateLimit(i)
}

// parseOffset parses an offset from a query parameter with a default.
func parseOffset(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return service.ValidateOffset(i)
}

// Health handler

func (rt *router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "backend running"})
}

// Inventory handlers

func (rt *router) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.config.MaxUploadBytes)

	if err := r.ParseMultipartForm(rt.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "expected a multipart upload with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "missing file field")
		return
	}
	defer file.Close()

	result, err := rt.svc.ImportCSV(r.Context(), header.Filename, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if rt.config.Logger != nil {
		rt.config.Logger.Info("inventory imported",
			"filename", header.Filename,
			"accepted", result.Report.RowsAccepted,
			"rejected", result.Report.RowsRejected,
		)
	}

	writeJSON(w, http.StatusCreated, result)
}

func (rt *router) handleListLots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := service.LotListParams{
		Status:      q.Get("status"),
		Category:    q.Get("category"),
		Band:        q.Get("band"),
		WarehouseID: q.Get("warehouse_id"),
		Limit:       parseInt(r, "limit", rt.config.PageSize),
		Offset:      parseOffset(r, "offset", 0),
		OrderBy:     q.Get("order_by"),
		OrderDir:    q.Get("order_dir"),
	}

	list, err := rt.svc.ListLots(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, list.Lots, &Meta{
		TotalCount: list.TotalCount,
		HasMore:    list.HasMore,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
}

func (rt *router) handleGetLot(w http.ResponseWriter, r *http.Request) {
	lot, err := rt.svc.GetLot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

// Import handlers

func (rt *router) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r, "limit", rt.config.PageSize)
	offset := parseOffset(r, "offset", 0)

	list, err := rt.svc.ListImports(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, list.Imports, &Meta{
		TotalCount: list.TotalCount,
		HasMore:    list.HasMore,
		Limit:      limit,
		Offset:     offset,
	})
}

func (rt *router) handleGetImport(w http.ResponseWriter, r *http.Request) {
	imp, err := rt.svc.GetImport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

// Buyer handlers

func (rt *router) handleCreateBuyer(w http.ResponseWriter, r *http.Request) {
	var b buyer.Buyer
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}

	id, err := rt.svc.CreateBuyer(r.Context(), &b)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	created, err := rt.svc.GetBuyer(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (rt *router) handleListBuyers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := service.BuyerListParams{
		Category:   q.Get("category"),
		ActiveOnly: q.Get("active") == "true",
		Limit:      parseInt(r, "limit", rt.config.PageSize),
		Offset:     parseOffset(r, "offset", 0),
		OrderBy:    q.Get("order_by"),
		OrderDir:   q.Get("order_dir"),
	}

	list, err := rt.svc.ListBuyers(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, list.Buyers, &Meta{
		TotalCount: list.TotalCount,
		HasMore:    list.HasMore,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
}

func (rt *router) handleGetBuyer(w http.ResponseWriter, r *http.Request) {
	b, err := rt.svc.GetBuyer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Matching handlers

func (rt *router) handleMatchLot(w http.ResponseWriter, r *http.Request) {
	result, err := rt.svc.MatchLot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Offer handlers

func (rt *router) handleListOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := service.OfferListParams{
		LotID:    q.Get("lot_id"),
		BuyerID:  q.Get("buyer_id"),
		State:    q.Get("state"),
		Limit:    parseInt(r, "limit", rt.config.PageSize),
		Offset:   parseOffset(r, "offset", 0),
		OrderBy:  q.Get("order_by"),
		OrderDir: q.Get("order_dir"),
	}

	list, err := rt.svc.ListOffers(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, list.Offers, &Meta{
		TotalCount: list.TotalCount,
		HasMore:    list.HasMore,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
}

func (rt *router) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := rt.svc.GetOffer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// offerDecisionRequest is the optional body on accept/decline.
type offerDecisionRequest struct {
	Reason string `json:"reason"`
}

func (rt *router) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	var req offerDecisionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	offer, err := rt.svc.AcceptOffer(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (rt *router) handleDeclineOffer(w http.ResponseWriter, r *http.Request) {
	var req offerDecisionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	offer, err := rt.svc.DeclineOffer(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// Dashboard handler

func (rt *router) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.svc.GetDashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

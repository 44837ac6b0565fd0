package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/export"
	"github.com/pesio-ai/be-p2p-workflow/internal/logger"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
	"github.com/pesio-ai/be-p2p-workflow/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	workflow *service.WorkflowService
	analysis *service.AnalysisService
	exporter *export.ReportExporter
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(workflow *service.WorkflowService, analysis *service.AnalysisService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		workflow: workflow,
		analysis: analysis,
		exporter: export.NewReportExporter(export.DefaultExcelOptions()),
		log:      log,
	}
}

// RegisterRoutes mounts every endpoint on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	// Purchase orders
	mux.HandleFunc("GET /api/v1/purchase-orders", h.ListPurchaseOrders)
	mux.HandleFunc("POST /api/v1/purchase-orders", h.CreatePurchaseOrder)
	mux.HandleFunc("GET /api/v1/purchase-orders/{id}", h.GetPurchaseOrder)
	mux.HandleFunc("GET /api/v1/purchase-orders/{id}/summary", h.GetPurchaseOrderSummary)
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/submit", h.SubmitPurchaseOrder)
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/approvals", h.ApprovePurchaseOrder)
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/cancel", h.CancelPurchaseOrder)
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/block", h.BlockPurchaseOrder)
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/unblock", h.UnblockPurchaseOrder)

	// Goods receipts
	mux.HandleFunc("GET /api/v1/goods-receipts", h.ListGoodsReceipts)
	mux.HandleFunc("POST /api/v1/goods-receipts", h.CreateGoodsReceipt)
	mux.HandleFunc("GET /api/v1/goods-receipts/{id}", h.GetGoodsReceipt)
	mux.HandleFunc("POST /api/v1/goods-receipts/{id}/receive", h.MarkReceived)
	mux.HandleFunc("POST /api/v1/goods-receipts/{id}/quality-check", h.QualityCheck)
	mux.HandleFunc("POST /api/v1/goods-receipts/{id}/block", h.BlockGoodsReceipt)
	mux.HandleFunc("POST /api/v1/goods-receipts/{id}/unblock", h.UnblockGoodsReceipt)

	// Invoices
	mux.HandleFunc("GET /api/v1/invoices", h.ListInvoices)
	mux.HandleFunc("POST /api/v1/invoices", h.CreateInvoice)
	mux.HandleFunc("POST /api/v1/invoices/overdue-check", h.CheckOverdue)
	mux.HandleFunc("GET /api/v1/invoices/{id}", h.GetInvoice)
	mux.HandleFunc("POST /api/v1/invoices/{id}/submit", h.SubmitInvoice)
	mux.HandleFunc("POST /api/v1/invoices/{id}/approvals", h.ApproveInvoice)
	mux.HandleFunc("POST /api/v1/invoices/{id}/payment", h.ProcessPayment)
	mux.HandleFunc("POST /api/v1/invoices/{id}/block", h.BlockInvoice)
	mux.HandleFunc("POST /api/v1/invoices/{id}/unblock", h.UnblockInvoice)

	// Workflow queries
	mux.HandleFunc("GET /api/v1/approvals/pending", h.PendingApprovals)
	mux.HandleFunc("GET /api/v1/approvals/policies", h.Policies)
	mux.HandleFunc("GET /api/v1/blocked", h.BlockedDocuments)
	mux.HandleFunc("GET /api/v1/statistics", h.Statistics)
	mux.HandleFunc("GET /api/v1/documents/{id}/audit", h.AuditTrail)

	// Analysis
	mux.HandleFunc("GET /api/v1/analysis/report", h.Report)
	mux.HandleFunc("GET /api/v1/analysis/report.xlsx", h.ReportWorkbook)
	mux.HandleFunc("GET /api/v1/analysis/fraud", h.FraudPatterns)
	mux.HandleFunc("GET /api/v1/analysis/vendor-risk", h.VendorRisk)
	mux.HandleFunc("GET /api/v1/analysis/three-way-match", h.ThreeWayMatch)
	mux.HandleFunc("GET /api/v1/analysis/approval-delays", h.ApprovalDelays)
	mux.HandleFunc("GET /api/v1/analysis/recommendations", h.Recommendations)
	mux.HandleFunc("GET /api/v1/analysis/consolidation", h.Consolidation)
	mux.HandleFunc("GET /api/v1/analysis/risk-distribution", h.RiskDistribution)
	mux.HandleFunc("GET /api/v1/analysis/outliers", h.Outliers)
	mux.HandleFunc("GET /api/v1/analysis/graph-stats", h.GraphStats)
	mux.HandleFunc("GET /api/v1/analysis/categories", h.Categories)
}

// reasonRequest is the body of cancel and block requests.
type reasonRequest struct {
	Reason string `json:"reason"`
}

// ── Purchase orders ──────────────────────────────────────────────────────────

// CreatePurchaseOrder handles create purchase order HTTP requests
func (h *HTTPHandler) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreatePurchaseOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	po, err := h.workflow.CreatePurchaseOrder(r.Context(), &req)
	h.respond(w, r, http.StatusCreated, po, err)
}

func (h *HTTPHandler) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	status := repository.POStatus(r.URL.Query().Get("status"))
	h.writeJSON(w, http.StatusOK, listResponse(h.workflow.ListPurchaseOrders(status)))
}

func (h *HTTPHandler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.workflow.GetPurchaseOrder(r.PathValue("id"))
	h.respond(w, r, http.StatusOK, po, err)
}

func (h *HTTPHandler) GetPurchaseOrderSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.workflow.PurchaseOrderSummary(r.PathValue("id"))
	h.respond(w, r, http.StatusOK, summary, err)
}

func (h *HTTPHandler) SubmitPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.workflow.SubmitPurchaseOrder(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, po, err)
}

func (h *HTTPHandler) ApprovePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req service.ApprovalRequest
	if !h.decode(w, r, &req) {
		return
	}
	po, err := h.workflow.RecordPurchaseOrderApproval(r.Context(), r.PathValue("id"), &req)
	h.respond(w, r, http.StatusOK, po, err)
}

func (h *HTTPHandler) CancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	po, err := h.workflow.CancelPurchaseOrder(r.Context(), r.PathValue("id"), req.Reason)
	h.respond(w, r, http.StatusOK, po, err)
}

func (h *HTTPHandler) BlockPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	po, err := h.workflow.BlockPurchaseOrder(r.Context(), r.PathValue("id"), req.Reason)
	h.respond(w, r, http.StatusOK, po, err)
}

func (h *HTTPHandler) UnblockPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.workflow.UnblockPurchaseOrder(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, po, err)
}

// ── Goods receipts ───────────────────────────────────────────────────────────

// CreateGoodsReceipt handles create goods receipt HTTP requests
func (h *HTTPHandler) CreateGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	var req service.CreateGoodsReceiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	gr, err := h.workflow.CreateGoodsReceipt(r.Context(), &req)
	h.respond(w, r, http.StatusCreated, gr, err)
}

func (h *HTTPHandler) ListGoodsReceipts(w http.ResponseWriter, r *http.Request) {
	status := repository.GRStatus(r.URL.Query().Get("status"))
	h.writeJSON(w, http.StatusOK, listResponse(h.workflow.ListGoodsReceipts(status)))
}

func (h *HTTPHandler) GetGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	gr, err := h.workflow.GetGoodsReceipt(r.PathValue("id"))
	h.respond(w, r, http.StatusOK, gr, err)
}

func (h *HTTPHandler) MarkReceived(w http.ResponseWriter, r *http.Request) {
	gr, err := h.workflow.MarkReceived(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, gr, err)
}

func (h *HTTPHandler) QualityCheck(w http.ResponseWriter, r *http.Request) {
	var req service.QualityCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	gr, err := h.workflow.PerformQualityCheck(r.Context(), r.PathValue("id"), &req)
	h.respond(w, r, http.StatusOK, gr, err)
}

func (h *HTTPHandler) BlockGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	gr, err := h.workflow.BlockGoodsReceipt(r.Context(), r.PathValue("id"), req.Reason)
	h.respond(w, r, http.StatusOK, gr, err)
}

func (h *HTTPHandler) UnblockGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	gr, err := h.workflow.UnblockGoodsReceipt(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, gr, err)
}

// ── Invoices ─────────────────────────────────────────────────────────────────

// CreateInvoice handles create invoice HTTP requests
func (h *HTTPHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req service.CreateInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.workflow.CreateInvoice(r.Context(), &req)
	h.respond(w, r, http.StatusCreated, inv, err)
}

func (h *HTTPHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	status := repository.InvoiceStatus(r.URL.Query().Get("status"))
	h.writeJSON(w, http.StatusOK, listResponse(h.workflow.ListInvoices(status)))
}

func (h *HTTPHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.workflow.GetInvoice(r.PathValue("id"))
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *HTTPHandler) SubmitInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.workflow.SubmitInvoice(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *HTTPHandler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	var req service.ApprovalRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.workflow.RecordInvoiceApproval(r.Context(), r.PathValue("id"), &req)
	h.respond(w, r, http.StatusOK, inv, err)
}

// ProcessPayment handles record payment HTTP requests
func (h *HTTPHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	inv, err := h.workflow.ProcessPayment(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *HTTPHandler) BlockInvoice(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.workflow.BlockInvoice(r.Context(), r.PathValue("id"), req.Reason)
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *HTTPHandler) UnblockInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.workflow.UnblockInvoice(r.Context(), r.PathValue("id"))
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *HTTPHandler) CheckOverdue(w http.ResponseWriter, r *http.Request) {
	ids := h.workflow.CheckOverdue(r.Context())
	if ids == nil {
		ids = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"overdue": ids, "count": len(ids)})
}

// ── Workflow queries ─────────────────────────────────────────────────────────

func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, listResponse(h.workflow.PendingApprovals()))
}

func (h *HTTPHandler) Policies(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, listResponse(h.workflow.Policies()))
}

func (h *HTTPHandler) BlockedDocuments(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, listResponse(h.workflow.BlockedDocuments()))
}

func (h *HTTPHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.workflow.Statistics())
}

// AuditTrail lists the persisted transitions of any document kind.
func (h *HTTPHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.workflow.AuditTrail(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse(entries))
}

// ── Analysis ─────────────────────────────────────────────────────────────────

func (h *HTTPHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.analysis.Report(r.Context())
	h.respond(w, r, http.StatusOK, report, err)
}

// ReportWorkbook streams the full report as an Excel workbook.
func (h *HTTPHandler) ReportWorkbook(w http.ResponseWriter, r *http.Request) {
	report, err := h.analysis.Report(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="p2p-analysis-`+strconv.FormatUint(report.Revision, 10)+`.xlsx"`)
	if err := h.exporter.Export(report, w); err != nil {
		h.log.Error().Err(err).Msg("Failed to stream report workbook")
	}
}

func (h *HTTPHandler) FraudPatterns(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, listResponse(h.analysis.DetectFraudPatterns()))
}

func (h *HTTPHandler) VendorRisk(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, listResponse(h.analysis.VendorRiskScores()))
}

func (h *HTTPHandler) ThreeWayMatch(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, listResponse(h.analysis.ValidateThreeWayMatch()))
}

func (h *HTTPHandler) ApprovalDelays(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, listResponse(h.analysis.PredictApprovalDelays()))
}

// Recommendations handles ?category=...&exclude_high_risk=true|false
// (exclude_high_risk defaults to true).
func (h *HTTPHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	exclude := true
	if v := r.URL.Query().Get("exclude_high_risk"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, errors.InvalidInput("exclude_high_risk", "must be a boolean"))
			return
		}
		exclude = parsed
	}
	recs, err := h.analysis.RecommendVendors(r.URL.Query().Get("category"), exclude)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse(recs))
}

func (h *HTTPHandler) Consolidation(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, listResponse(h.analysis.FindConsolidationOpportunities()))
}

func (h *HTTPHandler) RiskDistribution(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.analysis.DocumentRiskDistribution())
}

func (h *HTTPHandler) Outliers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.analysis.AmountOutliers())
}

func (h *HTTPHandler) GraphStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.analysis.GraphStats())
}

func (h *HTTPHandler) Categories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, listResponse(h.analysis.Categories()))
}

// ── Encoding helpers ─────────────────────────────────────────────────────────

type errorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Field   string           `json:"field,omitempty"`
}

func listResponse[T any](items []T) map[string]any {
	if items == nil {
		items = []T{}
	}
	return map[string]any{"items": items, "count": len(items)}
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return false
	}
	return true
}

func (h *HTTPHandler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, status, body)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	body := errorBody{Code: errors.CodeOf(err), Message: err.Error()}
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		body.Field = appErr.Field
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		body.Message = "internal error"
	}
	h.writeJSON(w, status, map[string]any{"error": body})
}

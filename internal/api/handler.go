package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cardlink-dev/cardlink/internal/cycle"
	"github.com/cardlink-dev/cardlink/internal/importer"
	"github.com/cardlink-dev/cardlink/internal/ledger"
	"github.com/cardlink-dev/cardlink/internal/model"
	"github.com/cardlink-dev/cardlink/internal/statement"
)

// Handler exposes the import protocol and the reconciliation surface
// over HTTP.
type Handler struct {
	svc   *importer.Service
	store *ledger.Store
	log   zerolog.Logger
}

// NewHandler creates an API handler.
func NewHandler(svc *importer.Service, store *ledger.Store, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, store: store, log: log}
}

// Register mounts all routes under /api.
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/health", h.health)

	imp := api.Group("/import")
	imp.POST("/preview", h.parsePreview)
	imp.POST("/match", h.matchPreview)
	imp.POST("/confirm", h.confirm)

	bills := api.Group("/bill-payments")
	bills.GET("", h.listBillPayments)
	bills.DELETE("/:id", h.deleteBillPayment)
	bills.POST("/:id/collapse", h.collapse)

	api.GET("/mismatches", h.listMismatches)
	api.POST("/mismatches/:cycle/dismiss", h.dismissMismatch)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parsePreview handles step 1: multipart upload plus optional format,
// encoding and explicit column mapping form fields. Read-only.
func (h *Handler) parsePreview(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing statement file"})
		return
	}
	defer file.Close()

	opts := statement.ParseOptions{
		Format:   c.PostForm("format"),
		Encoding: c.PostForm("encoding"),
	}
	dateCol := c.PostForm("date_column")
	descCol := c.PostForm("description_column")
	amountCol := c.PostForm("amount_column")
	if dateCol != "" || descCol != "" || amountCol != "" {
		opts.Mapping = &statement.ExplicitMapping{
			DateColumn:        dateCol,
			DescriptionColumn: descCol,
			AmountColumn:      amountCol,
		}
	}

	res, err := h.svc.ParsePreview(file, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type matchRequest struct {
	Lines []model.StatementLine `json:"lines" binding:"required"`
}

// matchPreview handles step 2. Read-only.
func (h *Handler) matchPreview(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.MatchPreview(req.Lines)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type confirmRequest struct {
	Lines         []model.StatementLine `json:"lines" binding:"required"`
	BillPaymentID *uint                 `json:"billPaymentId,omitempty"`
	CategoryID    *uint                 `json:"categoryId,omitempty"`
}

// confirm handles step 3, the only mutating step of the protocol.
func (h *Handler) confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Confirm(req.Lines, req.BillPaymentID, req.CategoryID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// collapse reverses an expand and reports the restored amount.
func (h *Handler) collapse(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bill payment id"})
		return
	}

	restored, err := h.svc.Collapse(uint(id))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restoredAmount": restored})
}

// listBillPayments returns standalone candidates for a given day, for
// the import UI picker.
func (h *Handler) listBillPayments(c *gin.Context) {
	dateStr := c.Query("date")
	if dateStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required (YYYY-MM-DD)"})
		return
	}
	day, err := parseDay(dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}

	bps, err := h.store.StandaloneByDate(day)
	if err != nil {
		h.fail(c, err)
		return
	}
	if bps == nil {
		bps = make([]model.BillPayment, 0)
	}
	c.JSON(http.StatusOK, gin.H{"billPayments": bps})
}

// deleteBillPayment removes a standalone payment; expanded ones are
// refused until collapsed.
func (h *Handler) deleteBillPayment(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bill payment id"})
		return
	}

	if err := h.store.DeleteBillPayment(uint(id)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "bill payment deleted"})
}

func (h *Handler) listMismatches(c *gin.Context) {
	ms, err := h.store.Mismatches()
	if err != nil {
		h.fail(c, err)
		return
	}
	if ms == nil {
		ms = make([]model.CycleMismatch, 0)
	}
	c.JSON(http.StatusOK, gin.H{"mismatches": ms})
}

func (h *Handler) dismissMismatch(c *gin.Context) {
	cyc, err := cycle.Parse(c.Param("cycle"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid billing cycle, expected YYYY-MM"})
		return
	}

	if err := h.store.DismissMismatch(cyc); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "mismatch dismissed"})
}

// fail maps the error taxonomy onto HTTP statuses: import-time errors
// are the client's to fix, precondition conflicts are 409, everything
// else is a server fault.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, statement.ErrUnrecognizedFormat),
		errors.Is(err, statement.ErrMalformedRow),
		errors.Is(err, statement.ErrEmptyStatement):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrBillPaymentNotFound),
		errors.Is(err, ledger.ErrMismatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrAlreadyExpanded),
		errors.Is(err, ledger.ErrNotExpanded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

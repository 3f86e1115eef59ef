package handler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/velis74/notify-engine/internal/domain"
	"github.com/velis74/notify-engine/internal/observability"
	"github.com/velis74/notify-engine/internal/provider"
	"github.com/velis74/notify-engine/internal/repository"
	"go.uber.org/zap"
)

// reportIDKeys are the parameter names gateways use for the dispatch id, in
// lookup order. Matching is case-insensitive.
var reportIDKeys = []string{"id", "pk", "guid", "uuid"}

// DLRHandler receives delivery-report callbacks from gateways. Gateways
// retry aggressively on non-200 responses, so everything except a malformed
// id is acknowledged with 200 and handled (or dropped) internally.
type DLRHandler struct {
	reports   repository.DeliveryReportRepository
	providers *provider.Registry
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewDLRHandler(
	reports repository.DeliveryReportRepository,
	providers *provider.Registry,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*DLRHandler, error) {
	if reports == nil {
		return nil, fmt.Errorf("delivery report repository is required")
	}
	if providers == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DLRHandler{
		reports:   reports,
		providers: providers,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

func RegisterDeliveryReportRoutes(
	router fiber.Router,
	reports repository.DeliveryReportRepository,
	providers *provider.Registry,
	logger *zap.Logger,
	metrics *observability.Metrics,
) error {
	h, err := NewDLRHandler(reports, providers, logger, metrics)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/delivery-reports", h.Receive)
	v1.Post("/delivery-reports", h.Receive)

	return nil
}

func (h *DLRHandler) Receive(c *fiber.Ctx) error {
	params := collectCallbackParams(c)

	id, found := findReportID(params)
	if !found {
		// Some gateways probe the endpoint without a reference. Acknowledge
		// and move on.
		return c.SendStatus(fiber.StatusOK)
	}

	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Errorf("%w: %q is not a valid delivery report id", domain.ErrInvalidIdentifier, id).Error())
	}

	h.process(c, id, params)
	return c.SendStatus(fiber.StatusOK)
}

// process attaches the raw payload and derives the delivery status. All
// failures are logged, never surfaced: the gateway already did its part.
func (h *DLRHandler) process(c *fiber.Ctx, id string, params map[string]string) {
	ctx := c.Context()
	logger := h.logger.With(zap.String("reportId", id))

	payload, err := json.Marshal(params)
	if err != nil {
		logger.Warn("failed to encode callback payload", zap.Error(err))
		return
	}

	if err := h.reports.AttachPayload(ctx, id, string(payload)); err != nil {
		logger.Info("delivery report not matched, dropping callback", zap.Error(err))
		return
	}

	report, err := h.reports.GetByID(ctx, id)
	if err != nil {
		logger.Warn("failed to reload delivery report", zap.Error(err))
		return
	}

	p, err := h.providers.Resolve(report.Provider)
	if err != nil {
		logger.Warn("delivery report references unknown provider",
			zap.String("provider", report.Provider),
			zap.Error(err),
		)
		return
	}

	status, err := p.ParseDeliveryReport(report)
	if err != nil {
		logger.Warn("failed to parse delivery report payload",
			zap.String("provider", report.Provider),
			zap.Error(err),
		)
		return
	}

	if status != report.Status {
		if err := h.reports.UpdateStatus(ctx, id, status); err != nil {
			logger.Warn("failed to update delivery status",
				zap.String("status", status.String()),
				zap.Error(err),
			)
			return
		}
	}

	h.metrics.DeliveryReportObserved(report.Provider, status.String())
	logger.Info("delivery report processed",
		zap.String("provider", report.Provider),
		zap.String("status", status.String()),
	)
}

// collectCallbackParams merges query parameters with the request body, body
// values winning. Bodies may be JSON objects or form-encoded; anything else
// is ignored.
func collectCallbackParams(c *fiber.Ctx) map[string]string {
	params := make(map[string]string)
	for key, value := range c.Queries() {
		params[key] = value
	}

	body := c.Body()
	if len(body) == 0 {
		return params
	}

	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
	switch {
	case strings.Contains(contentType, fiber.MIMEApplicationJSON):
		var decoded map[string]any
		if err := json.Unmarshal(body, &decoded); err == nil {
			for key, value := range decoded {
				params[key] = fmt.Sprintf("%v", value)
			}
		}
	case strings.Contains(contentType, fiber.MIMEApplicationForm):
		if values, err := url.ParseQuery(string(body)); err == nil {
			for key := range values {
				params[key] = values.Get(key)
			}
		}
	}

	return params
}

func findReportID(params map[string]string) (string, bool) {
	lowered := make(map[string]string, len(params))
	for key, value := range params {
		lowered[strings.ToLower(key)] = value
	}

	for _, key := range reportIDKeys {
		if value, ok := lowered[key]; ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

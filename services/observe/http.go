package observe

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusClientClosedRequest is reported when the caller went away before
// the response was ready.
const StatusClientClosedRequest = 499

// HTTPStatus returns the HTTP status for a service error.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// HTTPHandler serves an API as JSON over HTTP.
type HTTPHandler struct {
	api API
}

// NewHTTPHandler creates an HTTP handler for api.
func NewHTTPHandler(api API) *HTTPHandler {
	return &HTTPHandler{api: api}
}

// Routes registers the API routes on r. A non-nil gatherer is exposed at
// /metrics.
func (h *HTTPHandler) Routes(r gin.IRouter, gatherer prometheus.Gatherer) {
	r.GET("/health", h.health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/logs", h.listLogs)
		v1.GET("/traces", h.listSpans)
		v1.GET("/traces/:traceId", h.getTrace)
		v1.GET("/services", h.listServices)
		v1.GET("/metrics", h.queryMetrics)
		v1.GET("/service-map", h.getServiceMap)

		ingest := v1.Group("/ingest")
		ingest.POST("/spans", h.ingestSpans)
		ingest.POST("/logs", h.ingestLogs)
		ingest.POST("/metrics", h.ingestMetrics)
	}
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	msg := err.Error()
	if KindOf(err) == KindInternal {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(HTTPStatus(err), gin.H{
		"error": msg,
		"kind":  KindOf(err).String(),
	})
}

// respond writes v, or the error of the call that produced it.
func respond[T any](h *HTTPHandler, c *gin.Context, v T, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *HTTPHandler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.api.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// timeRange reads timeRange (minutes), start and end (RFC 3339).
func timeRange(c *gin.Context) (TimeRange, error) {
	var r TimeRange
	if v, ok := c.GetQuery("timeRange"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return r, invalidf("timeRange must be a number of minutes, got %q", v)
		}
		if n <= 0 {
			return r, invalidf("timeRange must be positive, got %d", n)
		}
		r.LastMinutes = n
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start", &r.Start}, {"end", &r.End}} {
		v, ok := c.GetQuery(p.name)
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return r, invalidf("%s must be an RFC 3339 timestamp, got %q", p.name, v)
		}
		*p.dst = t
	}
	return r, nil
}

// pageRequest reads page, pageSize, sortBy and sortOrder. Absent numbers
// keep their defaults; present ones are passed through for validation.
func pageRequest(c *gin.Context) (PageRequest, error) {
	p := DefaultPageRequest()
	for _, f := range []struct {
		name string
		dst  *int
	}{{"page", &p.Page}, {"pageSize", &p.PageSize}} {
		v, ok := c.GetQuery(f.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, invalidf("%s must be an integer, got %q", f.name, v)
		}
		*f.dst = n
	}
	p.SortBy = c.Query("sortBy")
	p.SortOrder = c.Query("sortOrder")
	return p, nil
}

func (h *HTTPHandler) listLogs(c *gin.Context) {
	tr, err := timeRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := pageRequest(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.api.ListLogs(c.Request.Context(), LogQuery{
		Service:     c.Query("service"),
		Severity:    c.Query("severity"),
		MinSeverity: c.Query("minSeverity"),
		TraceID:     c.Query("traceId"),
		Search:      c.Query("search"),
		TimeRange:   tr,
		Page:        page,
	})
	respond(h, c, res, err)
}

func (h *HTTPHandler) listSpans(c *gin.Context) {
	tr, err := timeRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := pageRequest(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.api.ListSpans(c.Request.Context(), SpanQuery{
		Service:    c.Query("service"),
		Kind:       c.Query("spanKind"),
		Name:       c.Query("spanName"),
		StatusCode: c.Query("statusCode"),
		TraceID:    c.Query("traceId"),
		Search:     c.Query("search"),
		TimeRange:  tr,
		Page:       page,
	})
	respond(h, c, res, err)
}

func (h *HTTPHandler) getTrace(c *gin.Context) {
	res, err := h.api.GetTrace(c.Request.Context(), TraceQuery{TraceID: c.Param("traceId")})
	respond(h, c, res, err)
}

func (h *HTTPHandler) listServices(c *gin.Context) {
	tr, err := timeRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	services, err := h.api.ListServices(c.Request.Context(), ServicesQuery{TimeRange: tr})
	respond(h, c, ListServicesResponse{Services: services}, err)
}

func (h *HTTPHandler) queryMetrics(c *gin.Context) {
	tr, err := timeRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	points, err := h.api.QueryMetrics(c.Request.Context(), MetricQuery{
		Service:    c.Query("service"),
		MetricName: c.Query("metricName"),
		TimeRange:  tr,
	})
	respond(h, c, QueryMetricsResponse{Points: points}, err)
}

func (h *HTTPHandler) getServiceMap(c *gin.Context) {
	tr, err := timeRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.api.GetServiceMap(c.Request.Context(), ServiceMapQuery{TimeRange: tr})
	respond(h, c, res, err)
}

// bind decodes a JSON body, reporting malformed bodies as invalid input.
func bind(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return errors.Join(invalidf("malformed request body"), err)
	}
	return nil
}

func (h *HTTPHandler) ingestSpans(c *gin.Context) {
	var req IngestSpansRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.api.IngestSpans(c.Request.Context(), req.Spans)
	respond(h, c, res, err)
}

func (h *HTTPHandler) ingestLogs(c *gin.Context) {
	var req IngestLogsRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.api.IngestLogs(c.Request.Context(), req.Logs)
	respond(h, c, res, err)
}

func (h *HTTPHandler) ingestMetrics(c *gin.Context) {
	var req IngestMetricsRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.api.IngestMetrics(c.Request.Context(), req.Points)
	respond(h, c, res, err)
}

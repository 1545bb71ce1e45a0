package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	sverr "github.com/sdrvault/sdrvault/internal/errors"
	"github.com/sdrvault/sdrvault/internal/logging"
	"github.com/sdrvault/sdrvault/internal/retrieve"
	"github.com/sdrvault/sdrvault/internal/stage"
	"github.com/sdrvault/sdrvault/internal/window"
)

// Catalog answers listing queries.
type Catalog interface {
	Bucket() string
	ListFiles(ctx context.Context, date, frequency string) ([]string, error)
	ListFrequencies(ctx context.Context, date string) ([]string, error)
}

// Stager creates and removes workspaces.
type Stager interface {
	Prepare(ctx context.Context, w window.Window, bucket string) (stage.Workspace, error)
	Clear(ctx context.Context, id string) error
	ClearAll(ctx context.Context) (int, error)
}

// Fetcher opens staged audio files.
type Fetcher interface {
	Fetch(ctx context.Context, id, filename string) (*retrieve.Audio, error)
}

// HealthChecker probes the object store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds the dependencies of every SDRVault operation.
type Handler struct {
	catalog Catalog
	stager  Stager
	fetcher Fetcher
	store   HealthChecker
	logger  *slog.Logger
}

// New creates a Handler. store may be nil, in which case /health reports no
// checks and /readyz always succeeds.
func New(catalog Catalog, stager Stager, fetcher Fetcher, store HealthChecker, logger *slog.Logger) *Handler {
	return &Handler{
		catalog: catalog,
		stager:  stager,
		fetcher: fetcher,
		store:   store,
		logger:  logging.WithComponent(logger, "handlers"),
	}
}

// ItemsBody is the listing body shared by every listing operation.
type ItemsBody struct {
	Items []string `json:"Items" doc:"Object keys or frequency labels"`
}

// ItemsOutput is the huma output wrapping ItemsBody.
type ItemsOutput struct {
	Body ItemsBody
}

// FileListInput selects the recordings of one date.
type FileListInput struct {
	Date string `path:"date" doc:"Recording date" example:"2020-02-10"`
}

// FileListFrequencyInput selects the recordings of one date and frequency.
type FileListFrequencyInput struct {
	Date string `path:"date" doc:"Recording date" example:"2020-02-10"`
	Freq string `path:"freq" doc:"Frequency label" example:"b"`
}

// FreqListInput selects the date whose frequencies are listed.
type FreqListInput struct {
	Date string `path:"date" doc:"Recording date" example:"2020-02-10"`
}

// PrepareInput describes the window to stage. Duration is taken as a string
// so malformed values map to InvalidArgument rather than huma's 422.
type PrepareInput struct {
	Start    string `path:"start" doc:"Window start minute" example:"2020-02-10_12-00"`
	Duration string `path:"duration" doc:"Window length in minutes" example:"5"`
}

// PrepareFrequencyInput is PrepareInput restricted to one frequency label.
type PrepareFrequencyInput struct {
	Start    string `path:"start" doc:"Window start minute" example:"2020-02-10_12-00"`
	Duration string `path:"duration" doc:"Window length in minutes" example:"5"`
	Freq     string `path:"freq" doc:"Frequency label" example:"b"`
}

// PrepareBody lists the staged files and the id of their workspace.
type PrepareBody struct {
	Items []string `json:"Items" doc:"Staged file names"`
	UUID  string   `json:"uuid" doc:"Workspace id for later retrieval"`
}

// PrepareOutput is the huma output wrapping PrepareBody.
type PrepareOutput struct {
	Body PrepareBody
}

// ClearInput names the workspace to remove.
type ClearInput struct {
	UUID string `path:"uuid" doc:"Workspace id"`
}

// MessageBody is the acknowledgement returned by the clear operations.
type MessageBody struct {
	Message string `json:"message" example:"success"`
}

// MessageOutput is the huma output wrapping MessageBody.
type MessageOutput struct {
	Body MessageBody
}

// CheckResult is the outcome of one dependency probe.
type CheckResult struct {
	Status string `json:"status" example:"ok"`
	Error  string `json:"error,omitempty"`
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string                 `json:"status" example:"ok" doc:"Health status"`
	Checks map[string]CheckResult `json:"checks,omitempty" doc:"Per-dependency results"`
}

// HealthOutput is the huma output for the health check endpoint.
type HealthOutput struct {
	Status int
	Body   HealthBody
}

func items(list []string) ItemsBody {
	if list == nil {
		list = []string{}
	}
	return ItemsBody{Items: list}
}

// ListFiles handles GET /filelist/{date}.
func (h *Handler) ListFiles(ctx context.Context, input *FileListInput) (*ItemsOutput, error) {
	return h.listFiles(ctx, input.Date, "")
}

// ListFilesFrequency handles GET /filelist/{date}/{freq}.
func (h *Handler) ListFilesFrequency(ctx context.Context, input *FileListFrequencyInput) (*ItemsOutput, error) {
	return h.listFiles(ctx, input.Date, input.Freq)
}

func (h *Handler) listFiles(ctx context.Context, date, freq string) (*ItemsOutput, error) {
	keys, err := h.catalog.ListFiles(ctx, date, freq)
	if err != nil {
		return nil, apiError(h.logger, "ListFiles", err)
	}
	return &ItemsOutput{Body: items(keys)}, nil
}

// ListFrequencies handles GET /freqlist/{date}.
func (h *Handler) ListFrequencies(ctx context.Context, input *FreqListInput) (*ItemsOutput, error) {
	freqs, err := h.catalog.ListFrequencies(ctx, input.Date)
	if err != nil {
		return nil, apiError(h.logger, "ListFrequencies", err)
	}
	return &ItemsOutput{Body: items(freqs)}, nil
}

// PrepareFiles handles GET /preparefiles/{start}/{duration}.
func (h *Handler) PrepareFiles(ctx context.Context, input *PrepareInput) (*PrepareOutput, error) {
	return h.prepare(ctx, input.Start, input.Duration, "")
}

// PrepareFilesFrequency handles GET /preparefiles/{start}/{duration}/{freq}.
func (h *Handler) PrepareFilesFrequency(ctx context.Context, input *PrepareFrequencyInput) (*PrepareOutput, error) {
	return h.prepare(ctx, input.Start, input.Duration, input.Freq)
}

func (h *Handler) prepare(ctx context.Context, start, duration, freq string) (*PrepareOutput, error) {
	w, err := parseWindow(start, duration, freq)
	if err != nil {
		return nil, apiError(h.logger, "Prepare", err)
	}

	ws, err := h.stager.Prepare(ctx, w, h.catalog.Bucket())
	if err != nil {
		// A partially staged workspace stays on disk; tell the client which
		// one so it can be cleared.
		var details []error
		if ws.ID != "" {
			details = append(details, &huma.ErrorDetail{
				Message:  "partially staged workspace left in place",
				Location: "uuid",
				Value:    ws.ID,
			})
		}
		return nil, apiError(h.logger, "Prepare", err, details...)
	}
	return &PrepareOutput{Body: PrepareBody{Items: items(ws.Manifest).Items, UUID: ws.ID}}, nil
}

// parseWindow validates the path parameters of a prepare request.
func parseWindow(start, duration, freq string) (window.Window, error) {
	minutes, err := strconv.Atoi(duration)
	if err != nil {
		return window.Window{}, sverr.ErrInvalidArgument.WithMessage("duration %q is not an integer", duration)
	}
	w, err := window.New(start, minutes, freq)
	if err != nil {
		return window.Window{}, sverr.ErrInvalidArgument.WithMessage("%v", err)
	}
	return w, nil
}

// ClearAll handles GET /clear.
func (h *Handler) ClearAll(ctx context.Context, _ *struct{}) (*MessageOutput, error) {
	n, err := h.stager.ClearAll(ctx)
	if err != nil {
		return nil, apiError(h.logger, "ClearAll", err)
	}
	h.logger.Info("cleared all workspaces", "count", n)
	return &MessageOutput{Body: MessageBody{Message: "success"}}, nil
}

// Clear handles GET /clear/{uuid}.
func (h *Handler) Clear(ctx context.Context, input *ClearInput) (*MessageOutput, error) {
	if err := h.stager.Clear(ctx, input.UUID); err != nil {
		return nil, apiError(h.logger, "Clear", err)
	}
	return &MessageOutput{Body: MessageBody{Message: "success"}}, nil
}

// Health reports liveness and, when withChecks is set, the object store probe.
func (h *Handler) Health(withChecks bool) func(context.Context, *struct{}) (*HealthOutput, error) {
	return func(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
		out := &HealthOutput{Status: http.StatusOK, Body: HealthBody{Status: "ok"}}
		if !withChecks || h.store == nil {
			return out, nil
		}
		result := CheckResult{Status: "ok"}
		if err := h.store.HealthCheck(ctx); err != nil {
			result = CheckResult{Status: "error", Error: err.Error()}
			out.Status = http.StatusServiceUnavailable
			out.Body.Status = "degraded"
		}
		out.Body.Checks = map[string]CheckResult{"storage": result}
		return out, nil
	}
}

// Ready handles GET /readyz: 200 when the object store answers, 503 otherwise.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.HealthCheck(r.Context()); err != nil {
			h.logger.Warn("readiness probe failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// Live handles GET /healthz.
func Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

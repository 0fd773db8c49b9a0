package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/phrazzld/recall-api/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recall"

// Recorder owns the application's collectors. The zero value is not usable;
// create one with New.
type Recorder struct {
	registry *prometheus.Registry
	once     sync.Once

	reviews      *prometheus.CounterVec
	cardsCreated prometheus.Counter
	cardsSkipped prometheus.Counter
	submissions  *prometheus.CounterVec
	resolutions  *prometheus.CounterVec
	importedRows *prometheus.CounterVec
}

// New creates a Recorder with its own registry. Collectors are registered on
// first use of Register or Handler.
func New() *Recorder {
	return &Recorder{
		registry: prometheus.NewRegistry(),
		reviews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reviews_total",
				Help:      "Count of card reviews recorded, by quality grade.",
			},
			[]string{"quality"},
		),
		cardsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cards_initialized_total",
			Help:      "Count of cards created by account initialization.",
		}),
		cardsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cards_initialization_skipped_total",
			Help:      "Count of item/type pairs skipped because the account already had the card.",
		}),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "change_requests",
				Name:      "submitted_total",
				Help:      "Count of change requests submitted, by kind.",
			},
			[]string{"kind"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "change_requests",
				Name:      "resolved_total",
				Help:      "Count of change requests resolved, by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		importedRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "change_requests",
				Name:      "import_rows_total",
				Help:      "Count of spreadsheet import rows, by result.",
			},
			[]string{"result"},
		),
	}
}

// Register registers all collectors plus the Go and process collectors.
// It is safe to call more than once.
func (r *Recorder) Register() {
	r.once.Do(func() {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			r.reviews,
			r.cardsCreated,
			r.cardsSkipped,
			r.submissions,
			r.resolutions,
			r.importedRows,
		)
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	r.Register()
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordReview counts one review with the given quality grade.
func (r *Recorder) RecordReview(quality int) {
	r.reviews.WithLabelValues(strconv.Itoa(quality)).Inc()
}

// RecordInitialization counts the outcome of one card initialization.
func (r *Recorder) RecordInitialization(created, skipped int) {
	r.cardsCreated.Add(float64(created))
	r.cardsSkipped.Add(float64(skipped))
}

// RecordSubmission counts one submitted change request.
func (r *Recorder) RecordSubmission(kind string) {
	r.submissions.WithLabelValues(kind).Inc()
}

// RecordResolution counts one resolved change request.
func (r *Recorder) RecordResolution(kind, outcome string) {
	r.resolutions.WithLabelValues(kind, outcome).Inc()
}

// RecordImport counts the rows of one spreadsheet import.
func (r *Recorder) RecordImport(submitted, skipped int) {
	r.importedRows.WithLabelValues("submitted").Add(float64(submitted))
	r.importedRows.WithLabelValues("skipped").Add(float64(skipped))
}

// ResolutionHandler counts ChangeRequestResolved events. Events of other
// types are ignored.
type ResolutionHandler struct {
	recorder *Recorder
	logger   *slog.Logger
}

// NewResolutionHandler creates an events.EventHandler feeding r.
func NewResolutionHandler(r *Recorder, logger *slog.Logger) *ResolutionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolutionHandler{
		recorder: r,
		logger:   logger.With(slog.String("component", "resolution_metrics")),
	}
}

var _ events.EventHandler = (*ResolutionHandler)(nil)

// HandleEvent implements events.EventHandler.
func (h *ResolutionHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.TypeChangeRequestResolved {
		return nil
	}

	var resolved events.ChangeRequestResolved
	if err := event.UnmarshalPayload(&resolved); err != nil {
		h.logger.Error("failed to decode resolution event",
			slog.String("error", err.Error()),
			slog.String("event_id", event.ID.String()))
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	h.recorder.RecordResolution(resolved.Kind, resolved.Outcome)
	return nil
}

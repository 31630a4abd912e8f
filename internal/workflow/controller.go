// Package workflow implements the connection lifecycle workflow controller:
// parameter entry, validation and export of one open connection, plus the
// redline sub-workflow that feeds AI-suggested parameters back into it.
package workflow

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/steelflow/internal/core/domain"
	"github.com/tjfontaine/steelflow/internal/core/ports"
)

const tracerName = "github.com/tjfontaine/steelflow/internal/workflow"

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithPublisher sets where workflow events are published.
func WithPublisher(p ports.EventPublisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

// WithRejecter wires redline rejection to the service. Without it rejections
// are recorded locally only.
func WithRejecter(r ports.RedlineRejecter) Option {
	return func(c *Controller) {
		c.rejecter = r
	}
}

// WithAuditReader enables the audit trail pass-through reads.
func WithAuditReader(r ports.AuditReader) Option {
	return func(c *Controller) {
		c.audit = r
	}
}

// WithRFIGenerator enables AI-drafted RFIs for the open connection.
func WithRFIGenerator(g ports.RFIGenerator) Option {
	return func(c *Controller) {
		c.rfi = g
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// session is the state of one open connection view. It is discarded, never
// merged, when another connection is opened.
type session struct {
	connectionID string
	connection   *ConnectionStore
	redlines     *RedlineStore
}

// Controller sequences operations on the open connection against the design
// service. It owns no derived state: after every mutation it refreshes from
// the service, which is the sole authority on status and geometry.
type Controller struct {
	svc       ports.DesignService
	rejecter  ports.RedlineRejecter
	audit     ports.AuditReader
	rfi       ports.RFIGenerator
	publisher ports.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu   sync.RWMutex
	sess *session
}

// New creates a controller backed by svc.
func New(svc ports.DesignService, opts ...Option) *Controller {
	c := &Controller{
		svc:    svc,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads a connection and its redlines, replacing any previously open view.
// If the connection cannot be loaded the previous view is left untouched. A
// redline refresh failure is returned after the view has been installed.
func (c *Controller) Open(ctx context.Context, connectionID string) (err error) {
	ctx, span := c.start(ctx, "Open", connectionID)
	defer func() { c.finish(ctx, span, domain.EventConnectionOpened, connectionID, "", err) }()

	sess := &session{
		connectionID: connectionID,
		connection:   NewConnectionStore(c.svc, c.logger),
		redlines:     NewRedlineStore(c.svc, c.rejecter, connectionID, c.logger),
	}
	if _, err := sess.connection.Load(ctx, connectionID); err != nil {
		return domain.AsWorkflowError("open", err)
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	if err := sess.redlines.Refresh(ctx); err != nil {
		return domain.AsWorkflowError("open", err)
	}
	return nil
}

// Close discards the open view.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = nil
}

// ConnectionID returns the id of the open connection, or empty.
func (c *Controller) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.connectionID
}

// Connection returns a snapshot of the open connection.
func (c *Controller) Connection() ConnectionSnapshot {
	sess, err := c.current("connection")
	if err != nil {
		return ConnectionSnapshot{}
	}
	return sess.connection.Snapshot()
}

// Redlines returns a snapshot of the open connection's redlines.
func (c *Controller) Redlines() []domain.Redline {
	sess, err := c.current("redlines")
	if err != nil {
		return nil
	}
	return sess.redlines.Snapshot()
}

// InterpretationInFlight reports whether a redline is being interpreted.
func (c *Controller) InterpretationInFlight(redlineID string) bool {
	sess, err := c.current("interpretation_in_flight")
	if err != nil {
		return false
	}
	return sess.redlines.InFlight(redlineID)
}

// EditParameter updates a draft parameter.
func (c *Controller) EditParameter(key string, value float64) error {
	sess, err := c.current("edit_parameter")
	if err != nil {
		return err
	}
	return sess.connection.EditParameter(key, value)
}

// EditParameterText updates a draft parameter from user text; blank clears it.
func (c *Controller) EditParameterText(key, text string) error {
	sess, err := c.current("edit_parameter")
	if err != nil {
		return err
	}
	return sess.connection.EditParameterText(key, text)
}

// ClearParameter removes a draft parameter.
func (c *Controller) ClearParameter(key string) error {
	sess, err := c.current("edit_parameter")
	if err != nil {
		return err
	}
	return sess.connection.ClearParameter(key)
}

// SaveParameters commits the draft parameters and reloads the connection.
func (c *Controller) SaveParameters(ctx context.Context) (conn *domain.Connection, err error) {
	sess, err := c.current("commit_parameters")
	if err != nil {
		return nil, err
	}
	ctx, span := c.start(ctx, "SaveParameters", sess.connectionID)
	defer func() { c.finish(ctx, span, domain.EventParametersCommitted, sess.connectionID, "", err, statusOf(conn)) }()

	before := sess.connection.Status()
	conn, err = sess.connection.CommitParameters(ctx)
	if err != nil {
		return nil, err
	}
	c.checkTransition(ctx, sess, domain.OpCommitParameters, before, conn.Status)
	c.discardIfStale(sess, "commit_parameters")
	return conn, nil
}

// Validate runs rule and geometry validation. A result whose status is failed
// is a successful call.
func (c *Controller) Validate(ctx context.Context) (result *domain.ValidationResult, err error) {
	sess, err := c.current("run_validation")
	if err != nil {
		return nil, err
	}
	ctx, span := c.start(ctx, "Validate", sess.connectionID)
	defer func() {
		status := ""
		if result != nil {
			status = string(result.Status)
			span.SetAttributes(attribute.Int("steelflow.failed_checks", len(result.FailedChecks())))
		}
		c.finish(ctx, span, domain.EventConnectionValidated, sess.connectionID, "", err, status)
	}()

	before := sess.connection.Status()
	result, err = sess.connection.RunValidation(ctx)
	if err != nil {
		return result, err
	}
	c.checkTransition(ctx, sess, domain.OpRunValidation, before, sess.connection.Status())
	c.discardIfStale(sess, "run_validation")
	return result, nil
}

// Export requests the Tekla export. It is refused locally unless the open
// connection's last known status is validated. The payload is returned unchanged.
func (c *Controller) Export(ctx context.Context) (payload *domain.ExportPayload, err error) {
	sess, err := c.current("run_export")
	if err != nil {
		return nil, err
	}
	ctx, span := c.start(ctx, "Export", sess.connectionID)
	defer func() { c.finish(ctx, span, domain.EventConnectionExported, sess.connectionID, "", err) }()

	before := sess.connection.Status()
	payload, err = sess.connection.RunExport(ctx)
	if err != nil {
		return payload, err
	}
	c.checkTransition(ctx, sess, domain.OpRunExport, before, sess.connection.Status())
	c.discardIfStale(sess, "run_export")
	return payload, nil
}

// ExportReceipt describes an export handed to a sink.
type ExportReceipt struct {
	Payload  *domain.ExportPayload `json:"payload"`
	Name     string                `json:"name"`
	Location string                `json:"location"`
}

// ExportTo exports and stores the Tekla document in sink under the
// connection's export file name.
func (c *Controller) ExportTo(ctx context.Context, sink ports.ExportSink) (*ExportReceipt, error) {
	sess, err := c.current("run_export")
	if err != nil {
		return nil, err
	}
	payload, err := c.Export(ctx)
	if err != nil {
		return nil, err
	}
	if payload.Empty() {
		return nil, domain.ErrTransportf("service returned an empty export").WithOp("run_export")
	}
	// The session captured above names the file even if Close ran meanwhile.
	snap := sess.connection.Snapshot()
	if snap.Connection == nil {
		return nil, domain.ErrPreconditionf("connection %s is no longer loaded", sess.connectionID).WithOp("store_export")
	}
	name := domain.ExportFileName(snap.Connection.Name)
	location, err := sink.Put(ctx, name, bytes.NewReader(payload.TeklaExport), int64(len(payload.TeklaExport)))
	if err != nil {
		return nil, domain.AsWorkflowError("store_export", err)
	}
	c.logger.Info("export stored",
		slog.String("connection_id", snap.Connection.ID),
		slog.String("location", location),
	)
	return &ExportReceipt{Payload: payload, Name: name, Location: location}, nil
}

// GenerateRFI drafts an RFI about issue from the open connection's persisted
// view. The draft is advisory and changes nothing on the connection.
func (c *Controller) GenerateRFI(ctx context.Context, issue string) (draft *domain.RFIDraft, err error) {
	sess, err := c.current("generate_rfi")
	if err != nil {
		return nil, err
	}
	issue = strings.TrimSpace(issue)
	if issue == "" {
		return nil, domain.ErrValidationf("an issue description is required").WithOp("generate_rfi")
	}
	if c.rfi == nil {
		return nil, domain.ErrPreconditionf("RFI drafting is not available").WithOp("generate_rfi")
	}
	snap := sess.connection.Snapshot()
	if snap.Connection == nil {
		return nil, domain.ErrPreconditionf("connection %s is no longer loaded", sess.connectionID).WithOp("generate_rfi")
	}

	ctx, span := c.start(ctx, "GenerateRFI", sess.connectionID)
	defer func() { c.finish(ctx, span, domain.EventRFIDrafted, sess.connectionID, "", err) }()

	draft, err = c.rfi.GenerateRFI(ctx, snap.Connection, issue)
	if err != nil {
		return nil, domain.AsWorkflowError("generate_rfi", err)
	}
	return draft, nil
}

// RefreshRedlines reloads the redline collection.
func (c *Controller) RefreshRedlines(ctx context.Context) (err error) {
	sess, err := c.current("refresh_redlines")
	if err != nil {
		return err
	}
	ctx, span := c.start(ctx, "RefreshRedlines", sess.connectionID)
	defer func() { c.finish(ctx, span, domain.EventRedlinesRefreshed, sess.connectionID, "", err) }()
	return sess.redlines.Refresh(ctx)
}

// UploadOutcome reports the upload and the automatic interpretation that
// follows it as independent steps.
type UploadOutcome struct {
	RedlineID      string                 `json:"redline_id,omitempty"`
	Upload         StepResult             `json:"upload"`
	Interpret      StepResult             `json:"interpret"`
	Interpretation *domain.Interpretation `json:"interpretation,omitempty"`
	// RefreshErr is a collection refresh failure after a successful upload.
	RefreshErr error `json:"-"`
}

// Err returns the first step failure, or nil when both steps completed.
func (o *UploadOutcome) Err() error {
	if o.Upload.Err != nil {
		return o.Upload.Err
	}
	return o.Interpret.Err
}

// UploadRedline uploads a markup file and then interprets the new redline.
// An interpretation failure does not undo the upload.
func (c *Controller) UploadRedline(ctx context.Context, fileName string, file []byte) *UploadOutcome {
	out := &UploadOutcome{}
	sess, err := c.current("upload_redline")
	if err != nil {
		out.Upload = StepResult{Name: "upload", State: StepFailed, Err: err}
		out.Interpret = StepResult{Name: "interpret", State: StepSkipped}
		return out
	}

	seq := NewSequence(
		Step{Name: "upload", Run: func(ctx context.Context) (err error) {
			ctx, span := c.start(ctx, "UploadRedline", sess.connectionID)
			defer func() { c.finish(ctx, span, domain.EventRedlineUploaded, sess.connectionID, out.RedlineID, err) }()

			receipt, err := sess.redlines.Upload(ctx, file, fileName)
			if receipt == nil {
				return err
			}
			out.RedlineID = receipt.RedlineID
			out.RefreshErr = err
			return nil
		}},
		Step{Name: "interpret", Run: func(ctx context.Context) error {
			result, err := c.interpret(ctx, sess, out.RedlineID)
			out.Interpretation = result
			return err
		}},
	)
	results := seq.Run(ctx)
	out.Upload, out.Interpret = results[0], results[1]
	c.discardIfStale(sess, "upload_redline")
	return out
}

// InterpretRedline runs AI interpretation for one redline.
func (c *Controller) InterpretRedline(ctx context.Context, redlineID string) (*domain.Interpretation, error) {
	sess, err := c.current("interpret_redline")
	if err != nil {
		return nil, err
	}
	result, err := c.interpret(ctx, sess, redlineID)
	c.discardIfStale(sess, "interpret_redline")
	return result, err
}

func (c *Controller) interpret(ctx context.Context, sess *session, redlineID string) (result *domain.Interpretation, err error) {
	ctx, span := c.start(ctx, "InterpretRedline", sess.connectionID)
	span.SetAttributes(attribute.String("steelflow.redline_id", redlineID))
	defer func() {
		status := ""
		if result != nil {
			status = string(result.Status)
		}
		c.finish(ctx, span, domain.EventRedlineInterpreted, sess.connectionID, redlineID, err, status)
	}()
	return sess.redlines.Interpret(ctx, redlineID)
}

// ApproveRedline approves a redline's suggested parameters, or overrides when
// given. The service merges them into the connection; the connection is then
// reloaded before the redline collection so readers never see the new
// redline status next to stale parameters.
func (c *Controller) ApproveRedline(ctx context.Context, redlineID string, overrides domain.Parameters) (approval *domain.Approval, err error) {
	sess, err := c.current("approve_redline")
	if err != nil {
		return nil, err
	}
	ctx, span := c.start(ctx, "ApproveRedline", sess.connectionID)
	span.SetAttributes(attribute.String("steelflow.redline_id", redlineID))
	defer func() { c.finish(ctx, span, domain.EventRedlineApproved, sess.connectionID, redlineID, err) }()

	approval, err = sess.redlines.Approve(ctx, redlineID, overrides)
	if err != nil {
		return nil, err
	}
	if _, err := sess.connection.Load(ctx, sess.connectionID); err != nil {
		return approval, domain.AsWorkflowError("approve_redline", err)
	}
	if err := sess.redlines.Refresh(ctx); err != nil {
		return approval, domain.AsWorkflowError("approve_redline", err)
	}
	c.discardIfStale(sess, "approve_redline")
	return approval, nil
}

// RejectRedline records a rejection without touching the connection.
func (c *Controller) RejectRedline(ctx context.Context, redlineID string) (err error) {
	sess, err := c.current("reject_redline")
	if err != nil {
		return err
	}
	ctx, span := c.start(ctx, "RejectRedline", sess.connectionID)
	span.SetAttributes(
		attribute.String("steelflow.redline_id", redlineID),
		attribute.Bool("steelflow.remote_reject", c.rejecter != nil),
	)
	defer func() { c.finish(ctx, span, domain.EventRedlineRejected, sess.connectionID, redlineID, err) }()
	return sess.redlines.Reject(ctx, redlineID)
}

// AuditTrail returns the service's audit entries for the open connection.
func (c *Controller) AuditTrail(ctx context.Context) ([]domain.AuditEntry, error) {
	sess, err := c.current("audit_trail")
	if err != nil {
		return nil, err
	}
	if c.audit == nil {
		return nil, domain.ErrPreconditionf("audit trail is not available").WithOp("audit_trail")
	}
	entries, err := c.audit.ConnectionAudit(ctx, sess.connectionID)
	if err != nil {
		return nil, domain.AsWorkflowError("audit_trail", err)
	}
	return entries, nil
}

// MyActivity returns the caller's recent audit entries.
func (c *Controller) MyActivity(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if c.audit == nil {
		return nil, domain.ErrPreconditionf("audit trail is not available").WithOp("my_activity")
	}
	entries, err := c.audit.MyActivity(ctx, limit)
	if err != nil {
		return nil, domain.AsWorkflowError("my_activity", err)
	}
	return entries, nil
}

func (c *Controller) current(op string) (*session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return nil, domain.ErrPreconditionf("no connection is open").WithOp(op)
	}
	return c.sess, nil
}

// discardIfStale logs when an operation finished after its connection was closed.
// The operation's stores belonged to the old session, so nothing reaches the
// current view.
func (c *Controller) discardIfStale(sess *session, op string) {
	c.mu.RLock()
	stale := c.sess != sess
	c.mu.RUnlock()
	if stale {
		c.logger.Debug("discarding result for closed connection",
			slog.String("connection_id", sess.connectionID),
			slog.String("op", op),
		)
	}
}

func (c *Controller) checkTransition(ctx context.Context, sess *session, op domain.ConnectionOp, before, after domain.ConnectionStatus) {
	if before.IsExpectedTransition(op, after) {
		return
	}
	c.logger.Warn("unexpected connection transition",
		slog.String("connection_id", sess.connectionID),
		slog.String("op", string(op)),
		slog.String("from", string(before)),
		slog.String("to", string(after)),
	)
	c.publish(ctx, &domain.WorkflowEvent{
		Type:         domain.EventUnexpectedTransition,
		ConnectionID: sess.connectionID,
		Outcome:      domain.OutcomeOK,
		Message:      string(op) + ": " + string(before) + " -> " + string(after),
		Status:       string(after),
		Timestamp:    c.now(),
	})
}

func (c *Controller) start(ctx context.Context, name, connectionID string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "workflow."+name,
		trace.WithAttributes(attribute.String("steelflow.connection_id", connectionID)),
	)
}

func (c *Controller) finish(ctx context.Context, span trace.Span, eventType domain.WorkflowEventType, connectionID, redlineID string, err error, status ...string) {
	defer span.End()

	event := &domain.WorkflowEvent{
		Type:         eventType,
		ConnectionID: connectionID,
		RedlineID:    redlineID,
		Outcome:      domain.OutcomeOK,
		Timestamp:    c.now(),
	}
	if len(status) > 0 {
		event.Status = status[0]
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		event.Outcome = domain.OutcomeFailed
		event.ErrorKind = domain.KindOf(err)
		event.Message = err.Error()
		c.logger.Warn("workflow operation failed",
			slog.String("event", string(eventType)),
			slog.String("connection_id", connectionID),
			slog.String("redline_id", redlineID),
			slog.String("kind", string(event.ErrorKind)),
			slog.String("error", err.Error()),
		)
	} else {
		c.logger.Info("workflow operation completed",
			slog.String("event", string(eventType)),
			slog.String("connection_id", connectionID),
			slog.String("redline_id", redlineID),
			slog.String("status", event.Status),
		)
	}
	c.publish(ctx, event)
}

func (c *Controller) publish(ctx context.Context, event *domain.WorkflowEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish workflow event",
			slog.String("event", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func statusOf(conn *domain.Connection) string {
	if conn == nil {
		return ""
	}
	return string(conn.Status)
}

// Package controller drives a load request from any source through
// resolution, object URL allocation, the viewer and the validator, and keeps
// the session consistent with the latest request.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/classify"
	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/history"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/metrics"
	"github.com/kamkard/gltfview/internal/objurl"
	"github.com/kamkard/gltfview/internal/session"
	"github.com/kamkard/gltfview/internal/validator"
	"github.com/kamkard/gltfview/internal/viewer"
)

// ErrSuperseded is returned by Load when a newer request started before this
// one settled. The session reflects the newer request only.
var ErrSuperseded = errors.New("load superseded by a newer request")

// Notifier surfaces classified errors to the user.
type Notifier interface {
	Alert(seq uint64, err *classify.Error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(seq uint64, err *classify.Error)

func (f NotifierFunc) Alert(seq uint64, err *classify.Error) { f(seq, err) }

// Fetcher downloads a remote asset into memory.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fileset.Bytes, error)
}

// Outcome describes a settled load attempt.
type Outcome struct {
	ID         string
	Seq        uint64
	Source     SourceKind
	Root       string
	BasePath   string
	Candidates []string
	DisplayURL string
	Scene      *viewer.Scene
	Err        *classify.Error
	Validated  bool
	Duration   time.Duration
}

// Config wires the controller's collaborators. Validator, Fetcher, Notifier
// and History are optional.
type Config struct {
	Session   *session.Session
	Broker    *objurl.Broker
	Viewer    viewer.Viewer
	Validator validator.Validator
	Fetcher   Fetcher
	Notifier  Notifier
	History   history.Recorder

	// Kiosk suppresses validation.
	Kiosk bool
	// LoadTimeout bounds one attempt; 0 disables it.
	LoadTimeout time.Duration
}

// Controller is the only component that mutates the session.
type Controller struct {
	cfg Config
}

// New creates a controller.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Session returns the controlled session for read-only use.
func (c *Controller) Session() *session.Session { return c.cfg.Session }

// Kiosk reports whether validation is suppressed.
func (c *Controller) Kiosk() bool { return c.cfg.Kiosk }

// Load runs one attempt. It returns the outcome together with the classified
// error on failure, or ErrSuperseded when a newer attempt replaced this one.
// The display URL allocated for the attempt is released before Load returns.
func (c *Controller) Load(ctx context.Context, src Source) (*Outcome, error) {
	start := time.Now()
	seq, prev := c.cfg.Session.Begin()
	log := logging.ForAttempt(seq).With(zap.Stringer("source", src))
	if prev.State != session.Empty {
		c.cfg.Viewer.Clear()
	}

	out := &Outcome{ID: uuid.NewString(), Seq: seq, Source: src.Kind()}
	log.Info("load started", zap.String("previous", string(prev.State)))

	if c.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.LoadTimeout)
		defer cancel()
	}

	err := c.run(ctx, seq, src, out, log)
	out.Duration = time.Since(start)

	switch {
	case errors.Is(err, ErrSuperseded):
		log.Info("load superseded", zap.Duration("duration", out.Duration))
		c.settle(ctx, out, start, history.OutcomeSuperseded)
		return out, ErrSuperseded
	case err != nil:
		if ctx.Err() == context.DeadlineExceeded && c.cfg.LoadTimeout > 0 {
			err = classify.Tag(classify.ViewerFailure, fmt.Errorf("load timed out after %s: %w", c.cfg.LoadTimeout, err))
		}
		ce := classify.Classify(err)
		out.Err = ce
		if !c.cfg.Session.Fail(seq, ce) {
			log.Info("stale failure discarded", zap.Error(err))
			c.settle(ctx, out, start, history.OutcomeSuperseded)
			return out, ErrSuperseded
		}
		metrics.RecordLoadError(string(ce.Kind))
		log.Error("load failed",
			zap.String("kind", string(ce.Kind)),
			zap.String("message", ce.Message),
			zap.Error(err))
		if c.cfg.Notifier != nil {
			c.cfg.Notifier.Alert(seq, ce)
		}
		c.settle(ctx, out, start, history.OutcomeError)
		return out, ce
	}

	log.Info("load displayed",
		zap.String("root", out.Root),
		zap.String("scene", out.Scene.ID),
		zap.Bool("validated", out.Validated),
		zap.Duration("duration", out.Duration))
	c.settle(ctx, out, start, history.OutcomeDisplayed)
	return out, nil
}

func (c *Controller) run(ctx context.Context, seq uint64, src Source, out *Outcome, log *zap.Logger) error {
	set, err := c.normalize(ctx, src)
	if err != nil {
		return err
	}

	res, err := fileset.Resolve(set)
	if err != nil {
		return err
	}
	out.Root = res.Root.Key
	out.BasePath = res.BasePath
	out.Candidates = res.Candidates
	if len(res.Candidates) > 1 {
		log.Warn("multiple root assets, using the first",
			zap.String("root", res.Root.Key),
			zap.Strings("candidates", res.Candidates))
	}

	displayURL, err := c.cfg.Broker.Allocate(res.Root)
	if err != nil {
		return err
	}
	defer func() {
		c.cfg.Broker.Release(displayURL)
		c.cfg.Session.ReleaseURL(displayURL)
	}()
	out.DisplayURL = displayURL
	if !c.cfg.Session.SetActiveURL(seq, displayURL) {
		return ErrSuperseded
	}

	scene, err := c.cfg.Viewer.Load(ctx, displayURL, res.BasePath, res.Siblings)
	if err != nil {
		return err
	}
	out.Scene = scene
	if !c.cfg.Session.Display(seq, scene) {
		return ErrSuperseded
	}

	// Only a displayed scene is validated.
	if !c.cfg.Kiosk && c.cfg.Validator != nil {
		c.cfg.Validator.Validate(context.WithoutCancel(ctx), displayURL, res.BasePath, res.Siblings, scene)
		out.Validated = true
	}
	return nil
}

// normalize turns any source into a file set.
func (c *Controller) normalize(ctx context.Context, src Source) (fileset.Set, error) {
	switch src.kind {
	case SourceAddress:
		return addressSet(src.address), nil
	case SourceFiles:
		if src.files == nil {
			return fileset.Set{}, nil
		}
		return src.files, nil
	case SourceHandle:
		if src.handle == nil {
			return fileset.Set{}, nil
		}
		return fileset.Set{src.handle.Name(): src.handle}, nil
	case SourceFetch:
		if c.cfg.Fetcher == nil {
			return nil, fmt.Errorf("no fetcher configured for %s", src.address)
		}
		b, err := c.cfg.Fetcher.Fetch(ctx, src.address)
		if err != nil {
			return nil, err
		}
		return fileset.Set{b.Name(): b}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.kind)
	}
}

// settle records metrics and history for a finished attempt.
func (c *Controller) settle(ctx context.Context, out *Outcome, start time.Time, outcome string) {
	metrics.RecordLoad(string(out.Source), outcome, out.Duration)
	if c.cfg.History == nil {
		return
	}

	a := history.Attempt{
		ID:         out.ID,
		Seq:        out.Seq,
		Source:     string(out.Source),
		Root:       out.Root,
		Outcome:    outcome,
		StartedAt:  start,
		DurationMs: out.Duration.Milliseconds(),
	}
	if out.Err != nil {
		a.Kind = string(out.Err.Kind)
		a.Message = out.Err.Message
	}
	if out.Scene != nil && outcome == history.OutcomeDisplayed {
		a.SceneID = out.Scene.ID
	}
	if err := c.cfg.History.RecordAttempt(context.WithoutCancel(ctx), a); err != nil {
		logging.ForAttempt(out.Seq).Warn("failed to record load history", zap.Error(err))
	}
}

package session

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deeplearn-app/deeplearn/internal/assign"
	"github.com/deeplearn-app/deeplearn/internal/catalog"
	"github.com/deeplearn-app/deeplearn/internal/metrics"
	"github.com/deeplearn-app/deeplearn/internal/model"
	"github.com/deeplearn-app/deeplearn/internal/policy"
	"github.com/deeplearn-app/deeplearn/internal/scoring"
)

// Assigner picks the display order for a group.
type Assigner interface {
	Assign(group model.ItemGroup) model.DisplayOrder
}

// Publisher receives one telemetry event per accepted submission. It must not block.
type Publisher interface {
	Enqueue(ev model.TelemetryEvent)
}

// Controller walks a user through the groups of one catalog. All methods are safe
// for concurrent use; intents are applied one at a time.
type Controller struct {
	mu sync.Mutex

	id      string
	userID  string
	tag     model.SessionTag
	catalog model.Catalog

	policy     *policy.Policy
	assigner   Assigner
	publisher  Publisher
	now        func() time.Time
	onComplete func(model.State)

	phase    model.Phase
	index    int
	order    model.DisplayOrder
	draft    model.AnswerDraft
	answers  map[int]model.SubmittedAnswer
	notified bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithPolicy sets the submission policy. The default requires a clue.
func WithPolicy(p *policy.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithAssigner sets the display order source.
func WithAssigner(a Assigner) Option {
	return func(c *Controller) { c.assigner = a }
}

// WithPublisher sets where telemetry events go. Without one, events are dropped.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithClock overrides time.Now for submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithOnComplete registers fn to run once when the session reaches Complete.
// fn runs after the controller lock is released and may call back into it.
func WithOnComplete(fn func(model.State)) Option {
	return func(c *Controller) { c.onComplete = fn }
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// Start creates a controller presenting the first group of cat. The controller
// keeps its own copy of cat.
func Start(cat model.Catalog, tag model.SessionTag, userID string, opts ...Option) (*Controller, error) {
	if cat.Len() == 0 {
		return nil, fmt.Errorf("start %s session: %w", tag, catalog.ErrEmpty)
	}
	c := &Controller{
		userID:  userID,
		tag:     tag,
		catalog: cat.Clone(),
		answers: make(map[int]model.SubmittedAnswer),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.policy == nil {
		c.policy = policy.New(policy.ClueRequired, 0, "")
	}
	if c.assigner == nil {
		c.assigner = assign.New()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.enter(0)

	slog.Info("session started",
		"session_id", c.id, "user_id", userID, "tag", tag,
		"catalog", cat.Name, "groups", cat.Len(), "mode", c.policy.Mode.Name)
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// State returns a snapshot of the session.
func (c *Controller) State() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Answer returns the recorded answer for group i, including correctness
// regardless of the session tag.
func (c *Controller) Answer(i int) (model.SubmittedAnswer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.answers[i]
	if !ok {
		return model.SubmittedAnswer{}, false
	}
	a.Draft = a.Draft.Clone()
	a.Order = slices.Clone(a.Order)
	a.SelectedCanonical = slices.Clone(a.SelectedCanonical)
	a.GroundTruth = slices.Clone(a.GroundTruth)
	return a, true
}

// ToggleSelection flips the selection of the item at view position pos.
func (c *Controller) ToggleSelection(pos int) (model.State, error) {
	return c.do(func() error {
		if err := c.editable(IntentToggleSelection); err != nil {
			return err
		}
		if pos < 0 || pos >= len(c.order) {
			return &InvalidIntentError{
				Intent: IntentToggleSelection,
				Reason: fmt.Sprintf("position %d outside [0,%d)", pos, len(c.order)),
			}
		}
		sel := c.draft.SelectedViews
		if i := slices.Index(sel, pos); i >= 0 {
			c.draft.SelectedViews = slices.Delete(slices.Clone(sel), i, i+1)
			return nil
		}
		sel = append(slices.Clone(sel), pos)
		slices.Sort(sel)
		c.draft.SelectedViews = sel
		return nil
	})
}

// ToggleClue flips a clue label; the policy's nothing label excludes all others.
func (c *Controller) ToggleClue(label string) (model.State, error) {
	return c.do(func() error {
		if err := c.editable(IntentToggleClue); err != nil {
			return err
		}
		if label == "" {
			return &InvalidIntentError{Intent: IntentToggleClue, Reason: "empty clue label"}
		}
		c.draft.Clues = c.policy.ToggleClue(c.draft.Clues, label)
		return nil
	})
}

// SetOtherClue replaces the free-text clue.
func (c *Controller) SetOtherClue(text string) (model.State, error) {
	return c.do(func() error {
		if err := c.editable(IntentSetOtherClue); err != nil {
			return err
		}
		c.draft.OtherClue = text
		return nil
	})
}

// SetReasoning replaces the reasoning text.
func (c *Controller) SetReasoning(text string) (model.State, error) {
	return c.do(func() error {
		if err := c.editable(IntentSetReasoning); err != nil {
			return err
		}
		c.draft.Reasoning = text
		return nil
	})
}

// SetConfidence sets the confidence rating.
func (c *Controller) SetConfidence(v int) (model.State, error) {
	return c.do(func() error {
		if err := c.editable(IntentSetConfidence); err != nil {
			return err
		}
		if v < model.MinConfidence || v > model.MaxConfidence {
			return &InvalidIntentError{
				Intent: IntentSetConfidence,
				Reason: fmt.Sprintf("confidence %d outside %d..%d", v, model.MinConfidence, model.MaxConfidence),
			}
		}
		c.draft.Confidence = v
		return nil
	})
}

// Submit scores the draft, records it and hands a telemetry event to the
// publisher. Delivery happens in the background; the session moves to Feedback
// immediately.
func (c *Controller) Submit() (model.State, error) {
	return c.do(func() error {
		if err := c.editable(IntentSubmit); err != nil {
			return err
		}
		if missing := c.policy.Explain(c.draft); missing != nil {
			return &InvalidIntentError{Intent: IntentSubmit, Missing: missing}
		}

		c.phase = model.PhaseSubmitting
		group := c.catalog.Groups[c.index]
		res := scoring.Score(group, c.order, c.draft.SelectedViews)
		ans := model.SubmittedAnswer{
			GroupIndex:        c.index,
			Draft:             c.draft.Clone(),
			Order:             slices.Clone(c.order),
			SelectedCanonical: res.CanonicalSelections,
			GroundTruth:       res.GroundTruth,
			Correct:           res.Correct,
			SubmittedAt:       c.now(),
		}
		c.answers[c.index] = ans

		if c.publisher != nil {
			c.publisher.Enqueue(c.event(group, ans))
		}
		metrics.Submissions.WithLabelValues(string(c.tag), strconv.FormatBool(ans.Correct)).Inc()
		slog.Info("answer submitted",
			"session_id", c.id, "tag", c.tag, "group_index", c.index, "correct", ans.Correct)

		c.phase = model.PhaseFeedback
		return nil
	})
}

// Advance moves past the feedback screen to the next group, or to Complete
// after the last one.
func (c *Controller) Advance() (model.State, error) {
	return c.do(func() error {
		switch c.phase {
		case model.PhaseComplete:
			return &InvalidIntentError{Intent: IntentAdvance, Err: ErrComplete}
		case model.PhaseFeedback:
		default:
			return &InvalidIntentError{Intent: IntentAdvance, Reason: "current group not submitted"}
		}
		if c.index+1 < c.catalog.Len() {
			c.enter(c.index + 1)
			return nil
		}
		c.phase = model.PhaseComplete
		slog.Info("session complete", "session_id", c.id, "tag", c.tag, "answered", len(c.answers))
		return nil
	})
}

// Restart discards all answers and presents the first group again with a fresh
// display order.
func (c *Controller) Restart() (model.State, error) {
	return c.do(func() error {
		c.answers = make(map[int]model.SubmittedAnswer)
		c.notified = false
		c.enter(0)
		slog.Info("session restarted", "session_id", c.id, "tag", c.tag)
		return nil
	})
}

// do runs fn under the lock and fires onComplete once the session first reaches
// Complete.
func (c *Controller) do(fn func() error) (model.State, error) {
	c.mu.Lock()
	err := fn()
	st := c.snapshot()
	notify := c.phase == model.PhaseComplete && !c.notified
	if notify {
		c.notified = true
	}
	cb := c.onComplete
	c.mu.Unlock()

	if notify && cb != nil {
		cb(st)
	}
	return st, err
}

func (c *Controller) enter(i int) {
	c.index = i
	c.order = c.assigner.Assign(c.catalog.Groups[i])
	c.draft = model.NewDraft()
	c.phase = model.PhasePresenting
}

func (c *Controller) editable(kind IntentKind) error {
	if c.phase == model.PhaseComplete {
		return &InvalidIntentError{Intent: kind, Err: ErrComplete}
	}
	if _, ok := c.answers[c.index]; ok {
		return &AlreadySubmittedError{GroupIndex: c.index}
	}
	return nil
}

func (c *Controller) snapshot() model.State {
	st := model.State{
		SessionID:  c.id,
		UserID:     c.userID,
		Tag:        c.tag,
		Phase:      c.phase,
		GroupIndex: c.index,
		GroupCount: c.catalog.Len(),
		Answered:   len(c.answers),
	}
	if c.phase == model.PhaseComplete {
		return st
	}

	group := c.catalog.Groups[c.index]
	st.Title = group.Title
	st.Prompt = group.Description
	st.Items = make([]model.ViewItem, len(c.order))
	for v, canon := range c.order {
		st.Items[v] = model.ViewItem{Position: v, URL: group.Items[canon].URL}
	}
	st.Draft = c.draft.Clone()

	ans, ok := c.answers[c.index]
	st.Submitted = ok
	if ok && c.phase == model.PhaseFeedback {
		fb := &model.Feedback{GroupIndex: c.index}
		if c.tag.ExposesCorrectness() {
			correct := ans.Correct
			fb.Correct = &correct
			fb.SyntheticViews = ans.Order.MapToView(ans.GroundTruth)
		}
		st.Feedback = fb
	}
	return st
}

func (c *Controller) event(group model.ItemGroup, ans model.SubmittedAnswer) model.TelemetryEvent {
	clues := ans.Draft.Clues
	if clues == nil {
		clues = []string{}
	}
	return model.TelemetryEvent{
		EventID:             uuid.NewString(),
		SessionID:           c.id,
		UserID:              c.userID,
		SessionTag:          c.tag,
		GroupIndex:          ans.GroupIndex,
		GroupTitle:          group.Title,
		ViewOrder:           slices.Clone(ans.Order),
		CanonicalSelections: slices.Clone(ans.SelectedCanonical),
		GroundTruthIndices:  slices.Clone(ans.GroundTruth),
		Correct:             ans.Correct,
		Clues:               clues,
		OtherClue:           ans.Draft.OtherClue,
		Reasoning:           ans.Draft.Reasoning,
		Confidence:          ans.Draft.Confidence,
		Timestamp:           ans.SubmittedAt,
	}
}

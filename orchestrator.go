package creditgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tariff is the fixed price of each request kind.
type Tariff struct {
	Chat decimal.Decimal
	RAG  decimal.Decimal
}

// DefaultTariff returns the stock prices: 1 credit per chat, 2 per RAG query.
func DefaultTariff() Tariff {
	return Tariff{
		Chat: decimal.NewFromFloat(DefaultChatTariff),
		RAG:  decimal.NewFromFloat(DefaultRAGTariff),
	}
}

// Orchestrator gates chat and RAG requests behind the credit ledger.
//
// Every request is validated before credit is touched. Once a reservation
// exists, every failure refunds that same reservation before the error is
// returned; success commits it.
type Orchestrator struct {
	ledger       CreditLedger
	router       *ProviderRouter
	retriever    Retriever
	meter        Meter
	logger       *slog.Logger
	tariff       Tariff
	instructions string
	assembler    PromptAssembler
	topK         int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetriever enables RAGQuery.
func WithRetriever(r Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithLogger sets the logger used for ledger settlement failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTariff sets the per-request prices.
func WithTariff(t Tariff) Option {
	return func(o *Orchestrator) { o.tariff = t }
}

// WithInstructions sets the base instructions used when a request
// carries none.
func WithInstructions(s string) Option {
	return func(o *Orchestrator) { o.instructions = s }
}

// WithPromptBudget bounds the estimated token count of RAG prompts.
func WithPromptBudget(tokens int64) Option {
	return func(o *Orchestrator) { o.assembler.Budget = tokens }
}

// WithTopK sets how many passages are retrieved per RAG query.
func WithTopK(k int) Option {
	return func(o *Orchestrator) { o.topK = k }
}

// New creates an Orchestrator over a ledger and a provider router.
func New(ledger CreditLedger, router *ProviderRouter, opts ...Option) (*Orchestrator, error) {
	if ledger == nil {
		return nil, fmt.Errorf("creditgate: ledger is required")
	}
	if router == nil {
		return nil, fmt.Errorf("creditgate: router is required")
	}

	o := &Orchestrator{
		ledger: ledger,
		router: router,
		tariff: DefaultTariff(),
		topK:   DefaultTopK,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.meter == nil {
		o.meter = noopMeter{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.topK <= 0 {
		o.topK = DefaultTopK
	}
	if !o.tariff.Chat.IsPositive() || !o.tariff.RAG.IsPositive() {
		return nil, fmt.Errorf("creditgate: tariffs must be positive, got chat=%s rag=%s", o.tariff.Chat, o.tariff.RAG)
	}
	return o, nil
}

// Chat answers a conversation. Instructions, if any, become a leading
// system message.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	t := o.track(RequestChat, req.AccountID, req.Target.Model)

	if err := checkChat(req); err != nil {
		return ChatResponse{}, t.fail(err)
	}
	if err := o.router.Validate(ctx, req.Target); err != nil {
		return ChatResponse{}, t.fail(err)
	}

	res, err := o.ledger.Reserve(ctx, req.AccountID, o.tariff.Chat)
	if err != nil {
		return ChatResponse{}, t.fail(err)
	}
	t.stage(StageAdmitted, res.ID)

	messages := chatMessages(o.instructionsFor(req.Instructions), req.Messages)
	t.stage(StageDispatched, res.ID)
	c, err := o.router.Complete(ctx, req.Target, messages)
	if err != nil {
		return ChatResponse{}, t.fail(o.refund(ctx, t, res, err))
	}

	o.commit(ctx, t, res)
	resp := ChatResponse{
		Content:  c.Content,
		Model:    c.Model,
		Usage:    c.Usage,
		Charged:  res.Amount,
		Duration: time.Since(t.start),
	}
	t.succeed(res.Amount, c.Usage)
	return resp, nil
}

// RAGQuery answers a question grounded in an ingested document. The
// returned SourceChunks are exactly the passages placed in the prompt.
func (o *Orchestrator) RAGQuery(ctx context.Context, req RAGRequest) (RAGResponse, error) {
	t := o.track(RequestRAG, req.AccountID, req.Target.Model)

	if o.retriever == nil {
		return RAGResponse{}, t.fail(fmt.Errorf("creditgate: RAG queries require a retriever"))
	}
	if err := checkRAG(req); err != nil {
		return RAGResponse{}, t.fail(err)
	}
	if err := o.router.Validate(ctx, req.Target); err != nil {
		return RAGResponse{}, t.fail(err)
	}

	res, err := o.ledger.Reserve(ctx, req.AccountID, o.tariff.RAG)
	if err != nil {
		return RAGResponse{}, t.fail(err)
	}
	t.stage(StageAdmitted, res.ID)

	t.stage(StageRetrieving, res.ID)
	chunks, err := o.retriever.Retrieve(ctx, req.DocumentID, req.Question, o.topK)
	if err == nil && len(chunks) == 0 {
		err = &DocumentNotFoundError{DocumentID: req.DocumentID}
	}
	if err != nil {
		return RAGResponse{}, t.fail(o.refund(ctx, t, res, err))
	}

	prompt, used := o.assembler.Assemble(o.instructionsFor(req.Instructions), chunks, req.Question)
	t.stage(StageDispatched, res.ID)
	c, err := o.router.Complete(ctx, req.Target, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return RAGResponse{}, t.fail(o.refund(ctx, t, res, err))
	}

	o.commit(ctx, t, res)
	sources := make([]string, len(used))
	for i, ch := range used {
		sources[i] = ch.Text
	}
	resp := RAGResponse{
		Answer:       c.Content,
		SourceChunks: sources,
		Model:        c.Model,
		Usage:        c.Usage,
		Charged:      res.Amount,
		Duration:     time.Since(t.start),
	}
	t.succeed(res.Amount, c.Usage)
	return resp, nil
}

func (o *Orchestrator) instructionsFor(override string) string {
	if override != "" {
		return override
	}
	return o.instructions
}

// refund returns the reservation's credit and then the original error.
// The refund runs detached from ctx so a cancelled request still restores
// credit.
func (o *Orchestrator) refund(ctx context.Context, t *tracker, res Reservation, cause error) error {
	if err := o.ledger.Refund(context.WithoutCancel(ctx), res); err != nil {
		o.logger.Error("refund failed",
			"account", res.AccountID,
			"reservation", res.ID,
			"amount", res.Amount.String(),
			"error", err,
		)
		return errors.Join(cause, fmt.Errorf("creditgate: refund reservation %s: %w", res.ID, err))
	}
	t.stage(StageRefunded, res.ID)
	return cause
}

// commit settles a delivered request. The debit already happened at
// reserve time, so a failed commit is logged and the response still
// returned.
func (o *Orchestrator) commit(ctx context.Context, t *tracker, res Reservation) {
	if err := o.ledger.Commit(context.WithoutCancel(ctx), res); err != nil {
		o.logger.Error("commit failed",
			"account", res.AccountID,
			"reservation", res.ID,
			"error", err,
		)
	}
	t.stage(StageSucceeded, res.ID)
}

func checkChat(req ChatRequest) error {
	if strings.TrimSpace(req.AccountID) == "" {
		return malformed("account_id is required")
	}
	if len(req.Messages) == 0 {
		return malformed("at least one message is required")
	}
	for i, m := range req.Messages {
		if m.Role == "" {
			return malformed("messages[%d].role is required", i)
		}
		if m.Content == "" {
			return malformed("messages[%d].content is required", i)
		}
	}
	return nil
}

func checkRAG(req RAGRequest) error {
	if strings.TrimSpace(req.AccountID) == "" {
		return malformed("account_id is required")
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		return malformed("document_id is required")
	}
	if strings.TrimSpace(req.Question) == "" {
		return malformed("question is required")
	}
	return nil
}

// tracker emits the lifecycle events of one request.
type tracker struct {
	meter   Meter
	kind    RequestKind
	account string
	model   string
	start   time.Time
}

func (o *Orchestrator) track(kind RequestKind, account, model string) *tracker {
	return &tracker{meter: o.meter, kind: kind, account: account, model: model, start: time.Now()}
}

func (t *tracker) stage(s Stage, reservationID string) {
	t.meter.OnStage(StageEvent{
		AccountID:     t.account,
		Kind:          t.kind,
		Model:         t.model,
		Stage:         s,
		ReservationID: reservationID,
		Elapsed:       time.Since(t.start),
	})
}

func (t *tracker) succeed(charged decimal.Decimal, usage Usage) {
	t.meter.OnResult(ResultEvent{
		AccountID: t.account,
		Kind:      t.kind,
		Model:     t.model,
		Success:   true,
		Charged:   charged,
		Duration:  time.Since(t.start),
		Usage:     usage,
	})
}

func (t *tracker) fail(err error) error {
	t.meter.OnResult(ResultEvent{
		AccountID: t.account,
		Kind:      t.kind,
		Model:     t.model,
		Duration:  time.Since(t.start),
		Error:     err,
	})
	return err
}

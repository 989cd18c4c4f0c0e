package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gigledger/escrow/internal/events"
	"github.com/gigledger/escrow/internal/gateway"
	"github.com/gigledger/escrow/internal/idempotency"
	"github.com/gigledger/escrow/internal/metrics"
	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
	"github.com/shopspring/decimal"
)

type PaymentConfig struct {
	FeePercent         decimal.Decimal
	SettlementCurrency string
	ExchangeRate       decimal.Decimal // USD -> SettlementCurrency
}

func DefaultPaymentConfig() PaymentConfig {
	return PaymentConfig{
		FeePercent:         decimal.NewFromFloat(1.0),
		SettlementCurrency: "INR",
		ExchangeRate:       decimal.NewFromFloat(83.0),
	}
}

// PaymentService creates gateway orders for milestones and turns gateway
// confirmations into funded and released milestones.
type PaymentService struct {
	store  repo.Store
	gw     gateway.Gateway
	signer *gateway.Signer
	idem   idempotency.Store
	bus    *events.Bus
	cfg    PaymentConfig
	log    *slog.Logger
}

func NewPaymentService(store repo.Store, gw gateway.Gateway, signer *gateway.Signer, idem idempotency.Store, bus *events.Bus, cfg PaymentConfig, log *slog.Logger) *PaymentService {
	if log == nil {
		log = slog.Default()
	}
	if idem == nil {
		idem = idempotency.NewMemory(0)
	}
	return &PaymentService{store: store, gw: gw, signer: signer, idem: idem, bus: bus, cfg: cfg, log: log}
}

type CreateOrderInput struct {
	MilestoneID string
	// IdempotencyKey is optional; a replay returns the order the first call created.
	IdempotencyKey string
}

func receiptFor(milestoneID string) string {
	id := strings.ReplaceAll(milestoneID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "ms_" + id
}

// CreateOrder opens a gateway order for a pending milestone. Only the
// contract's client or an admin may fund a milestone.
func (s *PaymentService) CreateOrder(ctx context.Context, a Actor, in CreateOrderInput) (models.PaymentOrder, error) {
	if in.MilestoneID == "" {
		return models.PaymentOrder{}, validationf("milestone_id is required")
	}

	var idemKey string
	if in.IdempotencyKey != "" {
		idemKey = "payment_order:" + a.UserID + ":" + in.IdempotencyKey
		prior, err := s.idem.Begin(ctx, idemKey)
		if errors.Is(err, idempotency.ErrInProgress) {
			return models.PaymentOrder{}, fmt.Errorf("%w: a request with this idempotency key is in progress", ErrConflict)
		}
		if err != nil {
			return models.PaymentOrder{}, err
		}
		if prior != "" {
			o, err := s.store.Repos().PaymentOrders.GetByID(ctx, prior)
			return o, lookup("payment order", err)
		}
	}

	o, err := s.createOrder(ctx, a, in.MilestoneID)
	if idemKey != "" {
		if err != nil {
			_ = s.idem.Abort(ctx, idemKey)
		} else if cerr := s.idem.Commit(ctx, idemKey, o.ID); cerr != nil {
			s.log.Error("idempotency commit failed", "key", idemKey, "err", cerr)
		}
	}
	return o, err
}

func (s *PaymentService) createOrder(ctx context.Context, a Actor, milestoneID string) (models.PaymentOrder, error) {
	r := s.store.Repos()
	m, err := r.Milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return models.PaymentOrder{}, lookup("milestone", err)
	}
	c, err := r.Contracts.GetByID(ctx, m.ContractID)
	if err != nil {
		return models.PaymentOrder{}, lookup("contract", err)
	}
	if !a.IsAdmin() && a.UserID != c.ClientID {
		return models.PaymentOrder{}, forbiddenf("only the contract client can fund a milestone")
	}
	if m.Status != models.MilestonePending {
		return models.PaymentOrder{}, transitionf("milestone is %s, only pending milestones can be funded", m.Status)
	}
	// one open order per milestone, so the client is never asked to pay twice
	switch open, err := r.PaymentOrders.OpenByMilestone(ctx, m.ID); {
	case err == nil && open.Status == models.PaymentCreated:
		s.log.Info("reusing open payment order", "order_id", open.ID, "milestone_id", m.ID)
		return open, nil
	case err == nil:
		return models.PaymentOrder{}, fmt.Errorf("%w: milestone already has a paid order", ErrConflict)
	case !errors.Is(err, repo.ErrNotFound):
		return models.PaymentOrder{}, fmt.Errorf("load open order: %w", err)
	}

	// converted once here and stored; verification never recomputes it
	settlement := m.Amount.Mul(s.cfg.ExchangeRate).Round(2)
	minor := settlement.Mul(hundred).Round(0).IntPart()

	gwOrder, err := s.gw.CreateOrder(ctx, gateway.OrderRequest{
		AmountMinor: minor,
		Currency:    s.cfg.SettlementCurrency,
		Receipt:     receiptFor(m.ID),
		Notes: map[string]string{
			"milestone_id": m.ID,
			"contract_id":  c.ID,
			"usd_amount":   m.Amount.StringFixed(2),
		},
	})
	if err != nil {
		return models.PaymentOrder{}, fmt.Errorf("create gateway order: %w", err)
	}

	mid := m.ID
	o, err := r.PaymentOrders.Create(ctx, models.PaymentOrder{
		MilestoneID:      &mid,
		UserID:           a.UserID,
		GatewayOrderID:   gwOrder.ID,
		Amount:           m.Amount,
		Currency:         s.cfg.SettlementCurrency,
		SettlementAmount: settlement,
		ExchangeRate:     s.cfg.ExchangeRate,
		Status:           models.PaymentCreated,
	})
	if err != nil {
		return models.PaymentOrder{}, fmt.Errorf("store payment order: %w", err)
	}
	s.log.Info("payment order created", "order_id", o.ID, "gateway_order_id", o.GatewayOrderID,
		"milestone_id", m.ID, "amount", o.Amount.StringFixed(2), "settlement", settlement.StringFixed(2))
	return o, nil
}

func (s *PaymentService) Get(ctx context.Context, a Actor, id string) (models.PaymentOrder, error) {
	o, err := s.store.Repos().PaymentOrders.GetByID(ctx, id)
	if err != nil {
		return models.PaymentOrder{}, lookup("payment order", err)
	}
	if !a.IsAdmin() && o.UserID != a.UserID {
		return models.PaymentOrder{}, forbiddenf("not your payment order")
	}
	return o, nil
}

func (s *PaymentService) ListByUser(ctx context.Context, a Actor, userID string) ([]models.PaymentOrder, error) {
	if !a.IsAdmin() && a.UserID != userID {
		return nil, forbiddenf("cannot list another user's payments")
	}
	return s.store.Repos().PaymentOrders.ListByUser(ctx, userID)
}

// Delete is an administrative cleanup of orders that never got paid.
func (s *PaymentService) Delete(ctx context.Context, a Actor, id string) error {
	if !a.IsAdmin() {
		return forbiddenf("admin only")
	}
	return s.store.WithTx(ctx, func(r repo.Repositories) error {
		o, err := r.PaymentOrders.GetByID(ctx, id)
		if err != nil {
			return lookup("payment order", err)
		}
		if o.Status == models.PaymentPaid || o.PayoutStatus != nil {
			return fmt.Errorf("%w: a paid payment order is part of the ledger and cannot be deleted", ErrConflict)
		}
		err = r.PaymentOrders.Delete(ctx, id)
		if errors.Is(err, repo.ErrConstraint) {
			return fmt.Errorf("%w: payment order is referenced by ledger entries", ErrConflict)
		}
		if err != nil {
			return lookup("payment order", err)
		}
		return audit(ctx, r, "payment_order", id, "deleted", a.UserID, nil)
	})
}

type VerifyInput struct {
	OrderID   string // gateway order id
	PaymentID string
	Signature string
}

type GatewayStatusInput struct {
	OrderID   string
	PaymentID string
	Status    models.PaymentOrderStatus
}

// VerifyResult is the state after a confirmation. AlreadyPaid marks a replay
// whose payment side effects had already been applied.
type VerifyResult struct {
	Order       models.PaymentOrder `json:"order"`
	Milestone   *models.Milestone   `json:"milestone,omitempty"`
	Release     *ReleaseResult      `json:"release,omitempty"`
	AlreadyPaid bool                `json:"already_paid"`
	// Duplicate marks an order paid after its milestone was already funded by
	// another one. It is recorded but never paid out; the client needs a refund.
	Duplicate bool `json:"duplicate_payment,omitempty"`
}

const (
	sourceCheckout = "checkout"
	sourceWebhook  = "webhook"
)

// Verify authenticates a checkout callback and confirms the payment.
func (s *PaymentService) Verify(ctx context.Context, in VerifyInput) (VerifyResult, error) {
	if in.OrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return VerifyResult{}, validationf("order_id, payment_id and signature are required")
	}
	if !s.signer.Verify(in.OrderID, in.PaymentID, in.Signature) {
		metrics.PaymentVerificationsTotal.WithLabelValues(sourceCheckout, "invalid_signature").Inc()
		s.log.Warn("payment signature mismatch", "gateway_order_id", in.OrderID, "payment_id", in.PaymentID)
		return VerifyResult{}, ErrInvalidSignature
	}
	paymentID := in.PaymentID
	return s.confirm(ctx, in.OrderID, &paymentID, sourceCheckout)
}

// ApplyGatewayStatus handles a status push from the gateway webhook. The
// channel is authenticated by the caller; here only transitions that have not
// been applied yet take effect, and a paid order is never downgraded.
func (s *PaymentService) ApplyGatewayStatus(ctx context.Context, in GatewayStatusInput) (VerifyResult, error) {
	if in.OrderID == "" {
		return VerifyResult{}, validationf("order_id is required")
	}
	switch in.Status {
	case models.PaymentPaid:
		var pid *string
		if in.PaymentID != "" {
			pid = &in.PaymentID
		}
		return s.confirm(ctx, in.OrderID, pid, sourceWebhook)
	case models.PaymentFailed:
		return s.markFailed(ctx, in.OrderID)
	case models.PaymentCreated:
		o, err := s.store.Repos().PaymentOrders.GetByGatewayOrderIDForUpdate(ctx, in.OrderID)
		if err != nil {
			return VerifyResult{}, lookup("payment order", err)
		}
		return VerifyResult{Order: o, AlreadyPaid: o.Status == models.PaymentPaid}, nil
	}
	return VerifyResult{}, validationf("unknown payment status %q", in.Status)
}

func (s *PaymentService) markFailed(ctx context.Context, gatewayOrderID string) (VerifyResult, error) {
	var res VerifyResult
	changed := false
	err := s.store.WithTx(ctx, func(r repo.Repositories) error {
		o, err := r.PaymentOrders.GetByGatewayOrderIDForUpdate(ctx, gatewayOrderID)
		if err != nil {
			return lookup("payment order", err)
		}
		res.Order = o
		if o.Status != models.PaymentCreated {
			res.AlreadyPaid = o.Status == models.PaymentPaid
			return nil
		}
		if res.Order, err = r.PaymentOrders.UpdateStatus(ctx, o.ID, models.PaymentFailed); err != nil {
			return fmt.Errorf("mark order failed: %w", err)
		}
		changed = true
		return audit(ctx, r, "payment_order", o.ID, "failed", "", map[string]any{"source": sourceWebhook})
	})
	if err != nil {
		return VerifyResult{}, err
	}
	if changed {
		s.bus.Emit(events.Event{
			Type:        events.PaymentFailed,
			AggregateID: res.Order.ID,
			Data:        map[string]any{"gateway_order_id": gatewayOrderID},
		})
	}
	return res, nil
}

// confirm marks the order paid and funds its milestone in one transaction,
// then releases the milestone in a second one. A failed release leaves the
// payment and funding committed and is reported as ErrReleaseFailed.
func (s *PaymentService) confirm(ctx context.Context, gatewayOrderID string, paymentID *string, source string) (VerifyResult, error) {
	var res VerifyResult
	err := s.store.WithTx(ctx, func(r repo.Repositories) error {
		o, err := r.PaymentOrders.GetByGatewayOrderIDForUpdate(ctx, gatewayOrderID)
		if err != nil {
			return lookup("payment order", err)
		}
		if o.Status == models.PaymentPaid {
			res.AlreadyPaid = true
		} else {
			if o, err = r.PaymentOrders.MarkPaid(ctx, o.ID, paymentID); err != nil {
				return fmt.Errorf("mark order paid: %w", err)
			}
			if err := audit(ctx, r, "payment_order", o.ID, "paid", "", map[string]any{"source": source}); err != nil {
				return err
			}
		}
		res.Order = o

		if o.MilestoneID == nil {
			return nil
		}
		m, err := r.Milestones.GetForUpdate(ctx, *o.MilestoneID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load milestone: %w", err)
		}
		switch {
		case m.Status == models.MilestonePending:
			if m, err = r.Milestones.UpdateStatus(ctx, m.ID, models.MilestoneFunded); err != nil {
				return fmt.Errorf("fund milestone: %w", err)
			}
			if err := audit(ctx, r, "milestone", m.ID, "funded", "", map[string]any{"payment_order_id": o.ID}); err != nil {
				return err
			}
		case !res.AlreadyPaid:
			res.Duplicate = true
			if err := audit(ctx, r, "payment_order", o.ID, "duplicate_payment", "", map[string]any{
				"milestone_id":     m.ID,
				"milestone_status": string(m.Status),
				"amount":           o.Amount.StringFixed(2),
			}); err != nil {
				return err
			}
		}
		res.Milestone = &m
		return nil
	})
	if err != nil {
		metrics.PaymentVerificationsTotal.WithLabelValues(source, "error").Inc()
		return VerifyResult{}, err
	}

	if res.Duplicate {
		s.log.Warn("duplicate payment for already funded milestone", "order_id", res.Order.ID,
			"gateway_order_id", gatewayOrderID, "milestone_id", res.Milestone.ID, "amount", res.Order.Amount.StringFixed(2))
	}
	if res.AlreadyPaid {
		metrics.PaymentVerificationsTotal.WithLabelValues(source, "replayed").Inc()
	} else {
		metrics.PaymentVerificationsTotal.WithLabelValues(source, "verified").Inc()
		s.log.Info("payment verified", "order_id", res.Order.ID, "gateway_order_id", gatewayOrderID, "source", source)
		s.bus.Emit(events.Event{
			Type:        events.PaymentVerified,
			AggregateID: res.Order.ID,
			Data: map[string]any{
				"gateway_order_id": gatewayOrderID,
				"milestone_id":     res.Order.MilestoneID,
				"amount":           res.Order.Amount.StringFixed(2),
			},
		})
	}

	// A replay still retries a release that did not finish the first time.
	if res.Milestone == nil || res.Milestone.Status != models.MilestoneFunded {
		return res, nil
	}
	rel, err := s.Release(ctx, res.Milestone.ID)
	if err != nil {
		s.log.Error("auto-release failed", "milestone_id", res.Milestone.ID, "order_id", res.Order.ID, "err", err)
		return res, fmt.Errorf("%w: %v", ErrReleaseFailed, err)
	}
	res.Release = &rel
	res.Milestone = &rel.Milestone
	if rel.Order.ID != "" {
		res.Order = rel.Order
	}
	return res, nil
}

type ReleaseResult struct {
	Milestone        models.Milestone          `json:"milestone"`
	Order            models.PaymentOrder       `json:"order"`
	Transaction      *models.WalletTransaction `json:"transaction,omitempty"`
	FreelancerAmount decimal.Decimal           `json:"freelancer_amount"`
	PlatformFee      decimal.Decimal           `json:"platform_fee"`
	AlreadyReleased  bool                      `json:"already_released"`
}

// Release pays a funded milestone out to the contract's freelancer, less the
// platform fee, and marks it released. It is safe to call repeatedly: a
// released milestone is returned as is, and an existing completed credit for
// the milestone is never repeated.
func (s *PaymentService) Release(ctx context.Context, milestoneID string) (ReleaseResult, error) {
	var res ReleaseResult
	err := s.store.WithTx(ctx, func(r repo.Repositories) error {
		m, err := r.Milestones.GetForUpdate(ctx, milestoneID)
		if err != nil {
			return lookup("milestone", err)
		}
		switch m.Status {
		case models.MilestoneReleased:
			res.Milestone, res.AlreadyReleased = m, true
			return nil
		case models.MilestonePending:
			return transitionf("milestone %s is not funded", m.ID)
		}

		o, err := r.PaymentOrders.PaidByMilestone(ctx, m.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: milestone %s has no paid payment order", ErrConflict, m.ID)
			}
			return fmt.Errorf("load paid order: %w", err)
		}
		c, err := r.Contracts.GetByID(ctx, m.ContractID)
		if err != nil {
			return lookup("contract", err)
		}

		// the split follows what the client actually paid
		fee, net := ComputeFee(o.Amount, s.cfg.FeePercent)
		res.PlatformFee, res.FreelancerAmount = fee, net

		_, err = r.WalletTransactions.CompletedCreditForMilestone(ctx, m.ID)
		switch {
		case err == nil:
			s.log.Warn("milestone already credited, skipping credit", "milestone_id", m.ID)
		case errors.Is(err, repo.ErrNotFound):
			w, err := r.Wallets.GetOrCreate(ctx, c.FreelancerID)
			if err != nil {
				return fmt.Errorf("freelancer wallet: %w", err)
			}
			mid, oid := m.ID, o.ID
			t, err := post(ctx, r, entry{
				walletID:    w.ID,
				typ:         models.WalletTxCredit,
				amount:      net,
				description: "Payment for milestone: " + m.Title,
				ref:         LedgerRef{MilestoneID: &mid, PaymentOrderID: &oid},
			})
			if err != nil {
				return err
			}
			res.Transaction = &t
		default:
			return fmt.Errorf("check existing credit: %w", err)
		}

		if o.PayoutStatus == nil || *o.PayoutStatus != models.PayoutProcessed {
			o, err = r.PaymentOrders.RecordPayout(ctx, o.ID, models.Payout{
				Status:        models.PayoutProcessed,
				Amount:        net,
				Fee:           fee,
				FeePercentage: s.cfg.FeePercent,
			})
			if err != nil {
				return fmt.Errorf("record payout: %w", err)
			}
		}
		res.Order = o

		if res.Milestone, err = r.Milestones.UpdateStatus(ctx, m.ID, models.MilestoneReleased); err != nil {
			return fmt.Errorf("release milestone: %w", err)
		}
		return audit(ctx, r, "milestone", m.ID, "released", "", map[string]any{
			"payment_order_id":  o.ID,
			"freelancer_id":     c.FreelancerID,
			"freelancer_amount": net.StringFixed(2),
			"platform_fee":      fee.StringFixed(2),
		})
	})
	if err != nil {
		metrics.ReleasesTotal.WithLabelValues("failed").Inc()
		return ReleaseResult{}, err
	}
	if res.AlreadyReleased {
		metrics.ReleasesTotal.WithLabelValues("already_released").Inc()
		return res, nil
	}

	metrics.ReleasesTotal.WithLabelValues("released").Inc()
	if res.Transaction != nil {
		metrics.LedgerEntriesTotal.WithLabelValues(string(models.WalletTxCredit)).Inc()
	}
	s.log.Info("milestone released", "milestone_id", res.Milestone.ID,
		"freelancer_amount", res.FreelancerAmount.StringFixed(2), "platform_fee", res.PlatformFee.StringFixed(2))
	s.bus.Emit(events.Event{
		Type:        events.MilestoneReleased,
		AggregateID: res.Milestone.ID,
		Data: map[string]any{
			"payment_order_id":  res.Order.ID,
			"freelancer_amount": res.FreelancerAmount.StringFixed(2),
			"platform_fee":      res.PlatformFee.StringFixed(2),
		},
	})
	return res, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
	"github.com/shopspring/decimal"
)

// Releaser pays out a funded milestone. PaymentService implements it.
type Releaser interface {
	Release(ctx context.Context, milestoneID string) (ReleaseResult, error)
}

type MilestoneService struct {
	store    repo.Store
	releaser Releaser
	log      *slog.Logger
}

func NewMilestoneService(store repo.Store, releaser Releaser, log *slog.Logger) *MilestoneService {
	if log == nil {
		log = slog.Default()
	}
	return &MilestoneService{store: store, releaser: releaser, log: log}
}

type CreateMilestoneInput struct {
	ContractID string
	Title      string
	Amount     decimal.Decimal
	DueDate    *time.Time
}

type UpdateMilestoneInput struct {
	Title   *string
	Amount  *decimal.Decimal
	DueDate *time.Time
}

type MilestoneList struct {
	Milestones      []models.Milestone `json:"milestones"`
	TotalAmount     decimal.Decimal    `json:"total_amount"`
	PaidAmount      decimal.Decimal    `json:"paid_amount"`
	RemainingAmount decimal.Decimal    `json:"remaining_amount"`
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationf("amount must be > 0")
	}
	if !cents(amount) {
		return validationf("amount must have at most 2 decimal places")
	}
	return nil
}

func (s *MilestoneService) contract(ctx context.Context, id string) (models.Contract, error) {
	c, err := s.store.Repos().Contracts.GetByID(ctx, id)
	return c, lookup("contract", err)
}

// participant allows the contract's client, its freelancer, or an admin.
func participant(a Actor, c models.Contract) error {
	if a.IsAdmin() || c.IsParticipant(a.UserID) {
		return nil
	}
	return forbiddenf("not a participant of this contract")
}

// clientOrAdmin guards direct milestone state changes.
func clientOrAdmin(a Actor, c models.Contract) error {
	if a.IsAdmin() || c.ClientID == a.UserID {
		return nil
	}
	return forbiddenf("only the contract client can change milestone status")
}

func (s *MilestoneService) Create(ctx context.Context, a Actor, in CreateMilestoneInput) (models.Milestone, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.ContractID == "" {
		return models.Milestone{}, validationf("contract_id is required")
	}
	if in.Title == "" {
		return models.Milestone{}, validationf("title is required")
	}
	if err := checkAmount(in.Amount); err != nil {
		return models.Milestone{}, err
	}
	c, err := s.contract(ctx, in.ContractID)
	if err != nil {
		return models.Milestone{}, err
	}
	if err := participant(a, c); err != nil {
		return models.Milestone{}, err
	}

	m, err := s.store.Repos().Milestones.Create(ctx, models.Milestone{
		ContractID: c.ID,
		Title:      in.Title,
		Amount:     in.Amount,
		DueDate:    in.DueDate,
		Status:     models.MilestonePending,
	})
	if err != nil {
		return models.Milestone{}, fmt.Errorf("create milestone: %w", err)
	}
	s.log.Info("milestone created", "milestone_id", m.ID, "contract_id", c.ID, "amount", m.Amount.StringFixed(2))
	return m, nil
}

// load fetches a milestone and its contract and checks the caller against guard.
func (s *MilestoneService) load(ctx context.Context, a Actor, id string, guard func(Actor, models.Contract) error) (models.Milestone, models.Contract, error) {
	m, err := s.store.Repos().Milestones.GetByID(ctx, id)
	if err != nil {
		return models.Milestone{}, models.Contract{}, lookup("milestone", err)
	}
	c, err := s.contract(ctx, m.ContractID)
	if err != nil {
		return models.Milestone{}, models.Contract{}, err
	}
	if err := guard(a, c); err != nil {
		return models.Milestone{}, models.Contract{}, err
	}
	return m, c, nil
}

func (s *MilestoneService) Get(ctx context.Context, a Actor, id string) (models.Milestone, error) {
	m, _, err := s.load(ctx, a, id, participant)
	return m, err
}

// ListByContract returns the contract's milestones with totals. Funded and
// released milestones both count as paid.
func (s *MilestoneService) ListByContract(ctx context.Context, a Actor, contractID string) (MilestoneList, error) {
	c, err := s.contract(ctx, contractID)
	if err != nil {
		return MilestoneList{}, err
	}
	if err := participant(a, c); err != nil {
		return MilestoneList{}, err
	}
	ms, err := s.store.Repos().Milestones.ListByContract(ctx, c.ID)
	if err != nil {
		return MilestoneList{}, fmt.Errorf("list milestones: %w", err)
	}

	out := MilestoneList{Milestones: ms, TotalAmount: decimal.Zero, PaidAmount: decimal.Zero}
	for _, m := range ms {
		out.TotalAmount = out.TotalAmount.Add(m.Amount)
		if m.Status != models.MilestonePending {
			out.PaidAmount = out.PaidAmount.Add(m.Amount)
		}
	}
	out.RemainingAmount = out.TotalAmount.Sub(out.PaidAmount)
	return out, nil
}

// Update edits title and due date at any time. The amount can change only
// while the milestone is pending and no created or paid order carries it.
func (s *MilestoneService) Update(ctx context.Context, a Actor, id string, in UpdateMilestoneInput) (models.Milestone, error) {
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return models.Milestone{}, validationf("title cannot be empty")
		}
		in.Title = &t
	}
	if in.Amount != nil {
		if err := checkAmount(*in.Amount); err != nil {
			return models.Milestone{}, err
		}
	}
	if _, _, err := s.load(ctx, a, id, participant); err != nil {
		return models.Milestone{}, err
	}

	var out models.Milestone
	err := s.store.WithTx(ctx, func(r repo.Repositories) error {
		m, err := r.Milestones.GetForUpdate(ctx, id)
		if err != nil {
			return lookup("milestone", err)
		}
		if in.Amount != nil && !in.Amount.Equal(m.Amount) {
			if m.Status != models.MilestonePending {
				return fmt.Errorf("%w: amount of a %s milestone cannot change", ErrConflict, m.Status)
			}
			o, err := r.PaymentOrders.OpenByMilestone(ctx, m.ID)
			if err == nil {
				return fmt.Errorf("%w: payment order %s already carries amount %s", ErrConflict, o.ID, o.Amount.StringFixed(2))
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("load open order: %w", err)
			}
			m.Amount = *in.Amount
		}
		if in.Title != nil {
			m.Title = *in.Title
		}
		if in.DueDate != nil {
			m.DueDate = in.DueDate
		}
		out, err = r.Milestones.Update(ctx, m)
		return err
	})
	return out, err
}

// UpdateStatus is the manual path through the milestone lifecycle. Funding
// still requires a paid order, and releasing runs the same idempotent payout
// as auto-release. Setting the current status again is a no-op.
func (s *MilestoneService) UpdateStatus(ctx context.Context, a Actor, id string, status models.MilestoneStatus) (models.Milestone, error) {
	if !status.Valid() {
		return models.Milestone{}, validationf("status must be one of pending, funded, released")
	}
	m, _, err := s.load(ctx, a, id, clientOrAdmin)
	if err != nil {
		return models.Milestone{}, err
	}
	if m.Status == status {
		return m, nil
	}

	switch status {
	case models.MilestoneFunded:
		return s.fund(ctx, a, id)
	case models.MilestoneReleased:
		if m.Status != models.MilestoneFunded {
			return models.Milestone{}, transitionf("%s -> %s", m.Status, status)
		}
		rel, err := s.releaser.Release(ctx, id)
		if err != nil {
			return models.Milestone{}, err
		}
		s.log.Info("milestone released manually", "milestone_id", id, "actor", a.UserID)
		return rel.Milestone, nil
	}
	return models.Milestone{}, transitionf("%s -> %s", m.Status, status)
}

func (s *MilestoneService) fund(ctx context.Context, a Actor, id string) (models.Milestone, error) {
	var out models.Milestone
	err := s.store.WithTx(ctx, func(r repo.Repositories) error {
		m, err := r.Milestones.GetForUpdate(ctx, id)
		if err != nil {
			return lookup("milestone", err)
		}
		if m.Status == models.MilestoneFunded {
			out = m
			return nil
		}
		if !m.Status.CanTransitionTo(models.MilestoneFunded) {
			return transitionf("%s -> %s", m.Status, models.MilestoneFunded)
		}
		o, err := r.PaymentOrders.PaidByMilestone(ctx, m.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: milestone has no paid payment order", ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("load paid order: %w", err)
		}
		if out, err = r.Milestones.UpdateStatus(ctx, m.ID, models.MilestoneFunded); err != nil {
			return err
		}
		return audit(ctx, r, "milestone", m.ID, "funded", a.UserID, map[string]any{"payment_order_id": o.ID, "manual": true})
	})
	return out, err
}

// Delete removes a milestone that has not been funded.
func (s *MilestoneService) Delete(ctx context.Context, a Actor, id string) error {
	if _, _, err := s.load(ctx, a, id, clientOrAdmin); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(r repo.Repositories) error {
		m, err := r.Milestones.GetForUpdate(ctx, id)
		if err != nil {
			return lookup("milestone", err)
		}
		if m.Status != models.MilestonePending {
			return fmt.Errorf("%w: a %s milestone cannot be deleted", ErrConflict, m.Status)
		}
		if err := r.Milestones.Delete(ctx, id); err != nil {
			return lookup("milestone", err)
		}
		return audit(ctx, r, "milestone", id, "deleted", a.UserID, nil)
	})
}

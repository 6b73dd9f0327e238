package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/emr/internal/domain/medication"
	"github.com/ehr/emr/internal/domain/scheduling"
	"github.com/ehr/emr/pkg/window"
)

const DefaultSchedule = "0 7 * * *"

// sweepTimeout bounds a single scheduled sweep.
const sweepTimeout = 2 * time.Minute

type OccurrenceSource interface {
	UpcomingOccurrences(ctx context.Context, r window.Range) ([]scheduling.Occurrence, error)
}

type RefillSource interface {
	UpcomingRefills(ctx context.Context, r window.Range) ([]*medication.Prescription, error)
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Window  window.Range `json:"window"`
	Added   int          `json:"added"`
	Skipped int          `json:"skipped"`
	Pruned  int          `json:"pruned"`
}

// Sweeper turns upcoming occurrences and refills into reminders.
type Sweeper struct {
	store       *Store
	templates   *TemplateEngine
	occurrences OccurrenceSource
	refills     RefillSource
	horizonDays int
	logger      zerolog.Logger
	now         func() time.Time
}

func NewSweeper(store *Store, tpl *TemplateEngine, occs OccurrenceSource, refills RefillSource, horizonDays int, logger zerolog.Logger) *Sweeper {
	if horizonDays <= 0 {
		horizonDays = window.DashboardDays
	}
	return &Sweeper{
		store:       store,
		templates:   tpl,
		occurrences: occs,
		refills:     refills,
		horizonDays: horizonDays,
		logger:      logger.With().Str("component", "reminders").Logger(),
		now:         time.Now,
	}
}

// Sweep records a reminder for every occurrence and refill inside the
// reminder window. Reminders already recorded are skipped, and reminders
// due before now are pruned.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	r := window.Days(now, s.horizonDays)
	res := SweepResult{Window: r}

	var (
		occs    []scheduling.Occurrence
		refills []*medication.Prescription
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		occs, err = s.occurrences.UpcomingOccurrences(gctx, r)
		return err
	})
	g.Go(func() error {
		var err error
		refills, err = s.refills.UpcomingRefills(gctx, r)
		return err
	})
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("load upcoming records: %w", err)
	}

	for _, o := range window.FilterRange(occs, r) {
		rem, err := s.appointmentReminder(o, now)
		if err != nil {
			return res, err
		}
		s.record(rem, &res)
	}
	for _, p := range window.FilterRange(refills, r) {
		rem, err := s.refillReminder(p, now)
		if err != nil {
			return res, err
		}
		s.record(rem, &res)
	}

	res.Pruned = s.store.Prune(now)
	s.logger.Info().
		Int("added", res.Added).
		Int("skipped", res.Skipped).
		Int("pruned", res.Pruned).
		Time("window_end", r.End).
		Msg("reminder sweep complete")
	return res, nil
}

func (s *Sweeper) record(rem *Reminder, res *SweepResult) {
	if !s.store.Add(rem) {
		res.Skipped++
		return
	}
	res.Added++
	s.logger.Info().
		Str("kind", string(rem.Kind)).
		Str("patient_id", rem.PatientID.String()).
		Str("record_id", rem.RecordID.String()).
		Time("due_at", rem.DueAt).
		Msg(rem.Subject)
}

func (s *Sweeper) appointmentReminder(o scheduling.Occurrence, now time.Time) (*Reminder, error) {
	subject, body, err := s.templates.Render(TemplateAppointment, map[string]string{
		"provider": o.Provider,
		"date":     o.Date.Format("Mon Jan 2, 2006"),
		"time":     o.Date.Format("15:04 MST"),
	})
	if err != nil {
		return nil, err
	}
	return &Reminder{
		Kind:      KindAppointment,
		RecordID:  o.AppointmentID,
		PatientID: o.PatientID,
		DueAt:     o.Date,
		Subject:   subject,
		Body:      body,
		CreatedAt: now,
	}, nil
}

func (s *Sweeper) refillReminder(p *medication.Prescription, now time.Time) (*Reminder, error) {
	subject, body, err := s.templates.Render(TemplateRefill, map[string]string{
		"medication": p.Medication,
		"dosage":     p.Dosage,
		"quantity":   strconv.Itoa(p.Quantity),
		"date":       p.RefillDate.Format("Mon Jan 2, 2006"),
	})
	if err != nil {
		return nil, err
	}
	return &Reminder{
		Kind:      KindRefill,
		RecordID:  p.ID,
		PatientID: p.PatientID,
		DueAt:     p.RefillDate,
		Subject:   subject,
		Body:      body,
		CreatedAt: now,
	}, nil
}

// Scheduler runs Sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
}

// NewScheduler registers the sweep under spec, a standard five-field cron
// expression.
func NewScheduler(sweeper *Sweeper, spec string) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New()
	s := &Scheduler{cron: c, sweeper: sweeper}
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("schedule reminder sweep %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.sweeper.logger.Error().Err(err).Msg("reminder sweep failed")
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

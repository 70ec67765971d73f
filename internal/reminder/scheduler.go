// Package reminder notifies staff ahead of scheduled worship events by web
// push and email.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/email"
	"github.com/dukerupert/giadinh/internal/lunar"
	"github.com/dukerupert/giadinh/internal/metrics"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/push"
	"github.com/dukerupert/giadinh/internal/store"
)

const (
	DefaultLeadDays = 3
	maxLeadDays     = 30
)

// Mailer is the part of the email client the scheduler uses.
type Mailer interface {
	Configured() bool
	SendReminder(ctx context.Context, to string, r email.Reminder) error
}

type Stores struct {
	Push       *store.PushStore
	Worship    *store.WorshipStore
	Households *store.HouseholdStore
	Members    *store.FamilyMemberStore
	Settings   *store.SettingsStore
}

// Scheduler periodically checks for worship events entering the lead window.
type Scheduler struct {
	clock    clockwork.Clock
	interval time.Duration
	stores   Stores
	sender   push.Sender
	mailer   Mailer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewScheduler creates a reminder scheduler. sender, mailer and m may be nil.
func NewScheduler(clock clockwork.Clock, interval time.Duration, stores Stores, sender push.Sender, mailer Mailer, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clock:    clock,
		interval: interval,
		stores:   stores,
		sender:   sender,
		mailer:   mailer,
		metrics:  m,
		logger:   logger,
	}
}

// Run checks once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}

// Tick sends every reminder that is due and not yet sent.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.stores.Settings.GetBool(ctx, store.KeyReminderEnabled) {
		return
	}
	leadDays := s.stores.Settings.GetInt(ctx, store.KeyReminderLeadDays, DefaultLeadDays)
	leadDays = min(max(leadDays, 0), maxLeadDays)

	today := s.today()
	from := today.Format(time.DateOnly)
	to := today.AddDate(0, 0, leadDays).Format(time.DateOnly)

	entries, err := s.stores.Worship.ListUpcoming(ctx, from, to)
	if err != nil {
		s.logger.ErrorContext(ctx, "list upcoming worship", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	recipient, _ := s.stores.Settings.Get(ctx, store.KeyReminderEmail)
	recipient = strings.TrimSpace(recipient)

	for i := range entries {
		s.remind(ctx, &entries[i], today, leadDays, recipient)
	}
}

func (s *Scheduler) today() time.Time {
	now := s.clock.Now().In(lunar.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, lunar.Location)
}

// refID keys the dedup record on the entry and its date, so a rescheduled
// entry is announced again.
func refID(w *model.WorshipHistory) string {
	return fmt.Sprintf("worship-%d-%s", w.ID, w.ScheduledDate)
}

func (s *Scheduler) remind(ctx context.Context, w *model.WorshipHistory, today time.Time, leadDays int, recipient string) {
	logger := s.logger.With("worship_id", w.ID, "date", w.ScheduledDate)

	sent, err := s.stores.Push.WasSent(ctx, model.NotifTypeWorshipReminder, refID(w), leadDays)
	if err != nil {
		logger.ErrorContext(ctx, "check sent", "error", err)
		return
	}
	if sent {
		return
	}

	r, err := s.buildReminder(ctx, w, today)
	if err != nil {
		logger.ErrorContext(ctx, "build reminder", "error", err)
		return
	}

	delivered := s.sendPush(ctx, r, logger)
	if recipient != "" && s.mailer != nil && s.mailer.Configured() {
		if err := s.mailer.SendReminder(ctx, recipient, r); err != nil {
			logger.WarnContext(ctx, "send reminder email", "error", err)
			s.countError()
		} else {
			delivered++
			s.countSent("email")
		}
	}

	// Nothing reached anyone: try again on the next tick.
	if delivered == 0 {
		return
	}
	if err := s.stores.Push.RecordSent(ctx, model.NotifTypeWorshipReminder, refID(w), leadDays); err != nil {
		logger.ErrorContext(ctx, "record sent", "error", err)
		return
	}
	logger.InfoContext(ctx, "reminder sent", "deliveries", delivered, "days_until", r.DaysUntil)
}

func (s *Scheduler) sendPush(ctx context.Context, r email.Reminder, logger *slog.Logger) int {
	if s.sender == nil {
		return 0
	}
	subs, err := s.stores.Push.ListAll(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "list subscriptions", "error", err)
		return 0
	}

	payload := push.Payload{
		Title: "Nhắc lịch: " + r.Title,
		Body:  pushBody(r),
		URL:   fmt.Sprintf("/worship/%d", r.WorshipID),
		Tag:   fmt.Sprintf("worship-%d", r.WorshipID),
	}

	delivered := 0
	for i := range subs {
		sub := &subs[i]
		err := s.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
			delivered++
			s.countSent("push")
		case errors.Is(err, push.ErrExpired):
			logger.InfoContext(ctx, "removing expired subscription", "subscription_id", sub.ID)
			if err := s.stores.Push.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				logger.ErrorContext(ctx, "delete expired subscription", "error", err)
			}
		default:
			logger.WarnContext(ctx, "send push", "subscription_id", sub.ID, "error", err)
			s.countError()
		}
	}
	return delivered
}

func pushBody(r email.Reminder) string {
	return fmt.Sprintf("%s, %s (âm lịch %s), %s", r.HouseholdName, r.SolarDate, r.LunarDate, r.When())
}

func (s *Scheduler) buildReminder(ctx context.Context, w *model.WorshipHistory, today time.Time) (email.Reminder, error) {
	date, err := time.ParseInLocation(time.DateOnly, w.ScheduledDate, lunar.Location)
	if err != nil {
		return email.Reminder{}, fmt.Errorf("parse scheduled date: %w", err)
	}

	h, err := s.stores.Households.GetByID(ctx, w.HouseholdID)
	if err != nil {
		return email.Reminder{}, fmt.Errorf("get household: %w", err)
	}
	householdName := ""
	if h != nil {
		householdName = h.Name
	}

	memberName := ""
	if w.MemberID != nil {
		m, err := s.stores.Members.GetByID(ctx, *w.MemberID)
		if err != nil {
			return email.Reminder{}, fmt.Errorf("get member: %w", err)
		}
		if m != nil {
			memberName = m.FullName
		}
	}

	title := w.Title
	if title == "" {
		title = w.Type.Label()
		if memberName != "" {
			title += " " + memberName
		}
	}

	ld := lunar.Date{Day: w.LunarDay, Month: w.LunarMonth, Year: w.LunarYear, Leap: w.LunarLeap}
	return email.Reminder{
		Title:         title,
		HouseholdName: householdName,
		MemberName:    memberName,
		SolarDate:     date.Format("02/01/2006"),
		LunarDate:     ld.String(),
		DaysUntil:     int(date.Sub(today).Hours() / 24),
		WorshipID:     w.ID,
	}, nil
}

func (s *Scheduler) countSent(channel string) {
	if s.metrics != nil {
		s.metrics.RemindersSent.WithLabelValues(channel).Inc()
	}
}

func (s *Scheduler) countError() {
	if s.metrics != nil {
		s.metrics.ReminderErrors.Inc()
	}
}

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/metrics"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/service"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
)

// Command aliases, matched against the lower-cased first word.
var (
	greetingWords   = []string{"hi", "hello", "menu", "選單"}
	reportWords     = []string{"report", "回報"}
	leaveWords      = []string{"leave", "請假"}
	historyWords    = []string{"history", "查詢"}
	correctionWords = []string{"correction", "correct", "校正"}
	verifyWords     = []string{"verify", "驗證"}
	missingWords    = []string{"missing", "未填"}
	todayWords      = []string{"today", "今日"}
	acwrWords       = []string{"acwr", "weekly", "週報"}
)

// request is one message after role lookup.
type request struct {
	Message
	Role   domain.Role
	Fields []string // lower-cased
	Now    time.Time
}

type route struct {
	name   string
	roles  []domain.Role // empty means any verified role
	match  func(req request) bool
	handle func(ctx context.Context, req request) Reply
}

// Router dispatches inbound messages. Unverified users only reach the
// verification flow; verified users are dispatched by the first matching
// route in the table.
type Router struct {
	Registry  *service.RegistryService
	Ledger    *service.LedgerService
	Analytics *service.AnalyticsService
	Names     NameResolver
	Metrics   *metrics.Metrics
	Now       func() time.Time

	routes []route
}

func NewRouter(
	registry *service.RegistryService,
	ledger *service.LedgerService,
	analytics *service.AnalyticsService,
	names NameResolver,
	m *metrics.Metrics,
) *Router {
	r := &Router{
		Registry:  registry,
		Ledger:    ledger,
		Analytics: analytics,
		Names:     names,
		Metrics:   m,
		Now:       time.Now,
	}
	r.routes = []route{
		{name: "verify", match: r.matchVerify, handle: r.handleReverify},
		{name: "menu", roles: player, match: firstWordOnly(greetingWords), handle: r.handlePlayerMenu},
		{name: "menu", roles: coach, match: firstWordOnly(greetingWords), handle: r.handleCoachMenu},
		{name: "report", roles: player, match: firstWordOnly(reportWords), handle: r.handleReportPrompt},
		{name: "correction", roles: player, match: firstWord(correctionWords), handle: r.handleCorrection},
		{name: "leave", roles: player, match: matchLeave, handle: r.handleLeave},
		{name: "history", roles: player, match: firstWordOnly(historyWords), handle: r.handleHistory},
		{name: "submit", roles: player, match: matchNumericPair, handle: r.handleSubmit},
		{name: "missing", roles: coach, match: firstWordOnly(missingWords), handle: r.handleMissing},
		{name: "today", roles: coach, match: firstWordOnly(todayWords), handle: r.handleToday},
		{name: "acwr", roles: coach, match: firstWordOnly(acwrWords), handle: r.handleACWR},
	}
	return r
}

var (
	player = []domain.Role{domain.RolePlayer}
	coach  = []domain.Role{domain.RoleCoach}
)

// Handle produces exactly one reply for msg. Errors never escape; they are
// logged and turned into a user-visible reply.
func (r *Router) Handle(ctx context.Context, msg Message) Reply {
	ctx = slogx.WithUserID(ctx, msg.UserID)
	log := slogx.FromContext(ctx)

	role, err := r.Registry.LookupRole(ctx, msg.UserID)
	if err != nil {
		r.Metrics.MessageRouted("error")
		return Reply{Text: UnavailableText}
	}

	text := strings.TrimSpace(msg.Text)
	req := request{
		Message: msg,
		Role:    role,
		Fields:  strings.Fields(strings.ToLower(text)),
		Now:     r.Now(),
	}
	req.Text = text

	if !role.Verified() {
		r.Metrics.MessageRouted("verification")
		return r.handleVerification(ctx, req)
	}

	for _, rt := range r.routes {
		if len(rt.roles) > 0 && !slices.Contains(rt.roles, role) {
			continue
		}
		if !rt.match(req) {
			continue
		}
		log.Debug("message routed", slog.String("route", rt.name), slog.String("role", role.String()))
		r.Metrics.MessageRouted(rt.name)
		return rt.handle(ctx, req)
	}

	r.Metrics.MessageRouted("help")
	return helpFor(role)
}

// Serve handles msg and hands the reply to m. Delivery failures are logged
// only; any ledger write has already committed.
func (r *Router) Serve(ctx context.Context, m Messenger, msg Message) {
	reply := r.Handle(ctx, msg)
	if err := m.ReplyTo(ctx, msg.Token, reply); err != nil {
		slogx.FromContext(ctx).Error("failed to deliver reply",
			slog.String("user_id", msg.UserID),
			slog.Any("error", err),
		)
	}
}

func helpFor(role domain.Role) Reply {
	if role == domain.RoleCoach {
		return Reply{Text: CoachHelpText, QuickActions: coachMenu}
	}
	return Reply{Text: PlayerHelpText}
}

func (r *Router) handleVerification(ctx context.Context, req request) Reply {
	code := req.Text
	if r.matchVerify(req) {
		code = verifyArg(req.Text)
	}
	return r.verify(ctx, req.UserID, code, VerifyPromptText)
}

func (r *Router) matchVerify(req request) bool {
	return len(req.Fields) == 2 && slices.Contains(verifyWords, req.Fields[0])
}

func (r *Router) handleReverify(ctx context.Context, req request) Reply {
	return r.verify(ctx, req.UserID, verifyArg(req.Text), UnknownCodeText)
}

// verifyArg returns the code of "verify <code>" as typed; codes are case
// sensitive while Fields is lowercased.
func verifyArg(text string) string {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return ""
	}
	return fields[1]
}

// verify applies code; invalidReply is sent for unknown codes.
func (r *Router) verify(ctx context.Context, userID, code, invalidReply string) Reply {
	role, err := r.Registry.Verify(ctx, userID, code)
	switch {
	case err == nil:
		return Reply{Text: RenderVerified(role)}
	case errors.Is(err, service.ErrInvalidCode):
		return Reply{Text: invalidReply}
	default:
		return Reply{Text: UnavailableText}
	}
}

func (r *Router) handlePlayerMenu(ctx context.Context, req request) Reply {
	return Reply{Text: "Choose an action:", QuickActions: playerMenu}
}

func (r *Router) handleCoachMenu(ctx context.Context, req request) Reply {
	return Reply{Text: "Choose a report:", QuickActions: coachMenu}
}

func (r *Router) handleReportPrompt(ctx context.Context, req request) Reply {
	return Reply{Text: SubmitPromptText}
}

func (r *Router) handleSubmit(ctx context.Context, req request) Reply {
	rpe, duration, _ := parsePair(req.Fields)
	e, err := r.Ledger.Submit(ctx, service.Submission{
		UserID:          req.UserID,
		RPE:             rpe,
		DurationMinutes: duration,
		Kind:            domain.KindTraining,
	}, req.Now)
	return r.writeReply(e, err, PlayerHelpText)
}

func (r *Router) handleLeave(ctx context.Context, req request) Reply {
	e, err := r.Ledger.Submit(ctx, service.Submission{
		UserID: req.UserID,
		Kind:   domain.KindLeave,
		Note:   leaveReason(req.Text),
	}, req.Now)
	return r.writeReply(e, err, PlayerHelpText)
}

func (r *Router) handleCorrection(ctx context.Context, req request) Reply {
	rpe, duration, ok := parsePair(req.Fields[1:])
	if !ok {
		r.Metrics.Submission("invalid")
		return Reply{Text: CorrectionHelpText}
	}
	e, err := r.Ledger.Correct(ctx, req.UserID, rpe, duration, req.Now)
	return r.writeReply(e, err, CorrectionHelpText)
}

// writeReply maps a ledger write result onto a reply; formatHelp is used
// for out-of-range values.
func (r *Router) writeReply(e domain.WorkloadEntry, err error, formatHelp string) Reply {
	switch {
	case err == nil:
		if e.Kind == domain.KindCorrection {
			r.Metrics.Submission("corrected")
		} else {
			r.Metrics.Submission("recorded")
		}
		return Reply{Text: RenderRecorded(e)}
	case errors.Is(err, service.ErrAlreadySubmitted):
		r.Metrics.Submission("duplicate")
		return Reply{Text: AlreadyText}
	case errors.Is(err, service.ErrFormat):
		r.Metrics.Submission("invalid")
		return Reply{Text: formatHelp}
	default:
		r.Metrics.Submission("error")
		return Reply{Text: UnavailableText}
	}
}

func (r *Router) handleHistory(ctx context.Context, req request) Reply {
	entries, err := r.Ledger.RecentEntries(ctx, req.UserID, service.DefaultHistoryLimit)
	if err != nil {
		return Reply{Text: UnavailableText}
	}
	return Reply{Text: RenderHistory(entries)}
}

func (r *Router) handleMissing(ctx context.Context, req request) Reply {
	missing, err := r.Analytics.MissingToday(ctx, req.Now)
	if err != nil {
		return Reply{Text: UnavailableText}
	}
	labels := Labels(ctx, r.Names, missing)
	out := make([]string, len(missing))
	for i, id := range missing {
		out[i] = labels[id]
	}
	return Reply{Text: RenderMissing(out)}
}

func (r *Router) handleToday(ctx context.Context, req request) Reply {
	report, err := r.Analytics.TeamDayReport(ctx, req.Now)
	if err != nil {
		return Reply{Text: UnavailableText}
	}
	ids := make([]string, len(report.Players))
	for i, p := range report.Players {
		ids[i] = p.UserID
	}
	return Reply{Text: RenderTeamDay(report, Labels(ctx, r.Names, ids))}
}

func (r *Router) handleACWR(ctx context.Context, req request) Reply {
	summary, err := r.Analytics.TeamACWRSummary(ctx, req.Now)
	if err != nil {
		return Reply{Text: UnavailableText}
	}
	ids := make([]string, len(summary.Players))
	for i, p := range summary.Players {
		ids[i] = p.UserID
	}
	return Reply{Text: RenderTeamACWR(summary, Labels(ctx, r.Names, ids))}
}

// firstWordOnly matches a message consisting of exactly one alias.
func firstWordOnly(words []string) func(request) bool {
	return func(req request) bool {
		return len(req.Fields) == 1 && slices.Contains(words, req.Fields[0])
	}
}

// firstWord matches a message whose first word is an alias.
func firstWord(words []string) func(request) bool {
	return func(req request) bool {
		return len(req.Fields) > 0 && slices.Contains(words, req.Fields[0])
	}
}

// matchLeave also accepts the reason glued to the Chinese keyword ("請假感冒").
func matchLeave(req request) bool {
	if firstWord(leaveWords)(req) {
		return true
	}
	return strings.HasPrefix(req.Text, "請假")
}

func leaveReason(text string) string {
	lower := strings.ToLower(text)
	for _, w := range leaveWords {
		if strings.HasPrefix(lower, w) {
			return strings.TrimSpace(text[len(w):])
		}
	}
	return ""
}

func matchNumericPair(req request) bool {
	_, _, ok := parsePair(req.Fields)
	return ok
}

// parsePair parses exactly two non-negative integers.
func parsePair(fields []string) (int, int, bool) {
	if len(fields) != 2 {
		return 0, 0, false
	}
	a, err := strconv.Atoi(fields[0])
	if err != nil || a < 0 {
		return 0, 0, false
	}
	b, err := strconv.Atoi(fields[1])
	if err != nil || b < 0 {
		return 0, 0, false
	}
	return a, b, true
}

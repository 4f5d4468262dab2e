package conversation

import (
	"fmt"
	"strings"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/service"
)

// Fixed reply texts.
const (
	ReminderText       = "🔔 Please report today's RPE and session duration (e.g. 6 60)."
	VerifyPromptText   = "Please send your 4-digit verification code to activate the bot."
	UnknownCodeText    = "❌ Unknown code, your role is unchanged."
	UnavailableText    = "⚠️ The service is temporarily unavailable, please try again later."
	SubmitPromptText   = "Send your session as: RPE DURATION (e.g. 6 60)."
	CorrectionHelpText = "❌ Format: correction RPE DURATION (e.g. 校正 8 45)"
	PlayerHelpText     = "❌ Format: RPE DURATION (e.g. 6 60). Other commands: leave [reason], history, correction RPE DURATION."
	CoachHelpText      = "Commands: missing, today, acwr."
	AlreadyText        = "⚠️ You have already reported today. Send \"校正 RPE DURATION\" to correct it."
)

var (
	playerMenu = []QuickAction{
		{Label: "Report RPE", Text: "report"},
		{Label: "Leave", Text: "leave"},
		{Label: "History", Text: "history"},
	}
	coachMenu = []QuickAction{
		{Label: "Missing", Text: "missing"},
		{Label: "Today", Text: "today"},
		{Label: "ACWR", Text: "acwr"},
	}
)

func RenderVerified(role domain.Role) string {
	return fmt.Sprintf("✅ Verified, your role is %s.", role)
}

func RenderRecorded(e domain.WorkloadEntry) string {
	if e.IsLeave() {
		if e.Note != "" {
			return "✅ Leave recorded: " + e.Note
		}
		return "✅ Leave recorded."
	}
	if e.Kind == domain.KindCorrection {
		return fmt.Sprintf("✅ Corrected to SRPE %d (%d×%d)", e.SRPE, e.RPE, e.DurationMinutes)
	}
	return fmt.Sprintf("✅ Recorded SRPE %d (%d×%d)", e.SRPE, e.RPE, e.DurationMinutes)
}

func RenderHistory(entries []domain.WorkloadEntry) string {
	if len(entries) == 0 {
		return "No records yet."
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("%s RPE:%d Duration:%d = SRPE:%d", e.CalendarDay, e.RPE, e.DurationMinutes, e.SRPE)
		switch {
		case e.IsLeave() && e.Note != "":
			line += " (leave: " + e.Note + ")"
		case e.IsLeave():
			line += " (leave)"
		case e.Kind == domain.KindCorrection:
			line += " (corrected)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// RenderMissing lists labels of players that have not reported.
func RenderMissing(labels []string) string {
	if len(labels) == 0 {
		return "📋 Missing today:\n✅ Everyone has reported."
	}
	return "📋 Missing today:\n" + strings.Join(labels, "\n")
}

// RenderTeamDay renders a day report; labels maps user ids to display labels.
func RenderTeamDay(report service.TeamDay, labels map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Report for %s:\n", report.Day)
	if len(report.Players) == 0 {
		b.WriteString("No data")
		return b.String()
	}
	for _, p := range report.Players {
		label := labelFor(labels, p.UserID)
		switch p.Status {
		case service.StatusSubmitted:
			fmt.Fprintf(&b, "%s SRPE: %d\n", label, p.SRPE)
		case service.StatusLeave:
			if p.Note != "" {
				fmt.Fprintf(&b, "%s leave (%s)\n", label, p.Note)
			} else {
				fmt.Fprintf(&b, "%s leave\n", label)
			}
		default:
			fmt.Fprintf(&b, "%s missing\n", label)
		}
	}
	if report.Reported > 0 {
		fmt.Fprintf(&b, "Team average: %.1f", report.Average)
	} else {
		b.WriteString("Team average: no reports")
	}
	return b.String()
}

// RenderTeamACWR renders the ratio summary with band glyphs.
func RenderTeamACWR(summary service.TeamACWR, labels map[string]string) string {
	var b strings.Builder
	b.WriteString("🔥 ACWR report:\n")
	if len(summary.Players) == 0 {
		b.WriteString("No players registered.")
		return b.String()
	}
	for _, p := range summary.Players {
		label := labelFor(labels, p.UserID)
		if !p.Defined {
			fmt.Fprintf(&b, "%s ACWR: not enough history %s\n", label, p.Band.Glyph())
			continue
		}
		fmt.Fprintf(&b, "%s ACWR: %.2f %s\n", label, p.ACWR, p.Band.Glyph())
	}
	if summary.HasAverage {
		fmt.Fprintf(&b, "Team average: %.2f", summary.TeamAverage)
	} else {
		b.WriteString("Team average: insufficient data")
	}
	return b.String()
}

func labelFor(labels map[string]string, userID string) string {
	if l, ok := labels[userID]; ok && l != "" {
		return l
	}
	return ShortID(userID)
}

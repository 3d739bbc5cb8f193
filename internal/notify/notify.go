package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notifier writes activity-feed rows and optionally mirrors them to a
// Discord channel. Delivery is best effort: jobs must keep making
// progress when the sink is down, so failures are logged and swallowed.
type Notifier struct {
	db      *pgxpool.Pool
	log     *slog.Logger
	discord *discordgo.Session
	channel string
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{db: db, log: logger}
}

// EnableDiscord attaches a relay session. Called once at startup when a
// bot token is configured; the session is used send-only, no gateway.
func (n *Notifier) EnableDiscord(botToken, channelID string) error {
	if botToken == "" || channelID == "" {
		return fmt.Errorf("discord relay requires token and channel id")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	n.discord = session
	n.channel = channelID
	return nil
}

func (n *Notifier) Send(ctx context.Context, profileID int64, kind string, severity Severity, title, body string) {
	_, err := n.db.Exec(ctx, `
		INSERT INTO game.notifications (profile_id, kind, severity, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, profileID, kind, string(severity), title, body)
	if err != nil {
		n.log.Error("notification not persisted", "profile_id", profileID, "kind", kind, "err", err)
	}
	if n.discord == nil {
		return
	}
	msg := fmt.Sprintf("[%s] %s: %s", severity, title, body)
	if _, err := n.discord.ChannelMessageSend(n.channel, msg); err != nil {
		n.log.Warn("discord relay failed", "kind", kind, "err", err)
	}
}

// Close tears down the Discord session if one was attached.
func (n *Notifier) Close() {
	if n.discord != nil {
		_ = n.discord.Close()
		n.discord = nil
	}
}

package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"go.uber.org/zap"

	"supportbot/internal/archive"
	dbmodels "supportbot/internal/models"
	"supportbot/internal/scheduler"
	"supportbot/internal/telegram"
)

const (
	// StaleTopicAge is the inactivity after which a topic may be deleted
	StaleTopicAge = 14 * 24 * time.Hour

	sweepSchedule  = "@every 1m"
	sweepBatchSize = 100
)

// MessageCounter reports archived message volume for the digest
type MessageCounter interface {
	CountByDirection(ctx context.Context, bot string, since time.Time) (map[archive.Direction]int, error)
}

var actionLabels = map[dbmodels.Action]string{
	dbmodels.ActionStart:            "/start commands",
	dbmodels.ActionNewUser:          "New users",
	dbmodels.ActionUserMessage:      "Messages from users",
	dbmodels.ActionAdminMessage:     "Replies from admins",
	dbmodels.ActionTopicCreated:     "Topics created",
	dbmodels.ActionTopicRecreated:   "Topics recreated",
	dbmodels.ActionBroadcastMessage: "Broadcast messages",
}

// RegisterJobs schedules the destruction sweep and, when statsSchedule is set,
// the statistics digest
func (b *Bot) RegisterJobs(s *scheduler.Scheduler, statsSchedule string) error {
	if err := s.Add(b.cfg.Name+":destruction_sweep", sweepSchedule, b.jobLogged("destruction_sweep", b.SweepDestructions)); err != nil {
		return err
	}
	if statsSchedule == "" {
		return nil
	}
	return s.Add(b.cfg.Name+":stats_digest", statsSchedule, b.jobLogged("stats_digest", b.SendDigest))
}

func (b *Bot) jobLogged(name string, fn func(ctx context.Context) error) scheduler.Job {
	return func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			b.logger.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

// DeleteOldTopics deletes topics without activity for StaleTopicAge and forgets
// their thread IDs. Topics already gone are forgotten too
func (b *Bot) DeleteOldTopics(ctx context.Context) (int, error) {
	users, err := b.db.ListStaleThreads(ctx, b.now().Add(-StaleTopicAge))
	if err != nil {
		return 0, fmt.Errorf("failed to list old topics: %w", err)
	}

	deleted := 0
	for _, user := range users {
		if err := b.deleteTopic(ctx, user.UserID, user.ThreadID); err != nil {
			b.logger.Warn("Failed to delete topic",
				zap.Error(err),
				zap.Int64("user_id", user.UserID),
				zap.Int("thread_id", user.ThreadID),
			)
			continue
		}
		deleted++
	}

	b.logger.Info("Old topics deleted", zap.Int("count", deleted))
	return deleted, nil
}

func (b *Bot) deleteTopic(ctx context.Context, userID int64, threadID int) error {
	unlock := b.userLocks.Lock(userID)
	defer unlock()

	// A message may have arrived since the listing
	user, err := b.db.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.ThreadID != threadID || user.LastActivity().After(b.now().Add(-StaleTopicAge)) {
		return fmt.Errorf("topic is active again")
	}

	_, err = b.api.DeleteForumTopic(ctx, &tgbot.DeleteForumTopicParams{
		ChatID:          b.cfg.AdminGroupID,
		MessageThreadID: threadID,
	})
	if err != nil && !telegram.IsThreadNotFound(err) {
		return err
	}
	return b.db.ClearThread(ctx, userID)
}

// SweepDestructions deletes messages whose destruction time has come. Rows are
// dropped whether or not Telegram deleted the message
func (b *Bot) SweepDestructions(ctx context.Context) error {
	for {
		due, err := b.db.DueDestructions(ctx, b.now(), sweepBatchSize)
		if err != nil {
			return fmt.Errorf("failed to list due destructions: %w", err)
		}

		for _, d := range due {
			_, err := b.api.DeleteMessage(ctx, &tgbot.DeleteMessageParams{ChatID: d.ChatID, MessageID: d.MessageID})
			switch {
			case err == nil:
			case telegram.IsMessageGone(err):
				b.logger.Debug("Message already gone", zap.Int64("chat_id", d.ChatID), zap.Int("message_id", d.MessageID))
			default:
				b.logger.Warn("Failed to delete message",
					zap.Error(err),
					zap.Int64("chat_id", d.ChatID),
					zap.Int("message_id", d.MessageID),
				)
			}
			if err := b.db.DeleteDestruction(ctx, d.ChatID, d.MessageID); err != nil {
				return fmt.Errorf("failed to forget destruction: %w", err)
			}
		}

		if len(due) < sweepBatchSize {
			return nil
		}
	}
}

// SendDigest posts action counts over the configured period to the admin group
func (b *Bot) SendDigest(ctx context.Context) error {
	text, err := b.digest(ctx)
	if err != nil {
		return err
	}
	_, err = b.sendMessageInThread(ctx, b.cfg.AdminGroupID, text, 0)
	return err
}

func (b *Bot) digest(ctx context.Context) (string, error) {
	period := b.cfg.StatsPeriod
	if period <= 0 {
		period = 7 * 24 * time.Hour
	}
	// Counters are daily, the period ends with today
	until := b.now().UTC()
	since := until.Add(-period + 24*time.Hour)

	counts, err := b.db.CountActions(ctx, since, until)
	if err != nil {
		return "", fmt.Errorf("failed to count actions: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "📊 <b>Statistics for the last %d day(s)</b>\n\n", int(period.Hours()/24))
	for _, action := range dbmodels.Actions {
		fmt.Fprintf(&text, "%s: %d\n", actionLabels[action], counts[action])
	}

	if b.stats != nil {
		archived, err := b.stats.CountByDirection(ctx, b.cfg.Name, since)
		if err != nil {
			b.logger.Warn("Failed to count archived messages", zap.Error(err))
		} else {
			fmt.Fprintf(&text, "\nArchived: %d from users, %d from admins\n",
				archived[archive.FromUser], archived[archive.FromAdmin])
		}
	}
	return strings.TrimRight(text.String(), "\n"), nil
}

package telegram

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"fitfinderapi/agent"
	"fitfinderapi/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"
)

var usernames string = os.Getenv("TG_ADMINS") //separated by comma from env

func EscapeMessage(message string) string {
	r := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return r.Replace(message)
}

// RunStylistBot bridges Telegram messages into assistant turns. Only accounts
// whose email matches a linked user get answers; everything else is ignored.
func RunStylistBot(db *gorm.DB, runner *agent.Runner) {
	bot, err := tgbotapi.NewBotAPI(os.Getenv("TG_TOKEN"))
	if err != nil {
		println("Error tg bot init")
		log.Panic(err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

		if update.Message.Command() == "start" {
			msg := tgbotapi.NewMessage(update.Message.Chat.ID, "Hi! Tell me what you want to wear and I'll put an outfit together from your wardrobe.\nLink your account first with `/link your@email.com`")
			msg.ParseMode = "markdown"
			bot.Send(msg)
			continue
		}
		if update.Message.Command() == "link" {
			args := strings.Fields(update.Message.Text)
			if len(args) != 2 {
				bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, "Usage: /link your@email.com"))
				continue
			}
			var user models.UserAccount
			if err := db.Where("email = ?", args[1]).First(&user).Error; err != nil {
				bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, "No account found for that email"))
				continue
			}
			tokenDb := models.UserPushToken{
				UserAccountID: user.ID,
				Platform:      "telegram",
				Token:         fmt.Sprintf("%d", update.Message.Chat.ID),
				Active:        true,
			}
			db.Save(&tokenDb)
			bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, fmt.Sprintf("Linked to %s, ask me for an outfit!", user.Name)))
			continue
		}

		var token models.UserPushToken
		err := db.Where("platform = ? AND token = ? AND active = ?", "telegram", fmt.Sprintf("%d", update.Message.Chat.ID), true).First(&token).Error
		if err != nil {
			bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, "Link your account first with /link your@email.com"))
			continue
		}

		conversationID := fmt.Sprintf("tg-%d", update.Message.Chat.ID)
		response := runner.RunTurn(context.Background(), token.UserAccountID, conversationID, models.ChatRequest{Prompt: update.Message.Text})

		msg := tgbotapi.NewMessage(update.Message.Chat.ID, EscapeMessage(response.ResponseText))
		if _, err := bot.Send(msg); err != nil {
			fmt.Println("Error sending telegram reply:", err)
		}
	}
}

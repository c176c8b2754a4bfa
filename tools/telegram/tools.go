package telegram

import (
	"context"

	"github.com/poiesic/maestro/tools"
)

// Tools returns the bot's operations as agent tools. Argument names follow
// the Bot API field names so models trained on it fill them correctly.
func (b *Bot) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        "send_telegram_message",
			Description: "Sends a message via Telegram.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"chat_id":                  tools.StringParam("The target chat ID or username."),
				"text":                     tools.StringParam("Message text to send."),
				"parse_mode":               tools.StringParam("Optional parse mode, e.g. MarkdownV2 or HTML."),
				"disable_web_page_preview": tools.BoolParam("Disable link previews in the message."),
			}, "chat_id", "text"),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				chatID, err := tools.String(args, "chat_id")
				if err != nil {
					return "", err
				}
				text, err := tools.String(args, "text")
				if err != nil {
					return "", err
				}
				preview, err := tools.Bool(args, "disable_web_page_preview")
				if err != nil {
					return "", err
				}
				return b.SendMessage(ctx, Message{
					ChatID:                chatID,
					Text:                  text,
					ParseMode:             tools.StringOr(args, "parse_mode", ""),
					DisableWebPagePreview: preview,
				})
			},
		},
		{
			Name:        "telegram_send_photo",
			Description: "Send a photo to a Telegram chat.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"chat_id":    tools.StringParam("The target chat ID or username."),
				"photo":      tools.StringParam("File ID or HTTP URL for the photo."),
				"caption":    tools.StringParam("Optional caption for the photo."),
				"parse_mode": tools.StringParam("Optional parse mode for the caption."),
			}, "chat_id", "photo"),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				chatID, err := tools.String(args, "chat_id")
				if err != nil {
					return "", err
				}
				photo, err := tools.String(args, "photo")
				if err != nil {
					return "", err
				}
				return b.SendPhoto(ctx, Photo{
					ChatID:    chatID,
					Photo:     photo,
					Caption:   tools.StringOr(args, "caption", ""),
					ParseMode: tools.StringOr(args, "parse_mode", ""),
				})
			},
		},
		{
			Name:        "telegram_send_document",
			Description: "Send a document to a Telegram chat.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"chat_id":    tools.StringParam("The target chat ID or username."),
				"document":   tools.StringParam("File ID or HTTP URL for the document."),
				"caption":    tools.StringParam("Optional caption for the document."),
				"parse_mode": tools.StringParam("Optional parse mode for the caption."),
			}, "chat_id", "document"),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				chatID, err := tools.String(args, "chat_id")
				if err != nil {
					return "", err
				}
				document, err := tools.String(args, "document")
				if err != nil {
					return "", err
				}
				return b.SendDocument(ctx, Document{
					ChatID:    chatID,
					Document:  document,
					Caption:   tools.StringOr(args, "caption", ""),
					ParseMode: tools.StringOr(args, "parse_mode", ""),
				})
			},
		},
		{
			Name:        "telegram_get_me",
			Description: "Retrieve basic information about the Telegram bot.",
			Parameters:  tools.ObjectSchema(map[string]*tools.Schema{}),
			Call: func(ctx context.Context, _ map[string]any) (string, error) {
				return b.GetMe(ctx)
			},
		},
		{
			Name:        "telegram_edit_message",
			Description: "Edit the text of a previously sent Telegram message.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"chat_id":                  tools.StringParam("Identifier for the target chat."),
				"message_id":               tools.IntParam("Identifier of the message to edit."),
				"text":                     tools.StringParam("New text for the message."),
				"parse_mode":               tools.StringParam("Optional parse mode for formatting."),
				"disable_web_page_preview": tools.BoolParam("Disable link previews in the message."),
			}, "chat_id", "message_id", "text"),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				chatID, err := tools.String(args, "chat_id")
				if err != nil {
					return "", err
				}
				messageID, err := tools.Int(args, "message_id")
				if err != nil {
					return "", err
				}
				text, err := tools.String(args, "text")
				if err != nil {
					return "", err
				}
				preview, err := tools.Bool(args, "disable_web_page_preview")
				if err != nil {
					return "", err
				}
				return b.EditMessageText(ctx, Edit{
					ChatID:                chatID,
					MessageID:             messageID,
					Text:                  text,
					ParseMode:             tools.StringOr(args, "parse_mode", ""),
					DisableWebPagePreview: preview,
				})
			},
		},
	}
}

package panel

import (
	"fmt"
	"strings"

	"github.com/memohai/joingate/internal/approval"
	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/ledger"
)

// Button is one inline button. Data is the callback payload.
type Button struct {
	Text string
	Data string
}

// View is a rendered screen: text plus rows of inline buttons.
type View struct {
	Text string
	Rows [][]Button
}

const (
	textDenied         = "You are not an admin!"
	textWelcome        = "👋 Welcome to the admin panel!"
	textCancelled      = "❌ Action cancelled."
	textNoChannels     = "📭 No channels yet."
	textChannelsHeader = "📊 Connected channels:"
	textAddPrompt      = "📝 Send the channel's chat ID:\n\n" +
		"ℹ️ To find the channel ID:\n" +
		"1. Forward a channel post to an ID bot\n" +
		"2. Or take it from the channel link\n\n" +
		"⚠️ The bot must be an admin of the channel!"
	textInvalidChatID    = "❌ Invalid chat ID format!\nA channel chat ID must start with -100."
	textFetchFailed      = "❌ Could not fetch the channel!\nCheck the ID or make the bot an admin of the channel."
	textPreviewMissing   = "❌ No data found!"
	textChannelNotFound  = "❌ Channel not found!"
	textCountPrompt      = "🔢 How many users do you want to approve?\nEnter a number:"
	textCountInvalid     = "❌ Invalid format! Enter a number only."
	textCountNotPositive = "❌ The number must be greater than 0!"
	textNoSession        = "❌ Something went wrong! Start again."
	textNoPending        = "📭 No pending requests!"
	textNotAdmin         = "❌ The bot is not an admin of the channel!"
	textAccessFailed     = "❌ Could not access the channel!"
	textApproving        = "⏳ Approving users..."
	textInternalError    = "❌ Something went wrong, try again later."
)

func yesNo(v bool) string {
	if v {
		return "✅ Yes"
	}
	return "❌ No"
}

func handleOrNone(username string) string {
	name := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if name == "" {
		return "none"
	}
	return "@" + name
}

func cancelRow() []Button {
	return []Button{{Text: "❌ Cancel", Data: ActionCancel}}
}

func mainMenuRows() [][]Button {
	return [][]Button{
		{{Text: "📊 Channels", Data: ActionChannelsList}},
		{{Text: "➕ Add channel", Data: ActionAddChannel}},
	}
}

func mainMenu(text string) View {
	return View{Text: text, Rows: mainMenuRows()}
}

func withCancel(text string) View {
	return View{Text: text, Rows: [][]Button{cancelRow()}}
}

func channelListView(records []channels.Record) View {
	if len(records) == 0 {
		return withCancel(textNoChannels)
	}
	rows := make([][]Button, 0, len(records)+1)
	for _, rec := range records {
		rows = append(rows, []Button{{
			Text: "📢 " + rec.DisplayTitle(),
			Data: Callback(ActionChannel, rec.ID),
		}})
	}
	rows = append(rows, cancelRow())
	return View{Text: textChannelsHeader, Rows: rows}
}

func previewView(info channels.ChatInfo, isAdmin bool) View {
	text := fmt.Sprintf(
		"📋 Channel details:\n\n📛 Title: %s\n🔗 Username: %s\n🆔 ID: %s\n🤖 Bot is admin: %s\n\nAdd this channel?",
		info.Title, handleOrNone(info.Username), info.ID, yesNo(isAdmin))
	return View{Text: text, Rows: [][]Button{{
		{Text: "✅ Confirm", Data: Callback(ActionConfirm, info.ID)},
		{Text: "❌ Cancel", Data: ActionCancel},
	}}}
}

func addedView(rec channels.Record) View {
	return mainMenu(fmt.Sprintf("✅ Channel added!\n\n📛 Title: %s", rec.DisplayTitle()))
}

func detailView(rec channels.Record, sum ledger.Summary, isAdmin bool) View {
	text := fmt.Sprintf(
		"📊 Channel statistics:\n\n📛 Title: %s\n🔗 Username: %s\n🆔 ID: %s\n🤖 Bot is admin: %s\n\n"+
			"📈 Requests:\n• Pending: %d\n• Last 24 hours: %d\n• Last 30 days: %d\n\n⬇️ Choose an action:",
		rec.DisplayTitle(), handleOrNone(rec.Username), rec.ID, yesNo(isAdmin),
		sum.Pending, sum.LastDay, sum.LastMonth)
	return View{Text: text, Rows: [][]Button{
		{{Text: "✅ Approve all", Data: Callback(ActionAcceptAll, rec.ID)}},
		{{Text: "🔢 Approve a number", Data: Callback(ActionAcceptCount, rec.ID)}},
		{{Text: "🗑 Remove channel", Data: Callback(ActionRemove, rec.ID)}},
		cancelRow(),
	}}
}

func removedView(id string) View {
	return mainMenu(fmt.Sprintf("🗑 Channel %s removed.", id))
}

func progressView() View {
	return View{Text: textApproving}
}

func approveAllResultView(res approval.Result) View {
	return mainMenu(fmt.Sprintf(
		"✅ Requests approved!\n\n✅ Successful: %d\n❌ Failed: %d\n📊 Total: %d",
		res.Success, res.Failure, res.Total))
}

func approveSampleResultView(res approval.Result) View {
	return mainMenu(fmt.Sprintf(
		"✅ %d of %d users approved!\n\n✅ Successful: %d\n❌ Failed: %d\n📊 Total requests: %d",
		res.Success, res.Selected, res.Success, res.Failure, res.Total))
}

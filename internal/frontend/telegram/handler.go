package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vadimtrunov/moviefinder/internal/config"
	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/movies"
)

const (
	unauthorizedMsg = "Sorry, you are not authorized to use this bot."
	errorMsg        = "An error occurred while processing your request. Please try again."
	loadErrorMsg    = "Could not load movies right now. Please try again."
	speechErrorMsg  = "Could not make out a title. Please try again."
	resetMsg        = "Session reset. Send /start to browse again."
	noMoreMsg       = "That was the last page."
	notStartedMsg   = "Send /start to load the movie list first."
	helpMsg         = "Send /start to list popular movies, /more for the next page, " +
		"/movie N for details of movie N, /reset to start over.\n" +
		"Any other text is treated as a spoken title: the first movie whose title contains it is opened."

	callbackPrefix = "sel:" // prefix for selection callback data

	minLineLen     = 3  // minimum line length for numbered list detection
	maxButtonLabel = 30 // max characters in inline keyboard button label
)

// handleMessage processes an incoming text message.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	logger := b.logger.With(slog.Int64("user_id", userID))
	ctx = config.ContextWithLogger(ctx, logger)

	logger.Debug("received message")

	if !b.sessions.isAllowed(userID) {
		b.sendText(ctx, chatID, unauthorizedMsg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	command, arg, _ := strings.Cut(text, " ")
	switch command {
	case "/help":
		b.sendText(ctx, chatID, helpMsg)
		return
	case "/reset":
		b.sessions.reset(userID)
		b.sendText(ctx, chatID, resetMsg)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	s := b.sessions.getOrCreate(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	b.typing(chatID)

	switch command {
	case "/start":
		b.handleStart(ctx, chatID, s)
	case "/more":
		b.handleMore(ctx, chatID, s)
	case "/movie":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			b.sendText(ctx, chatID, "Usage: /movie N")
			return
		}
		b.handleSelect(ctx, chatID, s, n)
	default:
		b.handleTranscript(ctx, chatID, s, text)
	}
}

// handleCallback processes inline keyboard callback queries.
func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	logger := b.logger.With(slog.Int64("user_id", userID))
	ctx = config.ContextWithLogger(ctx, logger)

	logger.Debug("received callback", slog.String("data", cq.Data))

	// Acknowledge the callback immediately.
	callback := tgbotapi.NewCallback(cq.ID, "")
	b.api.Send(callback) //nolint:errcheck // best-effort ack

	if !b.sessions.isAllowed(userID) {
		return
	}

	// Parse selection callbacks like "sel:1" → user chose movie 1.
	if !strings.HasPrefix(cq.Data, callbackPrefix) {
		return
	}
	n, err := strconv.Atoi(strings.TrimPrefix(cq.Data, callbackPrefix))
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	s := b.sessions.getOrCreate(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	b.typing(chatID)
	b.handleSelect(ctx, chatID, s, n)
}

// handleStart loads genres and the first page on a fresh session, then lists
// everything loaded so far.
func (b *Bot) handleStart(ctx context.Context, chatID int64, s *session) {
	if s.store.Len() == 0 {
		if !b.awaitOK(ctx, chatID, s, s.store.RetrieveGenres(ctx), movies.OpMovies) {
			return
		}
	}
	b.sendList(ctx, chatID, s, 0)
}

// handleMore loads the next page and lists only the new movies.
func (b *Bot) handleMore(ctx context.Context, chatID int64, s *session) {
	if s.store.Len() == 0 {
		b.sendText(ctx, chatID, notStartedMsg)
		return
	}
	before := s.store.Len()
	req, ok := s.store.LoadNextPage(ctx)
	if !ok {
		b.sendText(ctx, chatID, noMoreMsg)
		return
	}
	if !b.awaitOK(ctx, chatID, s, req, movies.OpMovies) {
		return
	}
	b.sendList(ctx, chatID, s, before)
}

// handleSelect selects movie n (1-based) and shows its details.
func (b *Bot) handleSelect(ctx context.Context, chatID int64, s *session, n int) {
	if err := s.store.SelectMovie(n - 1); err != nil {
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			b.sendText(ctx, chatID, fmt.Sprintf("There is no movie number %d.", n))
			return
		}
		b.sendText(ctx, chatID, errorMsg)
		return
	}
	b.sendDetail(ctx, chatID, s)
}

// handleTranscript treats text as a spoken title and runs it through voice
// search.
func (b *Bot) handleTranscript(ctx context.Context, chatID int64, s *session, text string) {
	if s.store.Len() == 0 {
		b.sendText(ctx, chatID, notStartedMsg)
		return
	}
	e, err := s.speak(ctx, text)
	if err != nil {
		config.LoggerFromContext(ctx).Warn("voice search failed", slog.String("error", err.Error()))
		b.sendText(ctx, chatID, describeError(err))
		return
	}
	if e.Failed() {
		b.sendText(ctx, chatID, describeError(e.Err))
		return
	}
	b.sendDetail(ctx, chatID, s)
}

// awaitOK waits for req to answer op and tells the user when it failed.
func (b *Bot) awaitOK(ctx context.Context, chatID int64, s *session, req movies.Request, op movies.Op) bool {
	e, err := s.await(ctx, req, op)
	if err == nil && !e.Failed() {
		return true
	}
	if err == nil {
		err = e.Err
	}
	config.LoggerFromContext(ctx).Warn("request failed",
		slog.String("op", string(op)),
		slog.String("error", err.Error()),
	)
	b.sendText(ctx, chatID, describeError(err))
	return false
}

// sendList sends the loaded movies from index from onwards with a selection
// keyboard.
func (b *Bot) sendList(ctx context.Context, chatID int64, s *session, from int) {
	all := s.store.Movies()
	if from >= len(all) {
		b.sendText(ctx, chatID, "No movies found.")
		return
	}
	genres := s.store.Genres()
	rows := make([]movies.Row, 0, len(all)-from)
	for _, m := range all[from:] {
		rows = append(rows, s.store.ConfigureRow(m, genres))
	}

	text := FormatMovieList(rows, from+1)
	footer := fmt.Sprintf("\n\nPage %d of %d. Send /more for the next page.", s.store.Page(), s.store.PageMax())
	if kb := b.buildSelectionKeyboard(text); kb != nil {
		b.sendPlainWithKeyboard(ctx, chatID, text+footer, kb)
		return
	}
	b.sendText(ctx, chatID, text+footer)
}

// sendDetail loads the selected movie's cast and sends its details and
// backdrop. A failed cast request still shows the rest.
func (b *Bot) sendDetail(ctx context.Context, chatID int64, s *session) {
	m, ok := s.store.Selected()
	if !ok {
		b.sendText(ctx, chatID, notStartedMsg)
		return
	}

	var cast []string
	if e, err := s.await(ctx, s.store.RetrieveCast(ctx), movies.OpCast); err == nil && !e.Failed() {
		names, movieID := s.store.Cast()
		if movieID == m.ID {
			cast = names
		}
	} else {
		config.LoggerFromContext(ctx).Warn("cast unavailable", slog.Int("movie_id", m.ID))
	}

	b.sendPhoto(ctx, chatID, s.store.BackdropURL(), movies.ConfigureRow(m, nil, nil).Title)
	b.sendMarkdown(ctx, chatID, FormatMovieDetail(m, s.store.Genres(), cast), m.Title)
}

// describeError turns a Store error into a message for the user.
func describeError(err error) string {
	var nf *core.NotFoundError
	if errors.As(err, &nf) {
		if nf.Phrase != "" {
			return fmt.Sprintf("No movie title contains %q.", nf.Phrase)
		}
		return "No movie selected."
	}
	var te *core.TransportError
	if errors.As(err, &te) || errors.Is(err, core.ErrLoadMovies) {
		return loadErrorMsg
	}
	var se *core.SpeechError
	if errors.As(err, &se) {
		return speechErrorMsg
	}
	return errorMsg
}

// typing shows the typing indicator.
func (b *Bot) typing(chatID int64) {
	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	b.api.Send(typing) //nolint:errcheck // best-effort typing indicator
}

// sendMarkdown sends MarkdownV2 text and falls back to plain on rejection.
func (b *Bot) sendMarkdown(ctx context.Context, chatID int64, markdown, plain string) {
	msg := tgbotapi.NewMessage(chatID, markdown)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Send(msg); err != nil {
		config.LoggerFromContext(ctx).Warn("failed to send markdown, retrying plain",
			slog.String("error", err.Error()),
		)
		b.sendText(ctx, chatID, plain)
	}
}

// sendText sends a plain text message (no parse mode).
func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		config.LoggerFromContext(ctx).Error("failed to send message",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// sendPlainWithKeyboard sends a plain-text message with inline keyboard.
func (b *Bot) sendPlainWithKeyboard(ctx context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		config.LoggerFromContext(ctx).Error("failed to send message with keyboard",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// sendPhoto sends an image by URL; Telegram fetches it itself.
func (b *Bot) sendPhoto(ctx context.Context, chatID int64, url, caption string) {
	if url == "" {
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	photo.Caption = caption
	if _, err := b.api.Send(photo); err != nil {
		config.LoggerFromContext(ctx).Debug("failed to send photo",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
}

// buildSelectionKeyboard detects numbered items in a listing and builds
// inline keyboard buttons. Returns nil if fewer than two items are found.
// Looks for patterns like "1. Title", "10. Title", or "1) Title".
func (b *Bot) buildSelectionKeyboard(listing string) *tgbotapi.InlineKeyboardMarkup {
	lines := strings.Split(listing, "\n")
	var buttons []tgbotapi.InlineKeyboardButton

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < minLineLen {
			continue
		}

		// Extract leading digits.
		i := 0
		for i < len(line) && line[i] >= '0' && line[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(line)-1 {
			continue
		}

		num := line[:i]
		// Must be followed by ". " or ") ".
		if (line[i] == '.' || line[i] == ')') && i+1 < len(line) && line[i+1] == ' ' {
			label := []rune(line[i+2:])
			if len(label) > maxButtonLabel {
				label = append(label[:maxButtonLabel], '…')
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s. %s", num, string(label)),
				callbackPrefix+num,
			))
		}
	}

	if len(buttons) < 2 {
		return nil
	}

	// Arrange buttons in rows of 1 each (cleaner on mobile).
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, btn := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

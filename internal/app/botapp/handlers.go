package botapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/rules"
	tginfra "github.com/mr4pson/prostable-tg-bot/internal/infra/telegram"
	investsvc "github.com/mr4pson/prostable-tg-bot/internal/services/invest"
	transferssvc "github.com/mr4pson/prostable-tg-bot/internal/services/transfers"
	userssvc "github.com/mr4pson/prostable-tg-bot/internal/services/users"
)

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	if a.bot == nil {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "start":
		return a.handleStart(ctx, update)
	default:
		return a.bot.SendText(ctx, update.ChatID, unknownInputText)
	}
}

func (a *App) handleStart(ctx context.Context, update tginfra.CommandUpdate) error {
	if err := a.states.Clear(ctx, update.UserID); err != nil {
		a.logger.Warn("clear conversation state failed", zap.Error(err), zap.Int64("tg_user_id", update.UserID))
	}

	user, err := a.users.FindByTgID(ctx, update.UserID)
	if errors.Is(err, userssvc.ErrUserNotFound) {
		refTgID := parseReferrerArg(update.Args)
		if refTgID == 0 && update.UserID != a.cfg.Program.TechAccountTgID {
			return a.bot.SendText(ctx, update.ChatID, referralRequiredText)
		}

		user, err = a.users.Register(ctx, update.UserID, update.Username, refTgID)
		if errors.Is(err, userssvc.ErrReferrerNotFound) {
			return a.bot.SendText(ctx, update.ChatID, referralRequiredText)
		}
	}
	if err != nil {
		a.logger.Error("start flow failed", zap.Error(err), zap.Int64("tg_user_id", update.UserID))
		return a.bot.SendText(ctx, update.ChatID, "Что-то пошло не так. Попробуйте позже.")
	}

	if !user.AcceptedTerms {
		return a.sendTerms(ctx, update.ChatID)
	}
	if user.PublicKey == "" {
		return a.deliverWallet(ctx, update.ChatID, update.UserID)
	}
	if user.Email == "" {
		return a.promptEmail(ctx, update.ChatID, update.UserID)
	}

	return a.sendMainMenu(ctx, update.ChatID)
}

func (a *App) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	if a.bot == nil {
		return nil
	}

	parts := strings.Split(strings.TrimSpace(update.Data), ":")
	switch {
	case len(parts) == 2 && parts[0] == "terms" && parts[1] == "accept":
		if err := a.bot.AnswerCallback(ctx, update.CallbackID, ""); err != nil {
			return err
		}
		if err := a.users.AcceptTerms(ctx, update.UserID); err != nil {
			a.logger.Error("accept terms failed", zap.Error(err), zap.Int64("tg_user_id", update.UserID))
			return a.bot.SendText(ctx, update.ChatID, "Не удалось сохранить согласие. Отправьте /start ещё раз.")
		}
		return a.deliverWallet(ctx, update.ChatID, update.UserID)

	case len(parts) == 2 && parts[0] == "terms" && parts[1] == "decline":
		if err := a.bot.AnswerCallback(ctx, update.CallbackID, ""); err != nil {
			return err
		}
		return a.bot.SendText(ctx, update.ChatID, termsDeclinedText)

	case len(parts) == 3 && (parts[0] == "invest" || parts[0] == "reinvest") && parts[1] == "confirm":
		if err := a.bot.AnswerCallback(ctx, update.CallbackID, ""); err != nil {
			return err
		}
		amount, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return a.bot.SendText(ctx, update.ChatID, amountParseText)
		}
		return a.runInvestment(ctx, update.ChatID, update.UserID, amount, parts[0] == "reinvest")

	case len(parts) == 2 && (parts[0] == "invest" || parts[0] == "reinvest") && parts[1] == "cancel":
		if err := a.bot.AnswerCallback(ctx, update.CallbackID, ""); err != nil {
			return err
		}
		return a.sendMainMenu(ctx, update.ChatID)

	case len(parts) == 2 && parts[0] == "transfer" && parts[1] == "confirm":
		if err := a.bot.AnswerCallback(ctx, update.CallbackID, ""); err != nil {
			return err
		}
		return a.runTransfer(ctx, update.ChatID, update.UserID)

	case len(parts) == 2 && parts[0] == "transfer" && parts[1] == "cancel":
		if err := a.bot.AnswerCallback(ctx, update.CallbackID, ""); err != nil {
			return err
		}
		if err := a.states.Clear(ctx, update.UserID); err != nil {
			a.logger.Warn("clear conversation state failed", zap.Error(err), zap.Int64("tg_user_id", update.UserID))
		}
		return a.sendMainMenu(ctx, update.ChatID)

	default:
		return a.bot.AnswerCallback(ctx, update.CallbackID, "Неизвестное действие")
	}
}

func (a *App) handleText(ctx context.Context, update tginfra.TextUpdate) error {
	if a.bot == nil {
		return nil
	}

	state, err := a.states.GetState(ctx, update.UserID)
	if err != nil {
		a.logger.Warn("get conversation state failed", zap.Error(err), zap.Int64("tg_user_id", update.UserID))
	}

	switch state {
	case stateAwaitingEmail:
		return a.captureEmail(ctx, update)
	case stateInvestAmount:
		return a.captureInvestAmount(ctx, update, false)
	case stateReinvestAmount:
		return a.captureInvestAmount(ctx, update, true)
	case stateTransferRecipient:
		return a.captureTransferRecipient(ctx, update)
	case stateTransferAmount:
		return a.captureTransferAmount(ctx, update)
	}

	return a.handleMenuButton(ctx, update)
}

func (a *App) handleMenuButton(ctx context.Context, update tginfra.TextUpdate) error {
	switch update.Text {
	case btnTopup:
		return a.sendTopupMenu(ctx, update.ChatID, update.UserID)
	case btnRost:
		return a.sendRostMenu(ctx, update.ChatID, update.UserID)
	case btnPayments:
		return a.sendPaymentsMenu(ctx, update.ChatID, update.UserID)
	case btnReferral:
		return a.sendReferralMenu(ctx, update.ChatID, update.UserID)
	case btnInvest:
		if err := a.states.SetState(ctx, update.UserID, stateInvestAmount); err != nil {
			return err
		}
		min := rules.FormatAmount(a.cfg.Program.MinInvestAmount)
		return a.bot.SendText(ctx, update.ChatID, fmt.Sprintf(investPromptText, min))
	case btnReinvest:
		if err := a.states.SetState(ctx, update.UserID, stateReinvestAmount); err != nil {
			return err
		}
		min := rules.FormatAmount(a.cfg.Program.MinInvestAmount)
		return a.bot.SendText(ctx, update.ChatID, fmt.Sprintf(reinvestPrompt, min))
	case btnTransfer:
		if err := a.states.SetState(ctx, update.UserID, stateTransferRecipient); err != nil {
			return err
		}
		return a.bot.SendText(ctx, update.ChatID, transferRecipientPrompt)
	case btnSupport:
		return a.bot.SendText(ctx, update.ChatID, supportText)
	case btnMainMenu:
		return a.sendMainMenu(ctx, update.ChatID)
	default:
		return a.bot.SendText(ctx, update.ChatID, unknownInputText)
	}
}

func (a *App) sendTerms(ctx context.Context, chatID int64) error {
	return a.bot.SendInline(ctx, chatID, termsText, [][]tginfra.Button{
		{
			{Label: "✅ Принимаю", Data: "terms:accept"},
			{Label: "❌ Отказываюсь", Data: "terms:decline"},
		},
	})
}

// deliverWallet creates the user's wallet and shows the private key once.
// When the wallet already exists (a restarted flow) it skips straight to
// the e-mail step.
func (a *App) deliverWallet(ctx context.Context, chatID, tgUserID int64) error {
	wallet, err := a.users.CreateWallet(ctx, tgUserID)
	if errors.Is(err, userssvc.ErrWalletExists) {
		return a.promptEmail(ctx, chatID, tgUserID)
	}
	if err != nil {
		a.logger.Error("create wallet failed", zap.Error(err), zap.Int64("tg_user_id", tgUserID))
		return a.bot.SendText(ctx, chatID, "Не удалось создать кошелёк. Отправьте /start ещё раз.")
	}

	text := fmt.Sprintf(
		"Ваш кошелёк создан.\n\nАдрес:\n`%s`\n\nПриватный ключ:\n`%s`\n\n"+
			"⚠️ Сохраните приватный ключ. Он показывается только один раз и не хранится на сервере.",
		wallet.Address, wallet.PrivateKey,
	)
	if err := a.bot.SendText(ctx, chatID, text); err != nil {
		return err
	}

	return a.promptEmail(ctx, chatID, tgUserID)
}

func (a *App) promptEmail(ctx context.Context, chatID, tgUserID int64) error {
	if err := a.states.SetState(ctx, tgUserID, stateAwaitingEmail); err != nil {
		return err
	}
	return a.bot.SendText(ctx, chatID, emailPromptText)
}

func (a *App) captureEmail(ctx context.Context, update tginfra.TextUpdate) error {
	err := a.users.SetEmail(ctx, update.UserID, update.Text)
	if errors.Is(err, userssvc.ErrValidation) {
		return a.bot.SendText(ctx, update.ChatID, emailInvalidText)
	}
	if err != nil {
		a.logger.Error("set email failed", zap.Error(err), zap.Int64("tg_user_id", update.UserID))
		return a.bot.SendText(ctx, update.ChatID, "Не удалось сохранить e-mail. Попробуйте ещё раз.")
	}

	if err := a.states.Clear(ctx, update.UserID); err != nil {
		a.logger.Warn("clear conversation state failed", zap.Error(err), zap.Int64("tg_user_id", update.UserID))
	}
	return a.sendMainMenu(ctx, update.ChatID)
}

func (a *App) sendMainMenu(ctx context.Context, chatID int64) error {
	overview, err := a.stats.Overview(ctx)
	if err != nil {
		a.logger.Error("load program overview failed", zap.Error(err))
		return a.bot.SendText(ctx, chatID, "Не удалось загрузить данные программы. Попробуйте позже.")
	}

	text := fmt.Sprintf(
		"*ProStable*\n\n"+
			"Курс: *1 ROST = %s USDT*\n"+
			"Максимальная эмиссия: *%s ROST*\n"+
			"До повышения курса: *%s ROST*\n"+
			"Держателей ROST: *%d*",
		rules.FormatAmount(overview.Rate),
		rules.FormatAmount(overview.MaxEmission),
		rules.FormatAmount(overview.NextRateRaise),
		overview.HolderCount,
	)

	return a.bot.SendMenu(ctx, chatID, text, [][]tginfra.Button{
		{{Label: btnTopup}, {Label: btnRost}},
		{{Label: btnPayments}, {Label: btnReferral}},
		{{Label: btnInvest}, {Label: btnReinvest}},
		{{Label: btnTransfer}, {Label: btnSupport}},
	})
}

func (a *App) sendTopupMenu(ctx context.Context, chatID, tgUserID int64) error {
	user, err := a.users.FindByTgID(ctx, tgUserID)
	if err != nil {
		return a.bot.SendText(ctx, chatID, "Сначала пройдите регистрацию: /start")
	}
	if user.PublicKey == "" {
		return a.bot.SendText(ctx, chatID, "У вас ещё нет кошелька. Отправьте /start, чтобы создать его.")
	}

	text := fmt.Sprintf(
		"Баланс кошелька: *%s USDT*\n\n"+
			"Для пополнения переведите USDT (BEP-20) на адрес:\n`%s`\n\n"+
			"Баланс обновится автоматически после подтверждения сети.",
		rules.FormatAmount(user.WalletBalance), user.PublicKey,
	)
	return a.bot.SendText(ctx, chatID, text)
}

func (a *App) sendRostMenu(ctx context.Context, chatID, tgUserID int64) error {
	user, err := a.users.FindByTgID(ctx, tgUserID)
	if err != nil {
		return a.bot.SendText(ctx, chatID, "Сначала пройдите регистрацию: /start")
	}

	text := fmt.Sprintf(
		"Баланс ROST: *%s*\n\n"+
			"Токены начисляются за инвестиции, реферальные выплаты и кассу. "+
			"Реинвестируйте их, чтобы увеличить долю в пулах.",
		rules.FormatAmount(user.RostBalance),
	)
	return a.bot.SendText(ctx, chatID, text)
}

func (a *App) sendPaymentsMenu(ctx context.Context, chatID, tgUserID int64) error {
	user, err := a.users.FindByTgID(ctx, tgUserID)
	if err != nil {
		return a.bot.SendText(ctx, chatID, "Сначала пройдите регистрацию: /start")
	}

	balances, err := a.stats.Balances(ctx, user.ID)
	if err != nil {
		a.logger.Error("load user balances failed", zap.Error(err), zap.Int64("user_id", user.ID))
		return a.bot.SendText(ctx, chatID, "Не удалось загрузить баланс выплат. Попробуйте позже.")
	}

	bonus := "нет"
	if balances.BusinessBonus.Rate > 0 {
		bonus = fmt.Sprintf("%s%% (до %s ROST)",
			rules.FormatAmount(balances.BusinessBonus.Rate),
			rules.FormatAmount(balances.BusinessBonus.Cap),
		)
	}

	text := fmt.Sprintf(
		"*Баланс выплат*\n\n"+
			"Инвестировано: *%s*\n"+
			"Получено из кассы: *%s ROST*\n"+
			"Реферальные выплаты: *%s ROST*\n"+
			"Бизнес-пул: *%s ROST*\n"+
			"Бизнес-бонус: *%s*",
		rules.FormatAmount(balances.InvestedSum),
		rules.FormatAmount(balances.CashboxReceived),
		rules.FormatAmount(balances.ReferralSum),
		rules.FormatAmount(balances.BusinessPool),
		bonus,
	)
	return a.bot.SendText(ctx, chatID, text)
}

func (a *App) sendReferralMenu(ctx context.Context, chatID, tgUserID int64) error {
	user, err := a.users.FindByTgID(ctx, tgUserID)
	if err != nil {
		return a.bot.SendText(ctx, chatID, "Сначала пройдите регистрацию: /start")
	}

	summary, err := a.users.Referrals(ctx, user.ID)
	if err != nil {
		a.logger.Error("load referral summary failed", zap.Error(err), zap.Int64("user_id", user.ID))
		return a.bot.SendText(ctx, chatID, "Не удалось загрузить партнёрскую статистику. Попробуйте позже.")
	}

	link := fmt.Sprintf("https://t.me/%s?start=%d", a.bot.Username(), tgUserID)
	text := fmt.Sprintf(
		"*Партнёрская программа*\n\n"+
			"1 линия: *%d* (активных: *%d*)\n"+
			"2 линия: *%d*\n"+
			"3 линия: *%d*\n\n"+
			"Ваша ссылка:\n%s",
		summary.Counts.Level1, summary.FirstLineActive,
		summary.Counts.Level2,
		summary.Counts.Level3,
		link,
	)
	return a.bot.SendText(ctx, chatID, text)
}

func (a *App) captureInvestAmount(ctx context.Context, update tginfra.TextUpdate, reinvest bool) error {
	amount, err := parseAmount(update.Text)
	if err != nil {
		return a.bot.SendText(ctx, update.ChatID, amountParseText)
	}

	if err := a.states.Clear(ctx, update.UserID); err != nil {
		a.logger.Warn("clear conversation state failed", zap.Error(err), zap.Int64("tg_user_id", update.UserID))
	}

	action := "invest"
	verb := "Инвестировать"
	currency := "USDT"
	if reinvest {
		action = "reinvest"
		verb = "Реинвестировать"
		currency = "ROST"
	}

	text := fmt.Sprintf("%s *%s %s*?", verb, rules.FormatAmount(amount), currency)
	data := fmt.Sprintf("%s:confirm:%s", action, strconv.FormatFloat(amount, 'f', -1, 64))
	return a.bot.SendInline(ctx, update.ChatID, text, [][]tginfra.Button{
		{
			{Label: "✅ Подтвердить", Data: data},
			{Label: "❌ Отменить", Data: action + ":cancel"},
		},
	})
}

func (a *App) runInvestment(ctx context.Context, chatID, tgUserID int64, amount float64, reinvest bool) error {
	user, err := a.users.FindByTgID(ctx, tgUserID)
	if err != nil {
		return a.bot.SendText(ctx, chatID, "Сначала пройдите регистрацию: /start")
	}

	var result investsvc.Result
	if reinvest {
		result, err = a.invest.Reinvest(ctx, user, amount)
	} else {
		result, err = a.invest.Invest(ctx, user, amount)
	}
	if err != nil {
		return a.bot.SendText(ctx, chatID, investErrorText(err))
	}

	text := fmt.Sprintf(
		"Готово! Зачислено *%s ROST* по курсу *%s USDT* за токен.",
		rules.FormatAmount(result.TokenAmount),
		rules.FormatAmount(result.Rate),
	)
	if err := a.bot.SendText(ctx, chatID, text); err != nil {
		return err
	}
	return a.sendMainMenu(ctx, chatID)
}

func investErrorText(err error) string {
	switch {
	case errors.Is(err, investsvc.ErrAmountNotInteger):
		return "Сумма должна быть целым положительным числом."
	case errors.Is(err, investsvc.ErrAmountBelowMinimum):
		return "Сумма меньше минимальной для участия в программе."
	case errors.Is(err, investsvc.ErrInsufficientBalance):
		return "Недостаточно средств на балансе."
	case errors.Is(err, investsvc.ErrTechAccountInvest):
		return "Технический аккаунт не может инвестировать."
	default:
		return "Не удалось провести операцию. Попробуйте позже."
	}
}

func (a *App) captureTransferRecipient(ctx context.Context, update tginfra.TextUpdate) error {
	recipient := strings.TrimPrefix(strings.TrimSpace(update.Text), "@")
	if recipient == "" {
		return a.bot.SendText(ctx, update.ChatID, transferRecipientPrompt)
	}

	if err := a.states.SetData(ctx, update.UserID, map[string]any{"recipient": recipient}); err != nil {
		return err
	}
	if err := a.states.SetState(ctx, update.UserID, stateTransferAmount); err != nil {
		return err
	}
	return a.bot.SendText(ctx, update.ChatID, transferAmountPrompt)
}

func (a *App) captureTransferAmount(ctx context.Context, update tginfra.TextUpdate) error {
	amount, err := parseAmount(update.Text)
	if err != nil {
		return a.bot.SendText(ctx, update.ChatID, amountParseText)
	}

	data, err := a.states.GetData(ctx, update.UserID)
	if err != nil || data == nil {
		return a.bot.SendText(ctx, update.ChatID, "Диалог перевода истёк. Начните заново из меню.")
	}
	recipient, _ := data["recipient"].(string)
	if recipient == "" {
		return a.bot.SendText(ctx, update.ChatID, "Диалог перевода истёк. Начните заново из меню.")
	}

	data["amount"] = amount
	if err := a.states.SetData(ctx, update.UserID, data); err != nil {
		return err
	}

	text := fmt.Sprintf("Перевести *%s USDT* пользователю @%s?", rules.FormatAmount(amount), recipient)
	return a.bot.SendInline(ctx, update.ChatID, text, [][]tginfra.Button{
		{
			{Label: "✅ Подтвердить", Data: "transfer:confirm"},
			{Label: "❌ Отменить", Data: "transfer:cancel"},
		},
	})
}

func (a *App) runTransfer(ctx context.Context, chatID, tgUserID int64) error {
	data, err := a.states.GetData(ctx, tgUserID)
	if err != nil || data == nil {
		return a.bot.SendText(ctx, chatID, "Диалог перевода истёк. Начните заново из меню.")
	}
	recipient, _ := data["recipient"].(string)
	amount, _ := data["amount"].(float64)

	if err := a.states.Clear(ctx, tgUserID); err != nil {
		a.logger.Warn("clear conversation state failed", zap.Error(err), zap.Int64("tg_user_id", tgUserID))
	}

	sender, err := a.users.FindByTgID(ctx, tgUserID)
	if err != nil {
		return a.bot.SendText(ctx, chatID, "Сначала пройдите регистрацию: /start")
	}

	if _, err := a.transfers.SubmitTransfer(ctx, sender, recipient, amount); err != nil {
		return a.bot.SendText(ctx, chatID, transferErrorText(err))
	}

	text := "Перевод отправлен в сеть. Вы получите уведомление после подтверждения."
	if err := a.bot.SendText(ctx, chatID, text); err != nil {
		return err
	}
	return a.sendMainMenu(ctx, chatID)
}

func transferErrorText(err error) string {
	switch {
	case errors.Is(err, transferssvc.ErrInsufficientBalance):
		return "Недостаточно средств на балансе кошелька."
	case errors.Is(err, transferssvc.ErrRecipientNotFound):
		return "Получатель не найден. Проверьте username."
	case errors.Is(err, transferssvc.ErrRecipientNoWallet):
		return "У получателя ещё нет кошелька."
	case errors.Is(err, transferssvc.ErrSenderNoWallet):
		return "У вас ещё нет кошелька. Отправьте /start, чтобы создать его."
	case errors.Is(err, transferssvc.ErrValidation):
		return "Проверьте сумму и получателя и попробуйте снова."
	default:
		return "Не удалось отправить перевод. Попробуйте позже."
	}
}

func parseReferrerArg(args string) int64 {
	args = strings.TrimSpace(args)
	if args == "" {
		return 0
	}
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func parseAmount(text string) (float64, error) {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	text = strings.ReplaceAll(text, " ", "")
	amount, err := strconv.ParseFloat(text, 64)
	if err != nil || amount <= 0 {
		return 0, fmt.Errorf("invalid amount")
	}
	return amount, nil
}

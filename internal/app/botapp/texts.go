package botapp

// Conversation states kept in Redis between updates.
const (
	stateAwaitingEmail     = "awaiting_email"
	stateInvestAmount      = "invest_amount"
	stateReinvestAmount    = "reinvest_amount"
	stateTransferRecipient = "transfer_recipient"
	stateTransferAmount    = "transfer_amount"
)

// Main menu button labels. The text handler dispatches on exact label
// match, so these double as routing keys.
const (
	btnTopup    = "💰 Пополнить баланс"
	btnRost     = "🪙 Баланс ROST"
	btnPayments = "📊 Баланс выплат"
	btnReferral = "👥 Партнёрская программа"
	btnInvest   = "📈 Инвестировать"
	btnReinvest = "🔄 Реинвестировать"
	btnTransfer = "💸 Перевести USDT"
	btnSupport  = "🛟 Поддержка"
	btnMainMenu = "🏠 Главное меню"
)

const (
	termsText = "Добро пожаловать в ProStable!\n\n" +
		"Перед началом работы ознакомьтесь с условиями программы. " +
		"Инвестиции сопряжены с риском: вы подтверждаете, что понимаете " +
		"механику программы и действуете добровольно."
	termsDeclinedText = "Без принятия условий работа с ботом невозможна. " +
		"Отправьте /start, когда будете готовы."
	referralRequiredText = "Регистрация доступна только по реферальной ссылке. " +
		"Попросите ссылку у действующего участника программы."

	emailPromptText  = "Укажите ваш e-mail для связи:"
	emailInvalidText = "Похоже, это не e-mail. Попробуйте ещё раз:"

	investPromptText = "Введите сумму инвестиции в USDT (целое число, минимум %s):"
	reinvestPrompt   = "Введите сумму реинвестиции в ROST (целое число, минимум %s):"
	amountParseText  = "Не удалось разобрать сумму. Введите число, например 500."

	transferRecipientPrompt = "Введите username получателя (без @):"
	transferAmountPrompt    = "Введите сумму перевода в USDT:"

	supportText = "По всем вопросам пишите в поддержку: @prostable\\_support"

	unknownInputText = "Не понимаю. Воспользуйтесь кнопками меню или отправьте /start."
)

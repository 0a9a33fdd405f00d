package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

// Storefront bot conversation steps.
const (
	StateBrowsing     = "browsing"
	StateSelectItem   = "select_item"
	StateEnterName    = "enter_name"
	StateEnterEmail   = "enter_email"
	StateEnterPhone   = "enter_phone"
	StateConfirmTerms = "confirm_terms"
	StateAwaitPayment = "await_payment"
)

const (
	// MaxCartQuantity caps a single cart line.
	MaxCartQuantity = 99

	// DefaultRedisTTL is the chat state lifetime in seconds.
	DefaultRedisTTL = 24 * 60 * 60

	// WorkerQueueSize bounds the in-memory sync queue.
	WorkerQueueSize = 1000

	// SheetsCacheTTL is the spreadsheet row cache lifetime in seconds.
	SheetsCacheTTL = 60 * 60
)

package dto

// CreditHistoryQuery binds the credit history query string.
type CreditHistoryQuery struct {
	Type   string `form:"type"`
	Action string `form:"action"`
	From   string `form:"from"`
	To     string `form:"to"`
	Limit  int    `form:"limit"`
	Format string `form:"format"`
}

package types

import "time"

// UserSummary is how other users appear in list responses.
type UserSummary struct {
	Username string   `json:"username"`
	Tags     []string `json:"tags"`
}

// PostSummary is one line of a blog or feed listing.
type PostSummary struct {
	ID     int64  `json:"id"`
	Author string `json:"author"`
	Title  string `json:"title"`
}

type CommentView struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PostView is the full rendering of a single post.
type PostView struct {
	ID        int64         `json:"id"`
	Author    string        `json:"author"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Upvotes   int           `json:"upvotes"`
	Downvotes int           `json:"downvotes"`
	Comments  []CommentView `json:"comments"`
	CreatedAt time.Time     `json:"created_at"`
}

type TransactionView struct {
	Label     string    `json:"label"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type WalletView struct {
	Balance      float64           `json:"balance"`
	Transactions []TransactionView `json:"transactions"`
}

// ExchangeView reports a wallet balance converted to the external unit.
type ExchangeView struct {
	Wincoin float64 `json:"wincoin"`
	Rate    float64 `json:"rate"`
	BTC     float64 `json:"btc"`
}

// LoginPayload tells a freshly logged-in client where to subscribe for
// notifications.
type LoginPayload struct {
	MulticastIP   string `json:"multicastIP"`
	MulticastPort int    `json:"multicastPort"`
	NotifyToken   string `json:"notifyToken,omitempty"`
}

// CreatedView carries the id assigned to a new post or comment.
type CreatedView struct {
	ID int64 `json:"id"`
}

package memory

import (
	"sync"
	"time"

	"github.com/princekumarofficial/winsome/internal/types"
)

// Transaction is one wallet credit.
type Transaction struct {
	Label     string    `json:"label"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Wallet holds a user's wincoin balance. Credits are append-only.
type Wallet struct {
	mu      sync.Mutex
	balance float64
	txs     []Transaction
}

// Credit adds amount to the balance and records the transaction.
func (w *Wallet) Credit(amount float64, label string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.balance += amount
	w.txs = append(w.txs, Transaction{Label: label, Amount: amount, Timestamp: at})
}

func (w *Wallet) Balance() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// Transactions returns a copy of the history, oldest first.
func (w *Wallet) Transactions() []Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Transaction, len(w.txs))
	copy(out, w.txs)
	return out
}

// View renders the wallet for a response payload.
func (w *Wallet) View() types.WalletView {
	w.mu.Lock()
	defer w.mu.Unlock()

	view := types.WalletView{
		Balance:      w.balance,
		Transactions: make([]types.TransactionView, 0, len(w.txs)),
	}
	for _, tx := range w.txs {
		view.Transactions = append(view.Transactions, types.TransactionView(tx))
	}
	return view
}

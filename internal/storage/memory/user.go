package memory

import (
	"encoding/json"
	"slices"
	"sort"
	"sync"

	"github.com/princekumarofficial/winsome/internal/types"
)

// MaxTags is the most interest tags a user may register with.
const MaxTags = 5

// User is a registered account. Username, PasswordHash and Tags never change
// after registration; the follow graph, blog and wallet mutate under mu.
type User struct {
	Username     string
	PasswordHash string
	Tags         []string

	mu        sync.RWMutex
	followers map[string]struct{}
	following map[string]struct{}
	blog      []int64 // authored and rewun post ids, in insertion order
	wallet    *Wallet
}

func newUser(username, passwordHash string, tags []string) *User {
	return &User{
		Username:     username,
		PasswordHash: passwordHash,
		Tags:         tags,
		followers:    make(map[string]struct{}),
		following:    make(map[string]struct{}),
		wallet:       &Wallet{},
	}
}

func (u *User) Wallet() *Wallet { return u.wallet }

func (u *User) Followers() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return sortedKeys(u.followers)
}

func (u *User) Following() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return sortedKeys(u.following)
}

// Blog returns a copy of the blog's post ids.
func (u *User) Blog() []int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return slices.Clone(u.blog)
}

func (u *User) blogContains(id int64) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return slices.Contains(u.blog, id)
}

func (u *User) removeFromBlog(id int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.blog = slices.DeleteFunc(u.blog, func(v int64) bool { return v == id })
}

// SharesTag reports whether u and other have at least one tag in common.
func (u *User) SharesTag(other *User) bool {
	for _, t := range u.Tags {
		if slices.Contains(other.Tags, t) {
			return true
		}
	}
	return false
}

func (u *User) Summary() types.UserSummary {
	return types.UserSummary{Username: u.Username, Tags: slices.Clone(u.Tags)}
}

type userRecord struct {
	Username     string        `json:"username"`
	PasswordHash string        `json:"password_hash"`
	Tags         []string      `json:"tags"`
	Followers    []string      `json:"followers"`
	Following    []string      `json:"following"`
	Blog         []int64       `json:"blog"`
	Balance      float64       `json:"balance"`
	Transactions []Transaction `json:"transactions"`
}

func (u *User) MarshalJSON() ([]byte, error) {
	u.mu.RLock()
	rec := userRecord{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Tags:         u.Tags,
		Followers:    sortedKeys(u.followers),
		Following:    sortedKeys(u.following),
		Blog:         slices.Clone(u.blog),
	}
	u.mu.RUnlock()

	rec.Balance = u.wallet.Balance()
	rec.Transactions = u.wallet.Transactions()
	return json.Marshal(rec)
}

func (u *User) UnmarshalJSON(data []byte) error {
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	*u = User{
		Username:     rec.Username,
		PasswordHash: rec.PasswordHash,
		Tags:         rec.Tags,
		followers:    toSet(rec.Followers),
		following:    toSet(rec.Following),
		blog:         rec.Blog,
		wallet:       &Wallet{balance: rec.Balance, txs: rec.Transactions},
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

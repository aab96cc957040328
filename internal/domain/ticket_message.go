package domain

import "time"

// Comment is one entry of a ticket's comment thread. Threads are always
// handled newest first.
type Comment struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
}

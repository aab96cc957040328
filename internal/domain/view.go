package domain

// View is a saved helpdesk ticket filter.
type View struct {
	ID     int64  `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Group  string `json:"group" yaml:"group"`
	Active bool   `json:"active" yaml:"-"`
}

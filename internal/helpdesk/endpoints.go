package helpdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

// Probe is the lightweight authenticated connectivity check used by Start.
func (c *Client) Probe(ctx context.Context) (domain.User, error) {
	raw, err := c.Request(ctx, http.MethodGet, "/api/v2/users/me.json", nil, RequestOptions{})
	if err != nil {
		return domain.User{}, &ConnectivityError{Err: err}
	}
	var payload struct {
		User domain.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.User{}, &ConnectivityError{Err: err}
	}
	if payload.User.ID == 0 {
		return domain.User{}, &ConnectivityError{Err: fmt.Errorf("not authenticated")}
	}
	return payload.User, nil
}

// ListViews returns the active views visible to the API user.
func (c *Client) ListViews(ctx context.Context) ([]domain.View, error) {
	raw, err := c.RequestWithRetry(ctx, http.MethodGet, "/api/v2/views/active.json?per_page=100", nil, RequestOptions{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Views []struct {
			ID     int64  `json:"id"`
			Title  string `json:"title"`
			Active bool   `json:"active"`
		} `json:"views"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode views: %w", err)
	}
	views := make([]domain.View, 0, len(payload.Views))
	for _, v := range payload.Views {
		views = append(views, domain.View{ID: v.ID, Title: v.Title, Group: viewGroup(v.Title), Active: v.Active})
	}
	return views, nil
}

// ViewTicketIDs pages through a view's tickets, newest first. Breaker
// accounting is left to the caller.
func (c *Client) ViewTicketIDs(ctx context.Context, viewID int64) ([]int64, error) {
	var ids []int64
	for page := 1; page <= c.maxViewPages; page++ {
		path := fmt.Sprintf("/api/v2/views/%d/tickets.json?per_page=100&page=%d&sort_by=created_at&sort_order=desc", viewID, page)
		raw, err := c.Request(ctx, http.MethodGet, path, nil, RequestOptions{CycleAccounted: true})
		if err != nil {
			return nil, err
		}
		var payload struct {
			Tickets []struct {
				ID int64 `json:"id"`
			} `json:"tickets"`
			NextPage *string `json:"next_page"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode view %d: %w", viewID, err)
		}
		for _, t := range payload.Tickets {
			ids = append(ids, t.ID)
		}
		if payload.NextPage == nil || *payload.NextPage == "" {
			break
		}
	}
	return ids, nil
}

// GetTicket fetches a single ticket.
func (c *Client) GetTicket(ctx context.Context, id int64) (domain.Ticket, error) {
	raw, err := c.RequestWithRetry(ctx, http.MethodGet, fmt.Sprintf("/api/v2/tickets/%d.json", id), nil, RequestOptions{})
	if err != nil {
		return domain.Ticket{}, err
	}
	var payload struct {
		Ticket domain.Ticket `json:"ticket"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Ticket{}, fmt.Errorf("decode ticket %d: %w", id, err)
	}
	return payload.Ticket, nil
}

// TicketComments returns a ticket's comments, newest first.
func (c *Client) TicketComments(ctx context.Context, id int64) ([]domain.Comment, error) {
	raw, err := c.RequestWithRetry(ctx, http.MethodGet, fmt.Sprintf("/api/v2/tickets/%d/comments.json?sort_order=desc", id), nil, RequestOptions{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Comments []domain.Comment `json:"comments"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode comments %d: %w", id, err)
	}
	return payload.Comments, nil
}

// GetUser fetches a user, used for author role resolution.
func (c *Client) GetUser(ctx context.Context, id int64) (domain.User, error) {
	raw, err := c.RequestWithRetry(ctx, http.MethodGet, fmt.Sprintf("/api/v2/users/%d.json", id), nil, RequestOptions{})
	if err != nil {
		return domain.User{}, err
	}
	var payload struct {
		User domain.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.User{}, fmt.Errorf("decode user %d: %w", id, err)
	}
	return payload.User, nil
}

// UpdateTicket applies fields to a ticket in a single PUT.
func (c *Client) UpdateTicket(ctx context.Context, id int64, fields map[string]any) (domain.Ticket, error) {
	body := map[string]any{"ticket": fields}
	raw, err := c.RequestWithRetry(ctx, http.MethodPut, fmt.Sprintf("/api/v2/tickets/%d.json", id), body, RequestOptions{Mutating: true})
	if err != nil {
		return domain.Ticket{}, err
	}
	var payload struct {
		Ticket domain.Ticket `json:"ticket"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Ticket{}, fmt.Errorf("decode updated ticket %d: %w", id, err)
	}
	return payload.Ticket, nil
}

// viewGroup takes the prefix of "Group - Name" style titles.
func viewGroup(title string) string {
	if i := strings.Index(title, " - "); i > 0 {
		return strings.TrimSpace(title[:i])
	}
	return ""
}


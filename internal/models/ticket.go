package models

// Ticket is an issue referenced from a PR description.
type Ticket struct {
	TicketID  int    `json:"ticket_id" yaml:"ticket_id"`
	TicketURL string `json:"ticket_url" yaml:"ticket_url"`
	Title     string `json:"title" yaml:"title"`
	Body      string `json:"body" yaml:"body"`
	Labels    string `json:"labels" yaml:"labels"`
}

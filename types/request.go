package types

// FeedbackRequest updates the mutable feedback fields of a query log.
// Rating is 1-5.
type FeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

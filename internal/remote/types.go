package remote

import (
	"fmt"
	"net/http"
)

// MemberStatus selects which paginated member listing FetchMembers reads.
type MemberStatus string

const (
	StatusActive       MemberStatus = "active"
	StatusUnsubscribed MemberStatus = "unsubscribed"
)

// MaxBatchSize is the largest subscriber array the import endpoint accepts.
const MaxBatchSize = 1000

// Config holds remote API configuration
type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
}

// CustomField is one free-form attribute attached to a subscriber.
type CustomField struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Subscriber is the canonical record sent to the import endpoint.
type Subscriber struct {
	EmailAddress   string        `json:"EmailAddress"`
	Name           string        `json:"Name"`
	CustomFields   []CustomField `json:"CustomFields"`
	Resubscribe    bool          `json:"Resubscribe"`
	ConsentToTrack string        `json:"ConsentToTrack"`
}

// FailureDetail is a per-subscriber rejection reported inside an import response.
type FailureDetail struct {
	EmailAddress string `json:"EmailAddress"`
	Code         int    `json:"Code"`
	Message      string `json:"Message"`
}

// ImportResult is the parsed outcome of one import call.
type ImportResult struct {
	StatusCode int
	New        int
	Existing   int
	Duplicates int
	Failures   []FailureDetail

	// Message is the service's top-level message, set on 400 responses.
	Message string
}

// ListDetails describes a remote mailing list.
type ListDetails struct {
	ListID             string `json:"ListID"`
	Title              string `json:"Title"`
	UnsubscribePage    string `json:"UnsubscribePage"`
	ConfirmedOptIn     bool   `json:"ConfirmedOptIn"`
	UnsubscribeSetting string `json:"UnsubscribeSetting"`
}

// StatusError is returned when the service answers with a status the
// caller does not treat as informative.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d %s): %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// ========== Wire Types ==========

type memberPage struct {
	Results []struct {
		EmailAddress string `json:"EmailAddress"`
	} `json:"Results"`
	PageNumber    int `json:"PageNumber"`
	NumberOfPages int `json:"NumberOfPages"`
}

type importRequest struct {
	Subscribers []Subscriber `json:"Subscribers"`
	Resubscribe bool         `json:"Resubscribe"`
}

type importCounts struct {
	TotalNewSubscribers         int             `json:"TotalNewSubscribers"`
	TotalExistingSubscribers    int             `json:"TotalExistingSubscribers"`
	DuplicateEmailsInSubmission []string        `json:"DuplicateEmailsInSubmission"`
	FailureDetails              []FailureDetail `json:"FailureDetails"`
}

// importResponse covers both shapes: counts at the top level (201) or
// wrapped in ResultData alongside an error code and message (400).
type importResponse struct {
	importCounts
	Code       int           `json:"Code"`
	Message    string        `json:"Message"`
	ResultData *importCounts `json:"ResultData"`
}

type unsubscribeRequest struct {
	EmailAddress string `json:"EmailAddress"`
}

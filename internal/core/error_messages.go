package core

// error_messages.go maps technical errors to messages an operator can act on.
//
// Codes, by category:
//
//	FILE001 - Spreadsheet not found          (os.ErrNotExist)
//	FILE002 - Unsupported spreadsheet format ("unsupported spreadsheet format")
//	FILE003 - Spreadsheet has no header row  (sheet.ErrNoHeader)
//	FILE004 - Spreadsheet could not be read  ("open workbook", "parse csv")
//
//	VAL001  - No email column                (ErrNoEmailColumn)
//	VAL002  - No subscribers                 (ErrNoSubscribers)
//	VAL003  - Unknown binding                (ErrUnknownBinding)
//	VAL004  - Invalid bindings file          (config.ErrNoBindings, "invalid bindings")
//
//	API001  - Credentials rejected           (*remote.StatusError 401/403)
//	API002  - List not found                 (*remote.StatusError 404)
//	API003  - Remote service error           (any other *remote.StatusError)
//	API004  - Remote service unreachable     ("connection refused", "no such host")
//
//	RUN001  - Another sync is running        (ErrTooManyRuns)
//	RUN002  - Run not found                  (ErrRunNotFound)
//	RUN003  - Nothing to export              (ErrNothingToExport)
//	RUN004  - Cancelled                      (context.Canceled)
//	RUN005  - Timed out                      (context.DeadlineExceeded)
//
//	RATE001 - Too many requests              ("rate limit")
//	ERR000  - Anything else
//
// Sentinel and typed errors are checked first with errors.Is/As, then
// message patterns case-insensitively. The first match wins.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/JonMunkholm/listsync/internal/config"
	"github.com/JonMunkholm/listsync/internal/remote"
	"github.com/JonMunkholm/listsync/internal/sheet"
)

var (
	ErrNoEmailColumn   = errors.New("no email column found")
	ErrNoSubscribers   = errors.New("no subscribers to import")
	ErrUnknownBinding  = errors.New("unknown binding")
	ErrRunNotFound     = errors.New("run not found")
	ErrTooManyRuns     = errors.New("too many concurrent runs, please try again later")
	ErrNothingToExport = errors.New("no invalid emails to export")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgFileNotFound = UserMessage{"Spreadsheet not found", "Check the file path in the bindings file", "FILE001"}
	msgFileFormat   = UserMessage{"Unsupported spreadsheet format", "Save the file as .xlsx or .csv", "FILE002"}
	msgFileNoHeader = UserMessage{"Spreadsheet has no header row", "Put column names in the first row", "FILE003"}
	msgFileRead     = UserMessage{"Spreadsheet could not be read", "Open the file in Excel and save it again", "FILE004"}

	msgNoEmailColumn  = UserMessage{"No email column found", "Name a column so it contains \"mail\", e.g. Email", "VAL001"}
	msgNoSubscribers  = UserMessage{"The spreadsheet has no rows with an email address", "Fill in the email column", "VAL002"}
	msgUnknownBinding = UserMessage{"Unknown list", "Pick a list from the status page", "VAL003"}
	msgBadBindings    = UserMessage{"The bindings file is invalid", "Fix the bindings file and restart", "VAL004"}

	msgAPIAuth        = UserMessage{"The email platform rejected the API key", "Check REMOTE_API_KEY", "API001"}
	msgAPINotFound    = UserMessage{"The remote list was not found", "Check the list_id in the bindings file", "API002"}
	msgAPIError       = UserMessage{"The email platform returned an error", "See the run log for the response body", "API003"}
	msgAPIUnreachable = UserMessage{"The email platform could not be reached", "Check network access and try again", "API004"}

	msgTooManyRuns = UserMessage{"Another sync is already running", "Wait for it to finish and try again", "RUN001"}
	msgRunNotFound = UserMessage{"Run not found", "The run may have expired; start a new sync", "RUN002"}
	msgNoInvalids  = UserMessage{"There are no invalid emails to export", "Run a sync first", "RUN003"}
	msgCancelled   = UserMessage{"The sync was cancelled", "Start a new sync when ready", "RUN004"}
	msgTimeout     = UserMessage{"The sync timed out", "Increase SYNC_TIMEOUT or sync fewer lists at once", "RUN005"}

	msgRateLimited = UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}
)

// errorTargets are matched with errors.Is, in order.
var errorTargets = []struct {
	target error
	msg    UserMessage
}{
	{os.ErrNotExist, msgFileNotFound},
	{sheet.ErrNoHeader, msgFileNoHeader},
	{ErrNoEmailColumn, msgNoEmailColumn},
	{ErrNoSubscribers, msgNoSubscribers},
	{ErrUnknownBinding, msgUnknownBinding},
	{config.ErrNoBindings, msgBadBindings},
	{ErrTooManyRuns, msgTooManyRuns},
	{ErrRunNotFound, msgRunNotFound},
	{ErrNothingToExport, msgNoInvalids},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

// errorPatterns are matched against the lowercased error text, in order.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"unsupported spreadsheet format", msgFileFormat},
	{"open workbook", msgFileRead},
	{"parse csv", msgFileRead},
	{"invalid bindings", msgBadBindings},
	{"connection refused", msgAPIUnreachable},
	{"no such host", msgAPIUnreachable},
	{"rate limit", msgRateLimited},
}

// defaultMessage is returned when nothing matches (ERR000). Check the
// application log for the technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the server log",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, et := range errorTargets {
		if errors.Is(err, et.target) {
			return et.msg
		}
	}

	var statusErr *remote.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return msgAPIAuth
		case http.StatusNotFound:
			return msgAPINotFound
		case http.StatusTooManyRequests:
			return msgRateLimited
		default:
			return msgAPIError
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a display string: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

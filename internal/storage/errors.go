package storage

import "errors"

var (
	// ErrPageNotFound means neither lookup strategy found the page.
	ErrPageNotFound = errors.New("page not found")
	// ErrPageExists means a create targeted an already occupied path.
	ErrPageExists = errors.New("a page already exists at this path")
	// ErrTitleEmpty means a page was saved without a title.
	ErrTitleEmpty = errors.New("title cannot be empty")
	// ErrInvalidType means a page was saved with an unknown type.
	ErrInvalidType = errors.New("unknown page type")
	// ErrInvalidAccessLevel means a page was saved with an unknown access
	// level. Unknown levels must never be stored: Visible treats anything
	// that is not admin as public.
	ErrInvalidAccessLevel = errors.New("unknown access level")
	// ErrNotEditable means the page type has no text content to edit.
	ErrNotEditable = errors.New("page content cannot be edited as text")
	// ErrEmptyDestination means a redirection page has no target URL.
	ErrEmptyDestination = errors.New("destination URL cannot be empty")
	// ErrUploadFailed means the media host rejected or dropped a file.
	ErrUploadFailed = errors.New("file upload failed")
	// ErrFeedbackNotFound means the feedback post does not exist.
	ErrFeedbackNotFound = errors.New("feedback post not found")
	// ErrMessageEmpty means a feedback submission had no message body.
	ErrMessageEmpty = errors.New("message cannot be empty")
	// ErrRateLimited means the submitter exceeded the feedback rate limit.
	ErrRateLimited = errors.New("too many submissions, try again later")
)

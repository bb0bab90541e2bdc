package service

import "errors"

var (
	ErrValidation           = errors.New("message or file is required")
	ErrForbidden            = errors.New("access denied")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrFileNotFound         = errors.New("file not found")
	ErrEmptyCorpus          = errors.New("no code files found")
	ErrNoSession            = errors.New("no session")
	ErrUnsupportedProvider  = errors.New("unsupported model provider")
)

package apperr

const (
	// Validation (1xxx)
	CodeInvalidArgument   = 1000
	CodeInvalidID         = 1004
	CodeInvalidStatus     = 1005
	CodeInvalidRole       = 1006
	CodeMissingRequired   = 1009
	CodeSelfRequest       = 1015
	CodeGuideRoleRequired = 1016
	CodeFileAlreadyOwned  = 1017

	// Domain state (2xxx)
	CodeNotFound          = 2000
	CodeDocumentNotFound  = 2001
	CodeFileNotFound      = 2002
	CodeSessionNotFound   = 2003
	CodeUserNotFound      = 2004
	CodeDanglingReference = 2201
	CodeInvalidTransition = 2202
	CodeIncompleteWrite   = 2203

	// Internal/system (4xxx)
	CodeInternal = 4001
	CodeTimeout  = 4006
)

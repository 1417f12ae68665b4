package handler

const (
	errInternalServer    = "internal server error"
	errScheduleNotFound  = "schedule not found"
	errExecutionNotFound = "execution not found"
	errInvalidRequest    = "invalid request"
)

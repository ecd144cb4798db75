package judge

// Judge0 status identifiers.
const (
	StatusInQueue             = 1
	StatusProcessing          = 2
	StatusAccepted            = 3
	StatusWrongAnswer         = 4
	StatusTimeLimitExceeded   = 5
	StatusCompilationError    = 6
	StatusRuntimeErrorSIGSEGV = 7
	StatusRuntimeErrorSIGXFSZ = 8
	StatusRuntimeErrorSIGFPE  = 9
	StatusRuntimeErrorSIGABRT = 10
	StatusRuntimeErrorNZEC    = 11
	StatusRuntimeErrorOther   = 12
	StatusInternalError       = 13
	StatusExecFormatError     = 14
)

// Status is the execution state of a single judge token.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Terminal reports whether execution has finished, successfully or not.
func (s Status) Terminal() bool {
	return s.ID >= StatusAccepted
}

// Accepted reports whether the program ran to completion without errors.
// It says nothing about whether the output was correct unless an expected
// output was sent with the request.
func (s Status) Accepted() bool {
	return s.ID == StatusAccepted
}

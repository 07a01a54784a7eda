package inspection

import "fmt"

// Code is the return_code carried in a reply.
type Code string

// Reply return codes.
const (
	CodeOK            Code = "0"
	CodeValidation    Code = "1001"
	CodeInvalidResult Code = "1002"
	CodeModeManual    Code = "2001"
	CodeCstNotExist   Code = "2002"
	CodeCstNotAtICA   Code = "2003"
	CodeInitErr       Code = "9999"
)

// OK reports whether the code accepts the event.
func (c Code) OK() bool {
	return c == CodeOK
}

var codeNames = map[Code]string{
	CodeOK:            "OK",
	CodeValidation:    "VALIDATION_ERROR",
	CodeInvalidResult: "INVALID_ICA_RESULT",
	CodeModeManual:    "ICA_MODE_MANUAL",
	CodeCstNotExist:   "CST_NOT_EXIST",
	CodeCstNotAtICA:   "CST_NOT_AT_ICA",
	CodeInitErr:       "INIT_ERR",
}

// Name returns the symbolic name of the code.
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

func msgMissingField(field string) string { return "Missing required field: " + field }
func msgInvalidResult(v string) string    { return fmt.Sprintf("Invalid ICA result: %s", v) }
func msgCstNotExist(id string) string     { return fmt.Sprintf("Cassette %s does not exist", id) }
func msgCstNotAtICA(id string) string     { return fmt.Sprintf("Cassette %s is not at ICA port", id) }

const (
	msgSuccess       = "Success"
	msgModeManual    = "ICA mode is MANUAL"
	msgInternalError = "Internal error"
)

// stepOutcome is the tagged result each workflow step hands back.
type stepOutcome int

const (
	stepContinue stepOutcome = iota
	stepReject
	stepFatal
)

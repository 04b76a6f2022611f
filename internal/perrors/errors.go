// Package perrors implements the controller's machine-readable error
// envelope and the fixed set of key codes consumers match on.
package perrors

import "encoding/json"

// Kind distinguishes the broad category an Error belongs to, so recovery
// decisions can branch on kind instead of inspecting message text.
type Kind int

const (
	KindConfig Kind = iota
	KindProtocol
	KindMCU
	KindDispatch
	KindBusy
	KindIO
	KindDuplicateUUID
	KindUnknownUUID
)

// Error is the JSON envelope `{"code":"keyNNN","msg":"...","values":[...]}`
// every user-visible controller error is formatted as.
type Error struct {
	Kind   Kind     `json:"-"`
	Code   string   `json:"code"`
	Msg    string   `json:"msg"`
	Values []string `json:"values"`
}

func (e *Error) Error() string {
	b, err := json.Marshal(e)
	if err != nil {
		return e.Msg
	}
	return string(b)
}

func newErr(kind Kind, code, msg string, values ...string) *Error {
	if values == nil {
		values = []string{}
	}
	return &Error{Kind: kind, Code: code, Msg: msg, Values: values}
}

// Fixed key codes from the glossary.
const (
	CodeResumeWithoutPause = "key16"
	CodeDuplicateUUID      = "key29"
	CodeUnknownUUID        = "key30"
	CodeMCU                = "key0"
	CodeShutdown           = "key1"
	CodeStartup            = "key3"
	CodeFilenameExtract    = "key120"
	CodeOpenFailed         = "key121"
	CodeUnknownObject      = "key122"
	CodeDuplicateObject    = "key123"
	CodeUnknownModule      = "key124"
	CodeResetFromSD        = "key131"
	CodeAlreadyPaused      = "key211"
	CodeSDBusy             = "key217"
	CodeConfigNoSections   = "key336"
	CodeConfigParseError   = "key337"
)

// Busy reports that a mutation was attempted while a job is armed.
func Busy(msg string) *Error { return newErr(KindBusy, CodeSDBusy, msg) }

// AlreadyPaused reports PAUSE/M600 issued while already paused.
func AlreadyPaused(msg string) *Error { return newErr(KindBusy, CodeAlreadyPaused, msg) }

// ResumeWithoutPause reports RESUME issued while not paused.
func ResumeWithoutPause(msg string) *Error { return newErr(KindBusy, CodeResumeWithoutPause, msg) }

// ResetFromSD reports SDCARD_RESET_FILE invoked from a file-sourced command.
func ResetFromSD(msg string) *Error { return newErr(KindIO, CodeResetFromSD, msg) }

// FilenameExtract reports failure to parse a filename out of a command line.
func FilenameExtract(msg string) *Error { return newErr(KindIO, CodeFilenameExtract, msg) }

// OpenFailed reports a file-selection I/O failure.
func OpenFailed(msg string) *Error { return newErr(KindIO, CodeOpenFailed, msg) }

// UnknownObject reports a lookup of an unregistered component name.
func UnknownObject(name string) *Error {
	return newErr(KindConfig, CodeUnknownObject, "Unknown config object '"+name+"'", name)
}

// DuplicateObject reports a second registration under the same name.
func DuplicateObject(name string) *Error {
	return newErr(KindConfig, CodeDuplicateObject, "Printer object '"+name+"' already created", name)
}

// UnknownModule reports a component with no registered constructor.
func UnknownModule(name string) *Error {
	return newErr(KindConfig, CodeUnknownModule, "Unable to load module '"+name+"'", name)
}

// DuplicateUUID reports a canbus uuid registered twice.
func DuplicateUUID(uuid string) *Error {
	return newErr(KindDuplicateUUID, CodeDuplicateUUID, "Duplicate canbus_uuid", uuid)
}

// UnknownUUID reports a canbus uuid with no assigned node id.
func UnknownUUID(uuid string) *Error {
	return newErr(KindUnknownUUID, CodeUnknownUUID, "Unknown canbus_uuid "+uuid, uuid)
}

// Dispatch wraps a dispatcher-origin failure. It carries no key code.
func Dispatch(msg string) *Error { return newErr(KindDispatch, "", msg) }

// MCU wraps a transport error, tagging it with key0 unless it is already
// a structured envelope.
func MCU(msg string) *Error { return newErr(KindMCU, CodeMCU, msg) }

// ConfigStructural wraps a config header/parse failure under key336/key337.
func ConfigStructural(noSections bool, detail string) *Error {
	if noSections {
		return newErr(KindConfig, CodeConfigNoSections, "File contains no section headers.<br/>"+detail, detail)
	}
	return newErr(KindConfig, CodeConfigParseError, "File contains parsing errors:"+detail, detail)
}

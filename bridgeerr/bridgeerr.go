// Package bridgeerr defines the structured error taxonomy used across the
// bridge module: ConfigurationError, TransportError, ProtocolError,
// CryptoError, and OriginMismatch (see spec §7).
package bridgeerr

import "fmt"

// Role identifies which side of a session produced the error.
type Role string

const (
	RoleCreator Role = "creator"
	RoleJoiner  Role = "joiner"
)

// Stage identifies which part of the protocol stack failed.
type Stage string

const (
	StageConfig    Stage = "config"
	StageConnect   Stage = "connect"
	StageHandshake Stage = "handshake"
	StageEnvelope  Stage = "envelope"
	StageOrigin    Stage = "origin"
	StageSend      Stage = "send"
	StageClose     Stage = "close"
)

// Category is the top-level error taxonomy from spec §7.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryTransport     Category = "transport"
	CategoryProtocol      Category = "protocol"
	CategoryCrypto        Category = "crypto"
	CategoryOrigin        Category = "origin_mismatch"
)

// Code is a stable, programmatic error identifier.
type Code string

const (
	CodeOriginInBrowser        Code = "origin_in_browser"
	CodeMissingOrigin          Code = "missing_origin"
	CodeResumeMissingKeys      Code = "resume_missing_keys"
	CodeRemoteKeyWithoutResume Code = "remote_key_without_resume"
	CodeInvalidConnectionURI   Code = "invalid_connection_uri"
	CodeInvalidPublicKey       Code = "invalid_public_key"

	CodeDialFailed    Code = "dial_failed"
	CodeUpgradeFailed Code = "upgrade_failed"
	CodeAbnormalClose Code = "abnormal_close"
	CodeMaxReconnects Code = "max_reconnect_attempts_exceeded"

	CodeMissingID           Code = "missing_id"
	CodeDuplicateID         Code = "duplicate_id"
	CodeChunkLengthMismatch Code = "chunk_length_mismatch"
	CodeInvalidGreeting     Code = "invalid_greeting"
	CodeRemoteKeyChanged    Code = "remote_key_changed"
	CodePayloadTooLarge     Code = "payload_too_large"

	CodeDecryptFailed Code = "decrypt_failed"
	CodeInflateFailed Code = "inflate_failed"

	CodeOriginMismatch Code = "origin_mismatch"
)

// Error is the structured error type carried on the OnError event stream
// and, for ConfigurationError, returned synchronously from Create/Join.
type Error struct {
	Category Category
	Stage    Stage
	Code     Code
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("bridge: %s/%s (%s): %v", e.Category, e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("bridge: %s/%s (%s)", e.Category, e.Stage, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a structured bridge error.
func New(category Category, stage Stage, code Code, err error) *Error {
	return &Error{Category: category, Stage: stage, Code: code, Err: err}
}

func Configuration(stage Stage, code Code, err error) *Error {
	return New(CategoryConfiguration, stage, code, err)
}

func Transport(stage Stage, code Code, err error) *Error {
	return New(CategoryTransport, stage, code, err)
}

func Protocol(stage Stage, code Code, err error) *Error {
	return New(CategoryProtocol, stage, code, err)
}

func Crypto(stage Stage, code Code, err error) *Error {
	return New(CategoryCrypto, stage, code, err)
}

func OriginMismatch(expected, got string) *Error {
	return New(CategoryOrigin, StageOrigin, CodeOriginMismatch,
		fmt.Errorf("origin mismatch: expected %q, got %q", expected, got))
}

// Package errs defines the stable wire error codes of the hub and the
// AppError type carried by every failed operation.
package errs

// Code is a stable error identifier. The exact strings are contract with
// admin and client applications and must not change.
type Code string

const (
	// Authentication.
	AuthInvalidCredentials      Code = "AUTH_1001"
	AuthTokenExpired            Code = "AUTH_1002"
	AuthTokenInvalid            Code = "AUTH_1003"
	AuthRefreshExpired          Code = "AUTH_1004"
	AuthRefreshInvalid          Code = "AUTH_1005"
	AuthSessionNotFound         Code = "AUTH_1006"
	AuthRateLimited             Code = "AUTH_1007"
	AuthInsufficientPermissions Code = "AUTH_1008"
	CognitoUnavailable          Code = "COGNITO_1010"
	CognitoUserNotFound         Code = "COGNITO_1011"
	CognitoUserDisabled         Code = "COGNITO_1012"
	CognitoQuotaExceeded        Code = "COGNITO_1013"

	// Authorization.
	AuthzAccessDenied       Code = "AUTHZ_1101"
	AuthzSessionNotOwned    Code = "AUTHZ_1102"
	AuthzInsufficientPerms  Code = "AUTHZ_1103"
	AuthzInvalidSessionState Code = "AUTHZ_1104"

	// Sessions.
	SessionNotFound            Code = "SESSION_1201"
	SessionAlreadyExists       Code = "SESSION_1202"
	SessionInvalidConfig       Code = "SESSION_1203"
	SessionCreateFailed        Code = "SESSION_1204"
	SessionUpdateFailed        Code = "SESSION_1205"
	SessionDeleteFailed        Code = "SESSION_1206"
	SessionClientLimitExceeded Code = "SESSION_1207"

	// Admin identity.
	AdminNotFound         Code = "ADMIN_1301"
	AdminCreationFailed   Code = "ADMIN_1302"
	AdminNameTaken        Code = "ADMIN_1303"
	AdminRecordCorrupted  Code = "ADMIN_1304"

	// System.
	SystemInternal            Code = "SYSTEM_1401"
	SystemPersistence         Code = "SYSTEM_1402"
	SystemNetwork             Code = "SYSTEM_1403"
	SystemRateLimited         Code = "SYSTEM_1404"
	SystemMaintenance         Code = "SYSTEM_1405"
	SystemConnectionLimit     Code = "SYSTEM_1406"

	// Validation.
	ValidationInvalidInput  Code = "VALIDATION_1501"
	ValidationMissingField  Code = "VALIDATION_1502"
	ValidationSessionID     Code = "VALIDATION_1503"
	ValidationLanguage      Code = "VALIDATION_1504"
	ValidationConfig        Code = "VALIDATION_1505"
)

type codeInfo struct {
	retryable   bool
	userMessage string
}

var codeRegistry = map[Code]codeInfo{
	AuthInvalidCredentials:      {false, "Invalid username or password."},
	AuthTokenExpired:            {true, "Your session expired. Please sign in again."},
	AuthTokenInvalid:            {false, "Authentication token is not valid."},
	AuthRefreshExpired:          {false, "Your sign-in has expired. Please sign in again."},
	AuthRefreshInvalid:          {false, "Unable to refresh your sign-in."},
	AuthSessionNotFound:         {false, "You are not signed in."},
	AuthRateLimited:             {true, "Too many sign-in attempts. Please wait and retry."},
	AuthInsufficientPermissions: {false, "You do not have permission to do that."},
	CognitoUnavailable:          {true, "Sign-in service is temporarily unavailable."},
	CognitoUserNotFound:         {false, "Account not found."},
	CognitoUserDisabled:         {false, "This account is disabled."},
	CognitoQuotaExceeded:        {true, "Sign-in service is busy. Please retry shortly."},

	AuthzAccessDenied:        {false, "Access denied."},
	AuthzSessionNotOwned:     {false, "Only the session owner can do that."},
	AuthzInsufficientPerms:   {false, "You do not have permission to do that."},
	AuthzInvalidSessionState: {false, "The session does not allow that operation right now."},

	SessionNotFound:            {false, "Session not found."},
	SessionAlreadyExists:       {false, "A session with that name is already running."},
	SessionInvalidConfig:       {false, "The session configuration is not valid."},
	SessionCreateFailed:        {true, "Could not create the session."},
	SessionUpdateFailed:        {true, "Could not update the session."},
	SessionDeleteFailed:        {true, "Could not end the session."},
	SessionClientLimitExceeded: {true, "The session is full. Please try again later."},

	AdminNotFound:        {false, "Operator record not found."},
	AdminCreationFailed:  {true, "Could not create the operator record."},
	AdminNameTaken:       {false, "That display name is already in use."},
	AdminRecordCorrupted: {false, "Operator record is damaged. Contact support."},

	SystemInternal:        {true, "Something went wrong. Please retry."},
	SystemPersistence:     {true, "Storage error. Please retry."},
	SystemNetwork:         {true, "Network error. Please retry."},
	SystemRateLimited:     {true, "Too many requests. Please slow down."},
	SystemMaintenance:     {true, "The service is under maintenance."},
	SystemConnectionLimit: {false, "Connection limit exceeded."},

	ValidationInvalidInput: {false, "The request is not valid."},
	ValidationMissingField: {false, "A required field is missing."},
	ValidationSessionID:    {false, "The session name is not valid."},
	ValidationLanguage:     {false, "The requested language is not available."},
	ValidationConfig:       {false, "The configuration is not valid."},
}

// Retryable reports whether clients may retry an operation failing with code.
func Retryable(code Code) bool {
	return codeRegistry[code].retryable
}

// UserMessage returns the end-user text for code.
func UserMessage(code Code) string {
	info, ok := codeRegistry[code]
	if !ok {
		return codeRegistry[SystemInternal].userMessage
	}
	return info.userMessage
}

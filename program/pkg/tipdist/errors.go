package tipdist

import "github.com/malbeclabs/tipdist/program/pkg/anchor"

var (
	ErrAccountValidationFailure             = &anchor.ProgramError{Code: 6000, Name: "AccountValidationFailure", Msg: "account failed validation"}
	ErrArithmeticError                      = &anchor.ProgramError{Code: 6001, Name: "ArithmeticError", Msg: "arithmetic overflow or underflow"}
	ErrExceedsMaxClaim                      = &anchor.ProgramError{Code: 6002, Name: "ExceedsMaxClaim", Msg: "claimed total would exceed the root's maximum"}
	ErrExceedsMaxNumNodes                   = &anchor.ProgramError{Code: 6003, Name: "ExceedsMaxNumNodes", Msg: "claimed node count would exceed the root's maximum"}
	ErrExpiredTipDistributionAccount        = &anchor.ProgramError{Code: 6004, Name: "ExpiredTipDistributionAccount", Msg: "tip distribution account has expired"}
	ErrFundsAlreadyClaimed                  = &anchor.ProgramError{Code: 6005, Name: "FundsAlreadyClaimed", Msg: "claimant already claimed from this tip distribution account"}
	ErrInvalidParameters                    = &anchor.ProgramError{Code: 6006, Name: "InvalidParameters", Msg: "invalid parameters"}
	ErrInvalidProof                         = &anchor.ProgramError{Code: 6007, Name: "InvalidProof", Msg: "proof does not verify against the uploaded root"}
	ErrInvalidVoteAccountData               = &anchor.ProgramError{Code: 6008, Name: "InvalidVoteAccountData", Msg: "vote account data could not be read"}
	ErrMaxValidatorCommissionFeeBpsExceeded = &anchor.ProgramError{Code: 6009, Name: "MaxValidatorCommissionFeeBpsExceeded", Msg: "validator commission exceeds the configured maximum"}
	ErrPrematureCloseTipDistributionAccount = &anchor.ProgramError{Code: 6010, Name: "PrematureCloseTipDistributionAccount", Msg: "tip distribution account has not expired yet"}
	ErrPrematureCloseClaimStatus            = &anchor.ProgramError{Code: 6011, Name: "PrematureCloseClaimStatus", Msg: "claim status has not expired yet"}
	ErrPrematureMerkleRootUpload            = &anchor.ProgramError{Code: 6012, Name: "PrematureMerkleRootUpload", Msg: "roots may only be uploaded after the creation epoch"}
	ErrRootNotUploaded                      = &anchor.ProgramError{Code: 6013, Name: "RootNotUploaded", Msg: "no merkle root has been uploaded"}
	ErrUnauthorized                         = &anchor.ProgramError{Code: 6014, Name: "Unauthorized", Msg: "unauthorized signer or recipient"}
	ErrInvalidTdaForMigration               = &anchor.ProgramError{Code: 6015, Name: "InvalidTdaForMigration", Msg: "tip distribution account cannot be migrated"}
	ErrNotLive                              = &anchor.ProgramError{Code: 6016, Name: "NotLive", Msg: "operation is gated until the go-live epoch"}
	ErrRootAlreadyClaimedFrom               = &anchor.ProgramError{Code: 6017, Name: "RootAlreadyClaimedFrom", Msg: "root cannot be replaced after nodes were claimed"}
)

// Errors lists every error the program returns, in code order.
var Errors = []*anchor.ProgramError{
	ErrAccountValidationFailure,
	ErrArithmeticError,
	ErrExceedsMaxClaim,
	ErrExceedsMaxNumNodes,
	ErrExpiredTipDistributionAccount,
	ErrFundsAlreadyClaimed,
	ErrInvalidParameters,
	ErrInvalidProof,
	ErrInvalidVoteAccountData,
	ErrMaxValidatorCommissionFeeBpsExceeded,
	ErrPrematureCloseTipDistributionAccount,
	ErrPrematureCloseClaimStatus,
	ErrPrematureMerkleRootUpload,
	ErrRootNotUploaded,
	ErrUnauthorized,
	ErrInvalidTdaForMigration,
	ErrNotLive,
	ErrRootAlreadyClaimedFrom,
}

var errorTable = anchor.NewErrorTable(anchor.FrameworkErrors, Errors)

// ErrorByCode resolves a numeric error code returned by the program.
func ErrorByCode(code uint32) (*anchor.ProgramError, bool) {
	return errorTable.Lookup(code)
}

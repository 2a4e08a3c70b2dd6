package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"unicode"
	"unicode/utf8"

	"chowfast/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// codeUserRejected is the EIP-1193 "user rejected request" code.
const codeUserRejected = 4001

const revertPrefix = "execution reverted"

// Classify maps a client error onto the domain error set:
// *domain.RevertError, domain.ErrSigningRejected, domain.ErrNetworkUnavailable.
// Errors that are already classified, and errors it cannot place, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var rErr *domain.RevertError
	var vErr *domain.ValidationError
	var dErr *domain.DecodeError
	switch {
	case errors.As(err, &rErr), errors.As(err, &vErr), errors.As(err, &dErr),
		errors.Is(err, domain.ErrSigningRejected),
		errors.Is(err, domain.ErrNetworkUnavailable),
		errors.Is(err, domain.ErrRemoteUnavailable),
		errors.Is(err, domain.ErrConfirmationTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	if isUserRejection(err) {
		return fmt.Errorf("%w: %v", domain.ErrSigningRejected, err)
	}
	if reason, ok := RevertReason(err); ok {
		return &domain.RevertError{Reason: reason}
	}
	if IsNetworkError(err) {
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	return err
}

// RevertReason extracts a human-readable revert reason. It understands
// Error(string) and Panic(uint256) payloads as well as the raw UTF-8 bytes
// Stylus contracts revert with.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var rErr *domain.RevertError
	if errors.As(err, &rErr) {
		return rErr.Reason, true
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := reasonFromData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}

	msg := err.Error()
	i := strings.Index(msg, revertPrefix)
	if i < 0 {
		return "", false
	}
	reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len(revertPrefix):], ":"))
	if reason == "" {
		reason = "transaction reverted"
	}
	return reason, true
}

func reasonFromData(data interface{}) (string, bool) {
	var raw []byte
	switch v := data.(type) {
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = v
	default:
		return "", false
	}
	if len(raw) == 0 {
		return "", false
	}
	if reason, err := abi.UnpackRevert(raw); err == nil {
		return reason, true
	}
	if printable(raw) {
		return string(raw), true
	}
	return "", false
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func isUserRejection(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") ||
		strings.Contains(msg, "user denied") ||
		strings.Contains(msg, "request denied")
}

// IsNetworkError reports whether err is a transport failure rather than a
// response from the node.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrNetworkUnavailable) ||
		errors.Is(err, rpc.ErrClientQuit) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return false
}

// Describe renders err as a single message suitable for end users.
func Describe(err error) string {
	err = Classify(err)
	var rErr *domain.RevertError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rErr):
		return "Transaction reverted: " + rErr.Reason
	case errors.Is(err, domain.ErrSigningRejected):
		return "Transaction was rejected in the wallet"
	case errors.Is(err, domain.ErrNetworkUnavailable):
		return "Network unavailable, please try again"
	case errors.Is(err, domain.ErrConfirmationTimeout):
		return "Confirmation is taking longer than expected"
	default:
		return err.Error()
	}
}

// Kind returns the transaction failure category for err.
func Kind(err error) domain.ErrorKind {
	err = Classify(err)
	var rErr *domain.RevertError
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return domain.ErrorKindValidation
	case errors.As(err, &rErr):
		return domain.ErrorKindRevert
	case errors.Is(err, domain.ErrSigningRejected):
		return domain.ErrorKindRejected
	case errors.Is(err, domain.ErrNetworkUnavailable):
		return domain.ErrorKindNetwork
	case errors.Is(err, domain.ErrConfirmationTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return domain.ErrorKindCanceled
	default:
		return domain.ErrorKindUnknown
	}
}

// bound.Call surfaces ABI decoding failures as plain errors prefixed with "abi:".
func isUnpackError(err error) bool {
	return strings.HasPrefix(err.Error(), "abi:")
}

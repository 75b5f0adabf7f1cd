package txqueue

import "strings"

type failureKind int

const (
	// retried with backoff
	failureOther failureKind = iota
	// the nonce was consumed by another transaction; the job is assumed
	// already applied and dropped
	failureNonceConflict
	// the signer cannot pay for gas; the queue pauses until topped up
	failureOutOfFunds
)

// Substrings of the error messages geth-family nodes return. There is no
// structured error code for these on the json rpc surface.
var (
	nonceConflictMarkers = []string{
		"nonce too low",
		"already known",
		"replacement transaction underpriced",
	}
	outOfFundsMarkers = []string{
		"insufficient funds",
	}
)

func classifySubmitError(err error) failureKind {
	if err == nil {
		return failureOther
	}
	msg := strings.ToLower(err.Error())

	for _, marker := range nonceConflictMarkers {
		if strings.Contains(msg, marker) {
			return failureNonceConflict
		}
	}
	for _, marker := range outOfFundsMarkers {
		if strings.Contains(msg, marker) {
			return failureOutOfFunds
		}
	}

	return failureOther
}

package fault

// Recoverable reports whether kind is environmental. Environmental failures
// fall back to a degraded path (demo data, manual entry, unknown location)
// and are reported as a notice; the rest abort the current operation and
// wait for an explicit retry.
func Recoverable(kind Kind) bool {
	switch kind {
	case KindNetworkUnreachable, KindPermissionDenied, KindNotFound:
		return true
	default:
		return false
	}
}

// Notice returns the user-facing message for err. Unclassified errors get a
// generic message so that nothing raw leaks to the user.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	kind, ok := KindOf(err)
	if !ok {
		return "Something went wrong. Please try again."
	}
	return NoticeFor(kind)
}

// NoticeFor returns the user-facing message for a kind.
func NoticeFor(kind Kind) string {
	switch kind {
	case KindNetworkUnreachable:
		return "Unable to reach the service. Continuing with offline data."
	case KindAuthRejected:
		return "Invalid credentials."
	case KindMalformedPayload:
		return "This code does not contain a readable emergency record. Please scan again."
	case KindExpired:
		return "This emergency record has expired. Confirm details with the patient."
	case KindPayloadTooLarge:
		return "The medical profile is too large to fit in a QR code. Shorten it and try again."
	case KindPermissionDenied:
		return "Camera permission denied. Please allow camera access or enter the code manually."
	case KindNotFound:
		return "No camera found. Enter the code manually or use demo data."
	default:
		return "Something went wrong. Please try again."
	}
}
